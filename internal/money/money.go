// Package money provides the arbitrary-precision decimal type used for every
// monetary value in the ledger, built on shopspring/decimal throughout and
// only rendered to float64 at the API boundary.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal wraps shopspring/decimal.Decimal with the SQL scan/value glue the
// ledger store needs to persist amounts as TEXT columns.
type Decimal struct {
	decimal.Decimal
}

// Zero is the additive identity.
var Zero = New(decimal.Zero)

// New wraps a decimal.Decimal value.
func New(d decimal.Decimal) Decimal {
	return Decimal{Decimal: d}
}

// FromFloat constructs a Decimal from a float64, the only representation the
// HTTP/JSON boundary understands.
func FromFloat(f float64) Decimal {
	return Decimal{Decimal: decimal.NewFromFloat(f)}
}

// FromString parses a decimal string.
func FromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return Decimal{Decimal: d}, nil
}

// Float64 renders the decimal to float64 for JSON responses.
func (d Decimal) Float64() float64 {
	f, _ := d.Decimal.Float64()
	return f
}

// Add, Sub, Mul, Div mirror decimal.Decimal but return money.Decimal so call
// sites never have to unwrap.
func (d Decimal) Add(o Decimal) Decimal { return Decimal{d.Decimal.Add(o.Decimal)} }
func (d Decimal) Sub(o Decimal) Decimal { return Decimal{d.Decimal.Sub(o.Decimal)} }
func (d Decimal) Mul(o Decimal) Decimal { return Decimal{d.Decimal.Mul(o.Decimal)} }

// Div divides d by o, returning Zero if o is zero rather than panicking;
// callers in the oracle and engine treat a zero price as "unpriced".
func (d Decimal) Div(o Decimal) Decimal {
	if o.Decimal.IsZero() {
		return Zero
	}
	return Decimal{d.Decimal.DivRound(o.Decimal, 18)}
}

// IsPositive reports d > 0.
func (d Decimal) IsPositive() bool { return d.Decimal.IsPositive() }

// IsZero reports d == 0.
func (d Decimal) IsZero() bool { return d.Decimal.IsZero() }

// LessThan reports d < o.
func (d Decimal) LessThan(o Decimal) bool { return d.Decimal.LessThan(o.Decimal) }

// GreaterThanOrEqual reports d >= o.
func (d Decimal) GreaterThanOrEqual(o Decimal) bool { return d.Decimal.GreaterThanOrEqual(o.Decimal) }

// GreaterThan reports d > o.
func (d Decimal) GreaterThan(o Decimal) bool { return d.Decimal.GreaterThan(o.Decimal) }

// Min returns the smaller of two decimals.
func Min(a, b Decimal) Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of two decimals.
func Max(a, b Decimal) Decimal {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}

// Value implements driver.Valuer, storing the decimal as its canonical
// string form.
func (d Decimal) Value() (driver.Value, error) {
	return d.Decimal.String(), nil
}

// Scan implements sql.Scanner.
func (d *Decimal) Scan(value interface{}) error {
	if value == nil {
		d.Decimal = decimal.Zero
		return nil
	}
	switch v := value.(type) {
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		d.Decimal = parsed
	case []byte:
		parsed, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		d.Decimal = parsed
	case float64:
		d.Decimal = decimal.NewFromFloat(v)
	case int64:
		d.Decimal = decimal.NewFromInt(v)
	default:
		return fmt.Errorf("money: unsupported scan type %T", value)
	}
	return nil
}
