package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/loanzzz/lending-core/internal/domain"
)

const loanColumns = `id, user_id, status, collateral_type, collateral_amount, collateral_value_usd,
	borrowed_type, borrowed_amount, borrowed_value_usd, interest_rate, accrued_interest,
	initial_ltv, current_ltv, staking_yield_earned, created_at, updated_at, last_interest_update, closed_at`

func scanLoan(row interface{ Scan(dest ...any) error }) (*domain.Loan, error) {
	var l domain.Loan
	var collateralType, borrowedType string
	var closedAt sql.NullTime
	if err := row.Scan(
		&l.ID, &l.UserID, &l.Status, &collateralType, &l.CollateralAmount, &l.CollateralValueUSD,
		&borrowedType, &l.BorrowedAmount, &l.BorrowedValueUSD, &l.InterestRate, &l.AccruedInterest,
		&l.InitialLTV, &l.CurrentLTV, &l.StakingYieldEarned, &l.CreatedAt, &l.UpdatedAt, &l.LastInterestUpdate, &closedAt,
	); err != nil {
		return nil, err
	}
	l.CollateralType = domain.Asset(collateralType)
	l.BorrowedType = domain.Asset(borrowedType)
	if closedAt.Valid {
		t := closedAt.Time
		l.ClosedAt = &t
	}
	return &l, nil
}

// GetLoan fetches a loan by id. Returns domain.ErrNotFound when absent.
func GetLoan(ctx context.Context, q DBTX, id string) (*domain.Loan, error) {
	row := q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return l, err
}

// ListLoansByUser returns every loan owned by the given user, most recent first.
func ListLoansByUser(ctx context.Context, q DBTX, userID string) ([]*domain.Loan, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

// ListNonTerminalLoans returns every loan in status active or margin_call.
func ListNonTerminalLoans(ctx context.Context, q DBTX) ([]*domain.Loan, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE status IN ('active', 'margin_call')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

// ListNonTerminalLoansByCollateral returns non-terminal loans collateralised
// by the given asset; used by the staking distributor to find XEC-backed
// loans.
func ListNonTerminalLoansByCollateral(ctx context.Context, q DBTX, collateral domain.Asset) ([]*domain.Loan, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE status IN ('active', 'margin_call') AND collateral_type = ?`, string(collateral))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

func collectLoans(rows *sql.Rows) ([]*domain.Loan, error) {
	var loans []*domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// PutLoan inserts or replaces a loan row.
func PutLoan(ctx context.Context, q DBTX, l *domain.Loan) error {
	l.UpdatedAt = time.Now().UTC()
	var closedAt interface{}
	if l.ClosedAt != nil {
		closedAt = *l.ClosedAt
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			collateral_amount = excluded.collateral_amount,
			collateral_value_usd = excluded.collateral_value_usd,
			borrowed_amount = excluded.borrowed_amount,
			borrowed_value_usd = excluded.borrowed_value_usd,
			accrued_interest = excluded.accrued_interest,
			current_ltv = excluded.current_ltv,
			staking_yield_earned = excluded.staking_yield_earned,
			updated_at = excluded.updated_at,
			last_interest_update = excluded.last_interest_update,
			closed_at = excluded.closed_at
	`,
		l.ID, l.UserID, string(l.Status), string(l.CollateralType), l.CollateralAmount, l.CollateralValueUSD,
		string(l.BorrowedType), l.BorrowedAmount, l.BorrowedValueUSD, l.InterestRate, l.AccruedInterest,
		l.InitialLTV, l.CurrentLTV, l.StakingYieldEarned, l.CreatedAt, l.UpdatedAt, l.LastInterestUpdate, closedAt,
	)
	return err
}
