package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArithmetic(t *testing.T) {
	a := FromFloat(10)
	b := FromFloat(4)

	require.True(t, a.Add(b).Float64() == 14)
	require.True(t, a.Sub(b).Float64() == 6)
	require.True(t, a.Mul(b).Float64() == 40)
	require.True(t, a.Div(b).Float64() == 2.5)
}

func TestDivByZeroReturnsZero(t *testing.T) {
	a := FromFloat(10)
	require.True(t, a.Div(Zero).IsZero())
}

func TestComparisons(t *testing.T) {
	a := FromFloat(5)
	b := FromFloat(10)

	require.True(t, a.LessThan(b))
	require.True(t, b.GreaterThan(a))
	require.True(t, a.GreaterThanOrEqual(a))
	require.False(t, a.GreaterThan(a))
}

func TestMinMax(t *testing.T) {
	a := FromFloat(3)
	b := FromFloat(7)

	require.Equal(t, a.Float64(), Min(a, b).Float64())
	require.Equal(t, b.Float64(), Max(a, b).Float64())
}

func TestScanRoundTrip(t *testing.T) {
	var d Decimal
	require.NoError(t, d.Scan("12.5"))
	require.Equal(t, 12.5, d.Float64())

	val, err := d.Value()
	require.NoError(t, err)
	require.Equal(t, "12.5", val)
}

func TestFromStringInvalid(t *testing.T) {
	_, err := FromString("not-a-number")
	require.Error(t, err)
}
