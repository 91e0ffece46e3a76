package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64ToNumeric_Zero(t *testing.T) {
	n, err := Float64ToNumeric(0)
	require.NoError(t, err)
	v, err := NumericToFloat64(n)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestFloat64ToNumeric_Fraction(t *testing.T) {
	n, err := Float64ToNumeric(1.5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), n.Int.Int64())
	assert.Equal(t, int32(-1), n.Exp)
	assert.True(t, n.Valid)
}

func TestFloat64ToNumeric_ShortestDecimal(t *testing.T) {
	n, err := Float64ToNumeric(0.1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n.Int.Int64())
	assert.Equal(t, int32(-1), n.Exp)
}

func TestFloat64ToNumeric_RoundTrip(t *testing.T) {
	for _, v := range []float64{0.25, 1, 100, 2.5e6, 0.000000001, -1.5, 123.456} {
		n, err := Float64ToNumeric(v)
		require.NoError(t, err)
		got, err := NumericToFloat64(n)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestFloat64ToNumeric_NonFinite(t *testing.T) {
	_, err := Float64ToNumeric(math.NaN())
	assert.Error(t, err)
	_, err = Float64ToNumeric(math.Inf(1))
	assert.Error(t, err)
}

func TestNumericToFloat64_Null(t *testing.T) {
	_, err := NumericToFloat64(pgtype.Numeric{Valid: false})
	assert.Error(t, err)
}

func TestNumericToFloat64_NaN(t *testing.T) {
	_, err := NumericToFloat64(pgtype.Numeric{NaN: true, Valid: true})
	assert.Error(t, err)
}

func TestNumericToFloat64_PositiveExponent(t *testing.T) {
	// 5 * 10^3 = 5000
	n := pgtype.Numeric{Int: big.NewInt(5), Exp: 3, Valid: true}
	v, err := NumericToFloat64(n)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, v)
}

func TestNumericToFloat64_NegativeExponent(t *testing.T) {
	// 12345 * 10^-2 = 123.45
	n := pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}
	v, err := NumericToFloat64(n)
	require.NoError(t, err)
	assert.Equal(t, 123.45, v)
}

func TestOptionalNumeric(t *testing.T) {
	n, err := OptionalNumeric(nil)
	require.NoError(t, err)
	assert.False(t, n.Valid)

	v := 2.5
	n, err = OptionalNumeric(&v)
	require.NoError(t, err)
	assert.True(t, n.Valid)
}
