package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToScaled_QuoteRoundtrip(t *testing.T) {
	// numeric(8,3) quotes at scale 3
	values := []int64{1001, 2105, 10000, 999999}
	for _, v := range values {
		n := ScaledToNumeric(v, 3)
		result, err := NumericToScaled(n, 3)
		require.NoError(t, err, "value: %d", v)
		assert.Equal(t, v, result, "value: %d", v)
	}
}

func TestNumericToScaled_VariationRoundtrip(t *testing.T) {
	// numeric(8,2) variations at scale 2, signed
	values := []int64{0, 15, -12, 401, -401}
	for _, v := range values {
		n := ScaledToNumeric(v, 2)
		result, err := NumericToScaled(n, 2)
		require.NoError(t, err, "value: %d", v)
		assert.Equal(t, v, result, "value: %d", v)
	}
}

func TestNumericToScaled_WiderExponent(t *testing.T) {
	// 2 * 10^0 read at scale 3 → 2000
	n := pgtype.Numeric{Int: big.NewInt(2), Exp: 0, Valid: true}
	v, err := NumericToScaled(n, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), v)
}

func TestNumericToScaled_TruncatesExtraDigits(t *testing.T) {
	// 2.1056 read at scale 3 → 2105 (not 2106)
	n := pgtype.Numeric{Int: big.NewInt(21056), Exp: -4, Valid: true}
	v, err := NumericToScaled(n, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2105), v)
}

func TestNumericToScaled_TruncatesTowardZero(t *testing.T) {
	// -0.125 read at scale 2 → -12 (SQL trunc semantics, not floor)
	n := pgtype.Numeric{Int: big.NewInt(-125), Exp: -3, Valid: true}
	v, err := NumericToScaled(n, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-12), v)
}

func TestNumericToScaled_NullReturnsError(t *testing.T) {
	n := pgtype.Numeric{Valid: false}
	_, err := NumericToScaled(n, 3)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")
}

func TestNumericToScaled_Overflow(t *testing.T) {
	overflow := new(big.Int).SetInt64(math.MaxInt64)
	n := pgtype.Numeric{Int: overflow, Exp: 0, Valid: true}
	_, err := NumericToScaled(n, 3)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "overflows")
}
