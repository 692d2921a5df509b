package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// NumericToScaled converts a pgtype.Numeric to an int64 holding the value
// at the given number of fractional digits (scale 3 turns 2.105 into 2105).
// Digits beyond the scale are truncated. Returns an error if the value is
// NULL or overflows int64.
func NumericToScaled(n pgtype.Numeric, scale int32) (int64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("numeric value is NULL")
	}

	// pgtype.Numeric stores value as Int * 10^Exp; shifting by the target
	// scale yields the fixed-point integer.
	bi := new(big.Int).Set(n.Int)
	shift := n.Exp + scale

	if shift > 0 {
		multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shift)), nil)
		bi.Mul(bi, multiplier)
	} else if shift < 0 {
		// Quo truncates toward zero, matching SQL trunc.
		divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-shift)), nil)
		bi.Quo(bi, divisor)
	}

	if !bi.IsInt64() {
		return 0, fmt.Errorf("numeric value %s overflows int64 at scale %d", bi.String(), scale)
	}

	return bi.Int64(), nil
}

// ScaledToNumeric converts a fixed-point int64 back to pgtype.Numeric
// (v 2105 at scale 3 becomes 2.105).
func ScaledToNumeric(v int64, scale int32) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              big.NewInt(v),
		Exp:              -scale,
		NaN:              false,
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}
