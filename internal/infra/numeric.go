package infra

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// NumericToFloat64 converts a pgtype.Numeric (from a PostgreSQL numeric column) to float64.
// Returns an error if the value is NULL, NaN or infinite.
func NumericToFloat64(n pgtype.Numeric) (float64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("numeric value is NULL")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return 0, fmt.Errorf("numeric value is not finite")
	}
	if n.Int == nil {
		return 0, nil
	}

	// pgtype.Numeric stores value as Int * 10^Exp; ParseFloat rounds the
	// decimal form correctly.
	f, err := strconv.ParseFloat(fmt.Sprintf("%se%d", n.Int.String(), n.Exp), 64)
	if err != nil {
		return 0, fmt.Errorf("numeric value %se%d: %w", n.Int.String(), n.Exp, err)
	}
	return f, nil
}

// Float64ToNumeric converts a finite float64 to pgtype.Numeric using its shortest
// decimal representation, so 0.1 is written as 0.1 rather than its binary expansion.
func Float64ToNumeric(v float64) (pgtype.Numeric, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return pgtype.Numeric{}, fmt.Errorf("cannot store non-finite amount %v", v)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	bi, ok := new(big.Int).SetString(intPart+frac, 10)
	if !ok {
		return pgtype.Numeric{}, fmt.Errorf("cannot parse amount %s", s)
	}
	return pgtype.Numeric{
		Int:              bi,
		Exp:              int32(-len(frac)),
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}, nil
}

// OptionalNumeric converts a nullable amount. A nil pointer becomes SQL NULL.
func OptionalNumeric(v *float64) (pgtype.Numeric, error) {
	if v == nil {
		return pgtype.Numeric{}, nil
	}
	return Float64ToNumeric(*v)
}
