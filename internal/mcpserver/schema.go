package mcpserver

import (
	"math"

	"wagerboard/internal/apperr"
)

const defaultLeaderboardLimit = 10

// wholeAmount converts a JSON number argument to points. Fractional,
// non-finite and out-of-range values are rejected.
func wholeAmount(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
		return 0, apperr.ErrInvalidAmount
	}
	return int64(v), nil
}
