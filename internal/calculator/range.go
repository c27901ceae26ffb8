package calculator

import "math"

// Range returns the high and low of the last lookback values.
// A lookback of zero or more than len(values) scans the whole series.
func Range(values []float64, lookback int) (high, low float64, err error) {
	if len(values) == 0 {
		return 0, 0, ErrInsufficient
	}
	start := 0
	if lookback > 0 && lookback < len(values) {
		start = len(values) - lookback
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, v := range values[start:] {
		high = math.Max(high, v)
		low = math.Min(low, v)
	}
	return high, low, nil
}
