// Package calculator derives momentum indicators from bucketed activity series.
package calculator

import (
	"errors"
	"time"

	"TokenSentinel/internal/model"
)

var (
	ErrPeriod       = errors.New("period must be positive")
	ErrInsufficient = errors.New("not enough data")
)

// SMA computes the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrPeriod
	}
	if len(values) < period {
		return 0, ErrInsufficient
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// VolumeBuckets sums trade quote volume into n consecutive buckets of width
// ending at end. Index 0 is the oldest bucket. Rows outside the range are ignored.
func VolumeBuckets(rows []model.Activity, end time.Time, width time.Duration, n int) []float64 {
	if n <= 0 || width <= 0 {
		return nil
	}
	out := make([]float64, n)
	start := end.Add(-time.Duration(n) * width)
	for _, a := range rows {
		if a.Kind != model.ActivityTrade || a.At.Before(start) || !a.At.Before(end) {
			continue
		}
		idx := int(a.At.Sub(start) / width)
		if idx >= n {
			idx = n - 1
		}
		out[idx] += a.QuoteAmount.InexactFloat64()
	}
	return out
}
