// Package heartbeat decides when the engine wakes up: a jittered interval
// shaped by market activity, time of day and entropy.
package heartbeat

import (
	"math/rand/v2"
	"time"

	"TokenSentinel/internal/model"
)

// Config shapes the interval.
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration

	// UTC hour windows, start inclusive, end exclusive.
	PeakStart, PeakEnd int
	OffStart, OffEnd   int

	VolumeCap float64
	WalletCap int
	TradeCap  int

	VolumeWeight float64
	WalletWeight float64
	TradeWeight  float64

	// StatsWindow is the activity window fed to the market score.
	StatsWindow time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MinInterval:  time.Hour,
		MaxInterval:  6 * time.Hour,
		PeakStart:    14,
		PeakEnd:      22,
		OffStart:     2,
		OffEnd:       8,
		VolumeCap:    10000,
		WalletCap:    100,
		TradeCap:     500,
		VolumeWeight: 0.5,
		WalletWeight: 0.2,
		TradeWeight:  0.3,
		StatsWindow:  time.Hour,
	}
}

// MarketActivityScore blends capped, normalized volume, wallet and trade
// counts into [0,1].
func MarketActivityScore(stats model.ActivityStats, cfg Config) float64 {
	volume := ratio(stats.Volume.InexactFloat64(), cfg.VolumeCap)
	wallets := ratio(float64(stats.Wallets), float64(cfg.WalletCap))
	trades := ratio(float64(stats.Trades), float64(cfg.TradeCap))
	total := cfg.VolumeWeight + cfg.WalletWeight + cfg.TradeWeight
	if total <= 0 {
		return 0
	}
	return clamp01((volume*cfg.VolumeWeight + wallets*cfg.WalletWeight + trades*cfg.TradeWeight) / total)
}

// TimeOfDayScore is high in the peak window, low in the off window, middling
// otherwise, jittered uniformly inside each band.
func TimeOfDayScore(t time.Time, cfg Config, rng *rand.Rand) float64 {
	h := t.UTC().Hour()
	switch {
	case inWindow(h, cfg.PeakStart, cfg.PeakEnd):
		return uniform(rng, 0.7, 1.0)
	case inWindow(h, cfg.OffStart, cfg.OffEnd):
		return uniform(rng, 0.1, 0.3)
	default:
		return uniform(rng, 0.4, 0.6)
	}
}

// EntropyScore is uniform noise plus a small symmetric jitter, clamped to [0,1].
func EntropyScore(rng *rand.Rand) float64 {
	return clamp01(rng.Float64() + uniform(rng, -0.1, 0.1))
}

// NextInterval draws a base uniformly in [min,max], shortens it for busy
// markets and peak hours, perturbs it by entropy, and clamps it back.
func NextInterval(cfg Config, market, timeOfDay, entropy float64, rng *rand.Rand) time.Duration {
	lo, hi := cfg.MinInterval, cfg.MaxInterval
	if hi < lo {
		lo, hi = hi, lo
	}
	base := float64(lo) + rng.Float64()*float64(hi-lo)

	marketInfluence := 1 - 0.3*clamp01(market)
	timeInfluence := 1 - 0.2*clamp01(timeOfDay)
	entropyInfluence := 1 + (clamp01(entropy)-0.5)*0.3

	d := time.Duration(base * marketInfluence * timeInfluence * entropyInfluence)
	switch {
	case d < lo:
		return lo
	case d > hi:
		return hi
	}
	return d
}

func inWindow(h, start, end int) bool {
	if start <= end {
		return h >= start && h < end
	}
	// window wraps midnight
	return h >= start || h < end
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func ratio(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return clamp01(v / limit)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
