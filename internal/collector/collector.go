// Package collector gathers market activity for the heartbeat and the decision snapshot.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TokenSentinel/internal/calculator"
	"TokenSentinel/internal/logger"
	"TokenSentinel/internal/model"

	"github.com/rs/zerolog"
)

// MockFetcher returns controllable fixed stats for development and testing.
type MockFetcher struct {
	Stats model.ActivityStats
	Err   error
	Calls int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchStats(_ context.Context, _ time.Duration) (model.ActivityStats, error) {
	m.Calls++
	if m.Err != nil {
		return model.ActivityStats{}, m.Err
	}
	return m.Stats, nil
}

// TrendConfig shapes the volume series behind Trend.
type TrendConfig struct {
	Width     time.Duration
	Buckets   int
	SMAPeriod int
	RSIPeriod int
}

func DefaultTrendConfig() TrendConfig {
	return TrendConfig{Width: time.Hour, Buckets: 24, SMAPeriod: 6, RSIPeriod: 14}
}

// Collector reads stats from a primary fetcher and falls back to a second one.
type Collector struct {
	Primary  Fetcher
	Fallback Fetcher

	activity ActivityStore
	trend    TrendConfig
	now      func() time.Time
	log      zerolog.Logger
}

// NewCollector creates a new Collector. Either fetcher may be nil, not both.
func NewCollector(primary, fallback Fetcher) *Collector {
	return &Collector{
		Primary:  primary,
		Fallback: fallback,
		trend:    DefaultTrendConfig(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.GetForComponent("collector"),
	}
}

// WithActivity enables Trend over the local activity log.
func (c *Collector) WithActivity(st ActivityStore, cfg TrendConfig) *Collector {
	c.activity = st
	if cfg.Width > 0 && cfg.Buckets > 0 {
		c.trend = cfg
	}
	return c
}

// WithClock overrides the clock used for trend bucketing.
func (c *Collector) WithClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Stats returns the activity aggregate for the trailing window.
func (c *Collector) Stats(ctx context.Context, window time.Duration) (model.ActivityStats, error) {
	if c.Primary == nil && c.Fallback == nil {
		return model.ActivityStats{}, errors.New("collector has no fetcher")
	}
	if c.Primary != nil {
		stats, err := c.Primary.FetchStats(ctx, window)
		if err == nil {
			return stats, nil
		}
		if c.Fallback == nil {
			return model.ActivityStats{}, fmt.Errorf("%s: %w", c.Primary.Name(), err)
		}
		c.log.Warn().Err(err).Str("primary", c.Primary.Name()).Str("fallback", c.Fallback.Name()).
			Msg("primary fetcher failed, using fallback")
	}
	stats, err := c.Fallback.FetchStats(ctx, window)
	if err != nil {
		return model.ActivityStats{}, fmt.Errorf("%s: %w", c.Fallback.Name(), err)
	}
	return stats, nil
}

// Trend buckets recent trade volume and derives SMA, RSI and range indicators.
func (c *Collector) Trend(ctx context.Context) (model.ActivityTrend, error) {
	if c.activity == nil {
		return model.ActivityTrend{}, errors.New("collector has no activity store")
	}
	end := c.now()
	since := end.Add(-time.Duration(c.trend.Buckets) * c.trend.Width)
	rows, err := c.activity.ListActivity(ctx, model.ActivityFilter{
		Kinds: []model.ActivityKind{model.ActivityTrade},
		Since: since,
	})
	if err != nil {
		return model.ActivityTrend{}, fmt.Errorf("list trades: %w", err)
	}

	buckets := calculator.VolumeBuckets(rows, end, c.trend.Width, c.trend.Buckets)
	tr := model.ActivityTrend{Buckets: buckets, Width: c.trend.Width}

	if tr.SMA, err = calculator.SMA(buckets, min(c.trend.SMAPeriod, len(buckets))); err != nil {
		c.log.Warn().Err(err).Msg("SMA calculation failed")
	}
	if tr.RSI, err = calculator.RSI(buckets, c.trend.RSIPeriod); err != nil {
		c.log.Warn().Err(err).Msg("RSI calculation failed")
	}
	if tr.Peak, tr.Trough, err = calculator.Range(buckets, 0); err != nil {
		c.log.Warn().Err(err).Msg("range calculation failed")
	}

	c.log.Debug().Float64("sma", tr.SMA).Float64("rsi", tr.RSI).Int("trades", len(rows)).Msg("trend computed")
	return tr, nil
}
