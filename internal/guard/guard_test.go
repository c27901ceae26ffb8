package guard

import (
	"testing"
	"time"

	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCheckRate_FirstCeilingWins(t *testing.T) {
	limits := RateLimits{PerMinute: 2, PerHour: 3, PerDay: 10}

	// three events in the last hour but only one in the last minute: hour breached
	events := []time.Time{t0.Add(-50 * time.Minute), t0.Add(-20 * time.Minute), t0.Add(-30 * time.Second)}
	v := CheckRate(events, t0, limits)
	require.False(t, v.Allowed)
	assert.Equal(t, "hour", v.Window)
	assert.Equal(t, 3, v.Count)
	assert.Equal(t, 10*time.Minute, v.RetryAfter)

	// two in the last minute breaches the minute ceiling before the hour one
	events = append(events, t0.Add(-10*time.Second))
	v = CheckRate(events, t0, limits)
	require.False(t, v.Allowed)
	assert.Equal(t, "minute", v.Window)
	assert.Equal(t, 30*time.Second, v.RetryAfter)
}

func TestCheckRate_RetryAfterWaitsForEnoughExpiries(t *testing.T) {
	// four events against a ceiling of two: the two oldest must age out
	events := []time.Time{t0.Add(-10 * time.Second), t0.Add(-50 * time.Second), t0.Add(-20 * time.Second), t0.Add(-40 * time.Second)}
	v := CheckRate(events, t0, RateLimits{PerMinute: 2})
	require.False(t, v.Allowed)
	assert.Equal(t, 4, v.Count)
	assert.Equal(t, 40*time.Second, v.RetryAfter)

	// after RetryAfter only one event remains in the window
	v = CheckRate(events, t0.Add(v.RetryAfter), RateLimits{PerMinute: 2})
	assert.True(t, v.Allowed)
}

func TestCheckRate_Allowed(t *testing.T) {
	v := CheckRate([]time.Time{t0.Add(-2 * time.Hour)}, t0, RateLimits{PerMinute: 1, PerHour: 1})
	assert.True(t, v.Allowed)

	v = CheckRate(nil, t0, RateLimits{})
	assert.True(t, v.Allowed)
}

func TestCheckTradeSize(t *testing.T) {
	l := DefaultLimits()
	assert.True(t, CheckTradeSize(decimal.NewFromInt(1), l.MinTrade, l.MaxTrade).OK)
	assert.False(t, CheckTradeSize(decimal.RequireFromString("0.001"), l.MinTrade, l.MaxTrade).OK)
	assert.False(t, CheckTradeSize(decimal.NewFromInt(10001), l.MinTrade, l.MaxTrade).OK)
}

func TestCheckSupplyShare(t *testing.T) {
	supply := decimal.NewFromInt(1_000_000)
	assert.True(t, CheckSupplyShare(decimal.NewFromInt(20_000), supply, 2).OK)
	v := CheckSupplyShare(decimal.NewFromInt(20_001), supply, 2)
	assert.False(t, v.OK)
	assert.Contains(t, v.Reason, "of supply")
}

func TestHoldingsAndWhale(t *testing.T) {
	supply := decimal.NewFromInt(1000)
	trades := []Trade{
		{Side: model.SideBuy, Base: decimal.NewFromInt(80)},
		{Side: model.SideSell, Base: decimal.NewFromInt(20)},
	}
	pct := HoldingsPct(trades, supply)
	assert.InDelta(t, 6.0, pct, 1e-9)
	assert.True(t, IsWhale(pct, 5))
	assert.False(t, IsWhale(pct, 7))

	oversold := []Trade{{Side: model.SideSell, Base: decimal.NewFromInt(5)}}
	assert.Zero(t, HoldingsPct(oversold, supply))
}

func TestDetectPumpDump(t *testing.T) {
	buy := func(m int) Trade {
		return Trade{Side: model.SideBuy, Base: decimal.NewFromInt(1), At: t0.Add(time.Duration(m) * time.Minute)}
	}
	sell := func(m int) Trade {
		return Trade{Side: model.SideSell, Base: decimal.NewFromInt(1), At: t0.Add(time.Duration(m) * time.Minute)}
	}

	trades := []Trade{buy(0), sell(2), buy(5), sell(6), buy(20), sell(29)}
	pairs, flagged := DetectPumpDump(trades, 10*time.Minute, 3)
	assert.Equal(t, 3, pairs)
	assert.True(t, flagged)

	// the sell at minute 45 is too far from any buy
	trades = []Trade{buy(0), sell(2), buy(30), sell(45)}
	pairs, flagged = DetectPumpDump(trades, 10*time.Minute, 3)
	assert.Equal(t, 1, pairs)
	assert.False(t, flagged)
}
