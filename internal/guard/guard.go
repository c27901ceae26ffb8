// Package guard holds read-only validators over recent activity. Callers decide
// whether a failed check blocks, flags or only logs.
package guard

import (
	"fmt"
	"sort"
	"time"

	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// Limits bundles every guard threshold.
type Limits struct {
	Rate         RateLimits
	MinTrade     decimal.Decimal
	MaxTrade     decimal.Decimal
	MaxSupplyPct float64
	WhalePct     float64
	PumpWindow   time.Duration
	PumpMinPairs int
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		Rate:         RateLimits{PerMinute: 5, PerHour: 30, PerDay: 200},
		MinTrade:     decimal.RequireFromString("0.01"),
		MaxTrade:     decimal.NewFromInt(10000),
		MaxSupplyPct: 2,
		WhalePct:     5,
		PumpWindow:   10 * time.Minute,
		PumpMinPairs: 3,
	}
}

// Verdict is the result of a single threshold check.
type Verdict struct {
	OK     bool
	Reason string
}

func pass() Verdict { return Verdict{OK: true} }

// CheckTradeSize enforces the trade-size floor and ceiling.
func CheckTradeSize(amount, min, max decimal.Decimal) Verdict {
	if amount.LessThan(min) {
		return Verdict{Reason: fmt.Sprintf("trade size %s below minimum %s", amount, min)}
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return Verdict{Reason: fmt.Sprintf("trade size %s above maximum %s", amount, max)}
	}
	return pass()
}

// SupplySharePct returns amount as a percentage of supply.
func SupplySharePct(amount, supply decimal.Decimal) float64 {
	if !supply.IsPositive() {
		return 0
	}
	return amount.Div(supply).Shift(2).InexactFloat64()
}

// CheckSupplyShare enforces the per-trade percentage-of-supply ceiling.
func CheckSupplyShare(amount, supply decimal.Decimal, maxPct float64) Verdict {
	pct := SupplySharePct(amount, supply)
	if maxPct > 0 && pct > maxPct {
		return Verdict{Reason: fmt.Sprintf("trade is %.4f%% of supply, ceiling %.2f%%", pct, maxPct)}
	}
	return pass()
}

// Trade is the subset of a trade the holdings and pump checks need.
type Trade struct {
	Side model.Side
	Base decimal.Decimal
	At   time.Time
}

// HoldingsPct is bought-minus-sold base as a percentage of supply, never below zero.
func HoldingsPct(trades []Trade, supply decimal.Decimal) float64 {
	net := decimal.Zero
	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			net = net.Add(t.Base)
		case model.SideSell:
			net = net.Sub(t.Base)
		}
	}
	if net.IsNegative() {
		return 0
	}
	return SupplySharePct(net, supply)
}

// IsWhale reports whether a holdings percentage meets the whale threshold.
func IsWhale(holdingsPct, thresholdPct float64) bool {
	return thresholdPct > 0 && holdingsPct >= thresholdPct
}

// DetectPumpDump counts buy→sell pairs where the sell follows an unmatched buy
// within window. It flags when the count meets minPairs.
func DetectPumpDump(trades []Trade, window time.Duration, minPairs int) (int, bool) {
	sorted := make([]Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	var open []time.Time
	pairs := 0
	for _, t := range sorted {
		switch t.Side {
		case model.SideBuy:
			open = append(open, t.At)
		case model.SideSell:
			// match the most recent buy still inside the window
			for i := len(open) - 1; i >= 0; i-- {
				if t.At.Sub(open[i]) <= window {
					pairs++
					open = append(open[:i], open[i+1:]...)
					break
				}
			}
		}
	}
	return pairs, minPairs > 0 && pairs >= minPairs
}
