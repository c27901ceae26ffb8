package decision

import (
	"context"
	"fmt"
	"math"

	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// Factor is one weighted input of the rule score.
type Factor struct {
	Name       string
	Raw        float64
	Weight     float64
	Weighted   float64
	Commentary string
}

// RuleConfig holds the thresholds of the rule source.
type RuleConfig struct {
	VolumeTarget    float64
	WalletTarget    int
	TradeTarget     int
	MinProfit       decimal.Decimal
	RewardShare     decimal.Decimal // fraction of pending profit offered as a reward
	MaxTokensPerDay int
	TokenSupply     decimal.Decimal
	SymbolPrefix    string
}

// DefaultRuleConfig returns conservative thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		VolumeTarget:    5000,
		WalletTarget:    50,
		TradeTarget:     200,
		MinProfit:       decimal.NewFromInt(10),
		RewardShare:     decimal.RequireFromString("0.1"),
		MaxTokensPerDay: 2,
		TokenSupply:     decimal.NewFromInt(1_000_000_000),
		SymbolPrefix:    "SNT",
	}
}

// tiers maps the total score to an intent, highest first.
var tiers = []struct {
	MinScore float64
	Kind     Kind
}{
	{1.2, KindCreateToken},
	{0.4, KindSelectReward},
	{-0.8, KindHold},
}

// RuleSource is the deterministic fallback: factors, weighted score, tier, intent.
type RuleSource struct {
	cfg RuleConfig
}

// NewRuleSource creates a RuleSource.
func NewRuleSource(cfg RuleConfig) *RuleSource {
	return &RuleSource{cfg: cfg}
}

func (r *RuleSource) Name() string { return "rules" }

// Decide never fails.
func (r *RuleSource) Decide(_ context.Context, snap Snapshot) (Intent, error) {
	factors := r.Factors(snap)
	total := 0.0
	for _, f := range factors {
		total += f.Weighted
	}
	confidence := math.Min(1, 0.5+math.Abs(total)/4)
	reasoning := fmt.Sprintf("score %+.2f (%s)", total, summarize(factors))

	// realized profit is handled before any market-driven tier
	if r.cfg.MinProfit.IsPositive() && snap.PendingProfit.GreaterThanOrEqual(r.cfg.MinProfit) {
		profit := snap.PendingProfit
		return Intent{
			Kind:       KindDistributeProfit,
			Reasoning:  fmt.Sprintf("pending profit %s reached %s; %s", profit, r.cfg.MinProfit, reasoning),
			Confidence: 0.9,
			Source:     r.Name(),
			Profit:     &profit,
		}, nil
	}

	kind := KindAdjustSplit
	for _, t := range tiers {
		if total >= t.MinScore {
			kind = t.Kind
			break
		}
	}

	in := Intent{Kind: kind, Reasoning: reasoning, Confidence: confidence, Source: r.Name()}
	switch kind {
	case KindCreateToken:
		if snap.TokensLastDay >= r.cfg.MaxTokensPerDay {
			in.Kind = KindHold
			in.Reasoning = fmt.Sprintf("%d tokens launched today; %s", snap.TokensLastDay, reasoning)
			break
		}
		n := snap.TokensLastDay + len(snap.Curves) + 1
		in.Token = &TokenParams{
			Symbol: fmt.Sprintf("%s%d", r.cfg.SymbolPrefix, n),
			Name:   fmt.Sprintf("Sentinel Series %d", n),
			Supply: r.cfg.TokenSupply,
		}
	case KindSelectReward:
		reward := snap.PendingProfit.Mul(r.cfg.RewardShare).Truncate(9)
		if !reward.IsPositive() {
			in.Kind = KindHold
			in.Reasoning = "no profit to fund a reward; " + reasoning
			break
		}
		in.Reward = &reward
	case KindAdjustSplit:
		// quiet market: move reward share out of treasury to pull activity back
		next := rebalance(snap.Split, 5)
		if next == snap.Split {
			in.Kind = KindHold
			break
		}
		in.Split = &next
	}
	return in, nil
}

// Factors scores the snapshot. Each raw score lies in [-2, 2].
func (r *RuleSource) Factors(snap Snapshot) []Factor {
	volume := snap.Stats.Volume.InexactFloat64()
	return []Factor{
		ratioFactor("volume", volume, r.cfg.VolumeTarget, 0.4),
		ratioFactor("wallets", float64(snap.Stats.Wallets), float64(r.cfg.WalletTarget), 0.25),
		ratioFactor("trades", float64(snap.Stats.Trades), float64(r.cfg.TradeTarget), 0.2),
		graduationFactor(snap.Curves, 0.15),
	}
}

// ratioFactor scores value against target: at target 0, double +2, none -2.
func ratioFactor(name string, value, target, weight float64) Factor {
	var raw float64
	if target > 0 {
		ratio := value / target
		switch {
		case ratio >= 2:
			raw = 2
		case ratio >= 1.5:
			raw = 1.5
		case ratio >= 1.2:
			raw = 1
		case ratio >= 1:
			raw = 0.5
		case ratio >= 0.75:
			raw = 0
		case ratio >= 0.5:
			raw = -0.5
		case ratio >= 0.25:
			raw = -1
		case ratio > 0:
			raw = -1.5
		default:
			raw = -2
		}
	}
	return Factor{
		Name:       name,
		Raw:        raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("%.0f of %.0f", value, target),
	}
}

// graduationFactor rewards curves close to graduation.
func graduationFactor(curves []CurveSummary, weight float64) Factor {
	best := 0.0
	for _, c := range curves {
		if !c.Graduated && c.ProgressPct > best {
			best = c.ProgressPct
		}
	}
	var raw float64
	switch {
	case best >= 90:
		raw = 2
	case best >= 60:
		raw = 1
	case best >= 30:
		raw = 0
	case len(curves) == 0:
		raw = 0
	default:
		raw = -1
	}
	return Factor{
		Name:       "graduation",
		Raw:        raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("best progress %.0f%%", best),
	}
}

// rebalance moves up to step points from treasury to reward.
func rebalance(p model.Percentages, step float64) model.Percentages {
	move := math.Min(step, p.Treasury)
	p.Treasury -= move
	p.Reward += move
	return p
}

func summarize(factors []Factor) string {
	s := ""
	for i, f := range factors {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s %+.1f", f.Name, f.Raw)
	}
	return s
}
