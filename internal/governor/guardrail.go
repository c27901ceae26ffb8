package governor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// Severity ranks a guardrail. A failing critical guardrail rejects outright.
type Severity string

const (
	Critical Severity = "critical"
	Warning  Severity = "warning"
	Info     Severity = "info"
)

// Result is the outcome of one guardrail check. Override, when set, rewrites
// the action so that it would pass.
type Result struct {
	Passed   bool
	Reason   string
	Override func(Action) Action
}

func pass() Result { return Result{Passed: true} }

// Guardrail is a named, independent check.
type Guardrail struct {
	Name     string
	Severity Severity
	Check    func(ctx context.Context, p Proposal) (Result, error)
}

// ReviewCounter counts past reviews, for rate guardrails.
type ReviewCounter interface {
	CountReviews(ctx context.Context, action model.ActionType, decisions []model.Decision, since time.Time) (int, error)
}

// ProfitLedger reports realized profit that has not been distributed yet.
type ProfitLedger interface {
	PendingProfit(ctx context.Context) (decimal.Decimal, error)
}

// Ledger is the history the built-in guardrails read.
type Ledger interface {
	ReviewCounter
	ProfitLedger
}

// Limits are the thresholds of the built-in guardrails.
type Limits struct {
	SplitEpsilon       float64
	ReinvestmentFloor  float64
	TokensPerHour      int
	MaxTransferPct     float64
	MaxReward          decimal.Decimal
	MinConfidence      float64
	AllowedDestination []string
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		SplitEpsilon:      0.01,
		ReinvestmentFloor: 50,
		TokensPerHour:     3,
		MaxTransferPct:    5,
		MaxReward:         decimal.NewFromInt(100),
		MinConfidence:     0.5,
	}
}

// Builtin returns the built-in guardrails in evaluation order.
func Builtin(limits Limits, ledger Ledger, clock func() time.Time) []Guardrail {
	var (
		counter ReviewCounter
		profit  ProfitLedger
	)
	if ledger != nil {
		counter, profit = ledger, ledger
	}
	return []Guardrail{
		SplitTotal(limits.SplitEpsilon),
		ReinvestmentFloor(limits.ReinvestmentFloor),
		ProfitAvailable(profit),
		ProfitCap(profit),
		TokenCreationRate(counter, limits.TokensPerHour, time.Hour, clock),
		TokenSymbolFormat(),
		TransferSupplyShare(limits.MaxTransferPct),
		TransferDestination(limits.AllowedDestination),
		RewardAmountCap(limits.MaxReward),
		LowConfidence(limits.MinConfidence),
	}
}

// SplitTotal requires split percentages to sum to 100 within epsilon.
func SplitTotal(epsilon float64) Guardrail {
	return Guardrail{
		Name:     "split_total",
		Severity: Critical,
		Check: func(_ context.Context, p Proposal) (Result, error) {
			sc, ok := p.Action.(SplitChange)
			if !ok || sc.Proposed.Valid(epsilon) {
				return pass(), nil
			}
			return Result{Reason: fmt.Sprintf("split sums to %.4f%%", sc.Proposed.Sum())}, nil
		},
	}
}

// ReinvestmentFloor flags a reinvestment share below floor and suggests
// raising it, taking the difference proportionally from the other pools.
func ReinvestmentFloor(floor float64) Guardrail {
	return Guardrail{
		Name:     "reinvestment_floor",
		Severity: Warning,
		Check: func(_ context.Context, p Proposal) (Result, error) {
			sc, ok := p.Action.(SplitChange)
			if !ok || sc.Proposed.Reinvestment >= floor {
				return pass(), nil
			}
			res := Result{Reason: fmt.Sprintf("reinvestment %.2f%% below floor %.2f%%", sc.Proposed.Reinvestment, floor)}
			others := sc.Proposed.Treasury + sc.Proposed.Reward + sc.Proposed.Originator
			if others > 0 {
				res.Override = func(a Action) Action {
					sc := a.(SplitChange)
					sc.Proposed = raiseReinvestment(sc.Proposed, floor)
					return sc
				}
			}
			return res, nil
		},
	}
}

func raiseReinvestment(p model.Percentages, floor float64) model.Percentages {
	diff := floor - p.Reinvestment
	others := p.Treasury + p.Reward + p.Originator
	if diff <= 0 || others <= 0 {
		return p
	}
	p.Treasury -= diff * p.Treasury / others
	p.Reward -= diff * p.Reward / others
	p.Originator -= diff * p.Originator / others
	p.Reinvestment = floor
	return p
}

// ProfitAvailable rejects a distribution when there is no realized profit to
// distribute. A missing ledger fails closed.
func ProfitAvailable(ledger ProfitLedger) Guardrail {
	return Guardrail{
		Name:     "profit_available",
		Severity: Critical,
		Check: func(ctx context.Context, p Proposal) (Result, error) {
			pd, ok := p.Action.(ProfitDistribution)
			if !ok {
				return pass(), nil
			}
			if !pd.Amount.IsPositive() {
				return Result{Reason: fmt.Sprintf("distribution amount %s is not positive", pd.Amount)}, nil
			}
			if ledger == nil {
				return Result{}, errors.New("no profit ledger")
			}
			pending, err := ledger.PendingProfit(ctx)
			if err != nil {
				return Result{}, fmt.Errorf("pending profit: %w", err)
			}
			if !pending.IsPositive() {
				return Result{Reason: "no realized profit pending"}, nil
			}
			return pass(), nil
		},
	}
}

// ProfitCap flags a distribution above the pending profit and suggests the
// pending amount.
func ProfitCap(ledger ProfitLedger) Guardrail {
	return Guardrail{
		Name:     "profit_cap",
		Severity: Warning,
		Check: func(ctx context.Context, p Proposal) (Result, error) {
			pd, ok := p.Action.(ProfitDistribution)
			if !ok {
				return pass(), nil
			}
			if ledger == nil {
				return Result{}, errors.New("no profit ledger")
			}
			pending, err := ledger.PendingProfit(ctx)
			if err != nil {
				return Result{}, fmt.Errorf("pending profit: %w", err)
			}
			if pd.Amount.LessThanOrEqual(pending) {
				return pass(), nil
			}
			return Result{
				Reason: fmt.Sprintf("distribution %s exceeds pending profit %s", pd.Amount, pending),
				Override: func(a Action) Action {
					pd := a.(ProfitDistribution)
					pd.Amount = pending
					return pd
				},
			}, nil
		},
	}
}

// TokenCreationRate caps approved token creations in a rolling window.
func TokenCreationRate(counter ReviewCounter, ceiling int, window time.Duration, clock func() time.Time) Guardrail {
	return Guardrail{
		Name:     "token_creation_rate",
		Severity: Critical,
		Check: func(ctx context.Context, p Proposal) (Result, error) {
			if p.Action.Type() != model.ActionTokenCreation || counter == nil {
				return pass(), nil
			}
			n, err := counter.CountReviews(ctx, model.ActionTokenCreation,
				[]model.Decision{model.DecisionApproved, model.DecisionModified}, clock().Add(-window))
			if err != nil {
				return Result{}, fmt.Errorf("count token creations: %w", err)
			}
			if n >= ceiling {
				return Result{Reason: fmt.Sprintf("%d token creations in the last %s, cap %d", n, window, ceiling)}, nil
			}
			return pass(), nil
		},
	}
}

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{2,9}$`)

// TokenSymbolFormat requires 3-10 uppercase alphanumerics starting with a
// letter, suggesting a normalized symbol when one exists.
func TokenSymbolFormat() Guardrail {
	return Guardrail{
		Name:     "token_symbol_format",
		Severity: Warning,
		Check: func(_ context.Context, p Proposal) (Result, error) {
			tc, ok := p.Action.(TokenCreation)
			if !ok || symbolPattern.MatchString(tc.Symbol) {
				return pass(), nil
			}
			res := Result{Reason: fmt.Sprintf("symbol %q is not 3-10 uppercase alphanumerics", tc.Symbol)}
			if fixed := normalizeSymbol(tc.Symbol); symbolPattern.MatchString(fixed) {
				res.Override = func(a Action) Action {
					tc := a.(TokenCreation)
					tc.Symbol = fixed
					return tc
				}
			}
			return res, nil
		},
	}
}

func normalizeSymbol(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

// TransferSupplyShare caps a single transfer as a percentage of supply,
// suggesting the capped amount.
func TransferSupplyShare(maxPct float64) Guardrail {
	return Guardrail{
		Name:     "transfer_supply_share",
		Severity: Warning,
		Check: func(_ context.Context, p Proposal) (Result, error) {
			tr, ok := p.Action.(Transfer)
			if !ok || !tr.TotalSupply.IsPositive() {
				return pass(), nil
			}
			limit := tr.TotalSupply.Mul(decimal.NewFromFloat(maxPct)).Shift(-2)
			if tr.Amount.LessThanOrEqual(limit) {
				return pass(), nil
			}
			return Result{
				Reason: fmt.Sprintf("transfer %s exceeds %.2f%% of supply (%s)", tr.Amount, maxPct, limit),
				Override: func(a Action) Action {
					tr := a.(Transfer)
					tr.Amount = limit
					return tr
				},
			}, nil
		},
	}
}

// TransferDestination requires a destination, restricted to allowed when the
// list is non-empty.
func TransferDestination(allowed []string) Guardrail {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return Guardrail{
		Name:     "transfer_destination",
		Severity: Warning,
		Check: func(_ context.Context, p Proposal) (Result, error) {
			tr, ok := p.Action.(Transfer)
			if !ok {
				return pass(), nil
			}
			if strings.TrimSpace(tr.Destination) == "" {
				return Result{Reason: "transfer has no destination"}, nil
			}
			if len(set) > 0 && !set[tr.Destination] {
				return Result{Reason: fmt.Sprintf("destination %s is not allowlisted", tr.Destination)}, nil
			}
			return pass(), nil
		},
	}
}

// RewardAmountCap caps a single reward, suggesting the cap.
func RewardAmountCap(ceiling decimal.Decimal) Guardrail {
	return Guardrail{
		Name:     "reward_amount_cap",
		Severity: Warning,
		Check: func(_ context.Context, p Proposal) (Result, error) {
			rs, ok := p.Action.(RewardSelection)
			if !ok || !ceiling.IsPositive() || rs.Amount.LessThanOrEqual(ceiling) {
				return pass(), nil
			}
			return Result{
				Reason: fmt.Sprintf("reward %s above cap %s", rs.Amount, ceiling),
				Override: func(a Action) Action {
					rs := a.(RewardSelection)
					rs.Amount = ceiling
					return rs
				},
			}, nil
		},
	}
}

// LowConfidence notes proposals the source itself is unsure about.
func LowConfidence(floor float64) Guardrail {
	return Guardrail{
		Name:     "low_confidence",
		Severity: Info,
		Check: func(_ context.Context, p Proposal) (Result, error) {
			if p.Confidence >= floor {
				return pass(), nil
			}
			return Result{Reason: fmt.Sprintf("source confidence %.2f below %.2f", p.Confidence, floor)}, nil
		},
	}
}
