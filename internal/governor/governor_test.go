package governor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"TokenSentinel/internal/model"
	"TokenSentinel/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "gov.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newGovernor(t *testing.T, s *store.Store, guardrails []Guardrail) *Governor {
	t.Helper()
	clock := func() time.Time { return now }
	if guardrails == nil {
		guardrails = Builtin(DefaultLimits(), s, clock)
	}
	g := New(s, guardrails, DefaultConfig())
	g.WithClock(clock)
	g.WithSeed(func() uint64 { return 42 })
	return g
}

func token(symbol string) Proposal {
	return Proposal{
		Action:     TokenCreation{Symbol: symbol, Name: "Test", Supply: decimal.NewFromInt(1_000_000_000)},
		Source:     "operator",
		Confidence: 0.9,
	}
}

func TestReview_CriticalRejects(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	g := newGovernor(t, s, nil)

	out, err := g.Review(ctx, Proposal{
		Action:     SplitChange{Proposed: model.Percentages{Reinvestment: 60, Treasury: 30, Reward: 10, Originator: 10}},
		Source:     "operator",
		Confidence: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionRejected, out.Review.Decision)
	assert.Equal(t, []string{"split_total"}, out.Review.Guardrails)
	assert.Equal(t, rejectConfidence, out.Review.Confidence)
	assert.NotEmpty(t, out.Review.PublicMessage)

	reviews, err := s.ListReviews(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, model.DecisionRejected, reviews[0].Decision)
	assert.Equal(t, uint64(42), reviews[0].Seed)
}

func TestReview_TokenCreationCap(t *testing.T) {
	ctx := context.Background()
	g := newGovernor(t, openStore(t), nil)

	for i := 0; i < 3; i++ {
		out, err := g.Review(ctx, token("TKN"))
		require.NoError(t, err)
		require.Equal(t, model.DecisionApproved, out.Review.Decision, "creation %d", i+1)
		assert.Equal(t, 0.9, out.Review.Confidence)
	}
	out, err := g.Review(ctx, token("TKN"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionRejected, out.Review.Decision)
	assert.Contains(t, out.Review.Guardrails, "token_creation_rate")
}

func TestReview_ModifiedMergesOverrides(t *testing.T) {
	g := newGovernor(t, openStore(t), nil)

	out, err := g.Review(context.Background(), Proposal{
		Action:     SplitChange{Proposed: model.Percentages{Reinvestment: 40, Treasury: 30, Reward: 20, Originator: 10}},
		Source:     "rules",
		Confidence: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionModified, out.Review.Decision)
	assert.Equal(t, []string{"reinvestment_floor"}, out.Review.Guardrails)
	assert.InDelta(t, 0.72, out.Review.Confidence, 1e-9)

	sc := out.Action.(SplitChange)
	assert.Equal(t, 50.0, sc.Proposed.Reinvestment)
	assert.InDelta(t, 25, sc.Proposed.Treasury, 1e-9)
	assert.InDelta(t, 16.6667, sc.Proposed.Reward, 1e-4)
	assert.InDelta(t, 8.3333, sc.Proposed.Originator, 1e-4)
	assert.InDelta(t, 100, sc.Proposed.Sum(), 1e-9)
	assert.Contains(t, string(out.Review.Payload), `"reinvestment":50`)
}

func TestReview_SymbolAndRewardOverrides(t *testing.T) {
	ctx := context.Background()
	g := newGovernor(t, openStore(t), nil)

	out, err := g.Review(ctx, token("moon-cat"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionModified, out.Review.Decision)
	assert.Equal(t, "MOONCAT", out.Action.(TokenCreation).Symbol)

	out, err = g.Review(ctx, Proposal{Action: RewardSelection{Amount: decimal.NewFromInt(500)}, Source: "operator", Confidence: 1})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionModified, out.Review.Decision)
	assert.True(t, out.Action.(RewardSelection).Amount.Equal(decimal.NewFromInt(100)))
}

func TestReview_DistributionBoundToPendingProfit(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	g := newGovernor(t, s, nil)
	distribute := func(amount int64) Proposal {
		return Proposal{
			Action:     ProfitDistribution{EventID: "ev", Asset: "SOL", Amount: decimal.NewFromInt(amount)},
			Source:     "rules",
			Confidence: 0.9,
		}
	}

	out, err := g.Review(ctx, distribute(10))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionRejected, out.Review.Decision)
	assert.Equal(t, []string{"profit_available"}, out.Review.Guardrails)

	require.NoError(t, s.RecordActivity(ctx, model.Activity{Kind: model.ActivityFee, Asset: "TKN", QuoteAmount: decimal.NewFromInt(5)}))

	out, err = g.Review(ctx, distribute(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionModified, out.Review.Decision)
	assert.Equal(t, []string{"profit_cap"}, out.Review.Guardrails)
	assert.True(t, out.Action.(ProfitDistribution).Amount.Equal(decimal.NewFromInt(5)))

	out, err = g.Review(ctx, distribute(3))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionApproved, out.Review.Decision)

	out, err = g.Review(ctx, distribute(0))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionRejected, out.Review.Decision)
}

func TestReview_DistributionWithoutLedgerFailsClosed(t *testing.T) {
	g := newGovernor(t, openStore(t), Builtin(DefaultLimits(), nil, func() time.Time { return now }))
	out, err := g.Review(context.Background(), Proposal{
		Action:     ProfitDistribution{EventID: "ev", Asset: "SOL", Amount: decimal.NewFromInt(1)},
		Source:     "operator",
		Confidence: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionRejected, out.Review.Decision)
	assert.Contains(t, out.Review.Reasoning, "check error")
}

func TestReview_TransferClampedAndNotPublished(t *testing.T) {
	g := newGovernor(t, openStore(t), nil)
	out, err := g.Review(context.Background(), Proposal{
		Action: Transfer{
			WalletClass: "treasury", Destination: "dest", Asset: "TKN",
			Amount: decimal.NewFromInt(100), TotalSupply: decimal.NewFromInt(1000),
		},
		Source:     "operator",
		Confidence: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionModified, out.Review.Decision)
	assert.True(t, out.Action.(Transfer).Amount.Equal(decimal.NewFromInt(50)))
	assert.Empty(t, out.Review.PublicMessage)
}

func failing(name string, sev Severity) Guardrail {
	return Guardrail{Name: name, Severity: sev, Check: func(context.Context, Proposal) (Result, error) {
		return Result{Reason: "always"}, nil
	}}
}

func TestReview_DeferredWhenManyUnfixable(t *testing.T) {
	g := newGovernor(t, openStore(t), []Guardrail{
		failing("a", Warning), failing("b", Warning), failing("c", Info),
	})
	out, err := g.Review(context.Background(), Proposal{Action: RewardSelection{Amount: decimal.NewFromInt(1)}, Source: "operator", Confidence: 1})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionDeferred, out.Review.Decision)
	assert.Equal(t, deferConfidence, out.Review.Confidence)
	assert.Equal(t, []string{"a", "b", "c"}, out.Review.Guardrails)
}

func TestReview_CriticalShortCircuits(t *testing.T) {
	called := false
	after := Guardrail{Name: "after", Severity: Info, Check: func(context.Context, Proposal) (Result, error) {
		called = true
		return pass(), nil
	}}
	g := newGovernor(t, openStore(t), []Guardrail{failing("w", Warning), failing("crit", Critical), after})
	out, err := g.Review(context.Background(), token("TKN"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionRejected, out.Review.Decision)
	assert.Equal(t, []string{"w", "crit"}, out.Review.Guardrails)
	assert.False(t, called)
}

type brokenCounter struct{}

func (brokenCounter) CountReviews(context.Context, model.ActionType, []model.Decision, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func TestReview_CheckErrorFailsClosed(t *testing.T) {
	g := newGovernor(t, openStore(t), []Guardrail{
		TokenCreationRate(brokenCounter{}, 3, time.Hour, func() time.Time { return now }),
	})
	out, err := g.Review(context.Background(), token("TKN"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionRejected, out.Review.Decision)
}

func TestReview_EntropyDeferralIsReproducible(t *testing.T) {
	ctx := context.Background()
	g := newGovernor(t, openStore(t), []Guardrail{failing("soft", Warning)})
	p := Proposal{Action: RewardSelection{Amount: decimal.NewFromInt(1)}, Source: "unknown", Confidence: 0}

	seen := map[model.Decision]int{}
	for seed := uint64(1); seed <= 200; seed++ {
		g.WithSeed(func() uint64 { return seed })
		first, err := g.Review(ctx, p)
		require.NoError(t, err)
		again, err := g.Review(ctx, p)
		require.NoError(t, err)

		assert.Equal(t, first.Review.Decision, again.Review.Decision)
		assert.Equal(t, first.Review.EntropyFactor, g.ReplayEntropy("unknown", 0, seed))
		assert.GreaterOrEqual(t, first.Review.EntropyFactor, 0.6)
		if first.Review.EntropyFactor <= EntropyThreshold {
			assert.Equal(t, model.DecisionApproved, first.Review.Decision)
		}
		if first.Review.Decision == model.DecisionApproved {
			assert.InDelta(t, 0, first.Review.Confidence, 1e-9)
		}
		seen[first.Review.Decision]++
	}
	assert.Positive(t, seen[model.DecisionApproved])
	assert.Positive(t, seen[model.DecisionDeferred])
}

func TestRaiseReinvestment_NoOthers(t *testing.T) {
	p := model.Percentages{Reinvestment: 100}
	assert.Equal(t, p, raiseReinvestment(p, 50))
}
