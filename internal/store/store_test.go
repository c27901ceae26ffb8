package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCurveState() model.CurveState {
	return model.CurveState{
		VirtualBase:  decimal.NewFromInt(1000),
		VirtualQuote: decimal.NewFromInt(10),
		RealBase:     decimal.NewFromInt(800),
		RealQuote:    decimal.Zero,
		TotalSupply:  decimal.NewFromInt(1000),
	}
}

func TestRebind(t *testing.T) {
	s := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", s.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	s.driver = DriverSQLite
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

func TestCurveCompareAndSwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCurve(ctx, "ABC", testCurveState()))
	err := s.CreateCurve(ctx, "ABC", testCurveState())
	require.True(t, errors.Is(err, ErrDuplicate), "got %v", err)

	c, err := s.GetCurve(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)
	assert.True(t, c.State.VirtualBase.Equal(decimal.NewFromInt(1000)))

	next := c.State
	next.RealQuote = decimal.RequireFromString("1.25")
	ok, err := s.SwapCurve(ctx, "ABC", c.Version, next)
	require.NoError(t, err)
	assert.True(t, ok)

	// stale version loses
	ok, err = s.SwapCurve(ctx, "ABC", c.Version, next)
	require.NoError(t, err)
	assert.False(t, ok)

	c, err = s.GetCurve(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version)
	assert.Equal(t, "1.25", c.State.RealQuote.String())

	_, err = s.GetCurve(ctx, "NOPE")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func proposed(id string, p model.Percentages, at time.Time) model.AllocationSplit {
	return model.AllocationSplit{ID: id, Percentages: p, Status: model.SplitProposed, ProposedAt: at,
		SourceMetrics: map[string]float64{"volume": 12.5}}
}

func TestActivateSplit_SingleActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertSplit(ctx, proposed("a", model.Percentages{70, 20, 8, 2}, t0)))
	require.NoError(t, s.InsertSplit(ctx, proposed("b", model.Percentages{60, 25, 10, 5}, t0.Add(time.Minute))))

	require.NoError(t, s.ActivateSplit(ctx, "a", "ops", t0.Add(time.Hour)))
	active, err := s.ActiveSplit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", active.ID)
	assert.Equal(t, 12.5, active.SourceMetrics["volume"])

	require.NoError(t, s.ActivateSplit(ctx, "b", "ops", t0.Add(2*time.Hour)))
	active, err = s.ActiveSplit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", active.ID)

	old, err := s.GetSplit(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.SplitSuperseded, old.Status)
	require.NotNil(t, old.ValidUntil)
	assert.Equal(t, t0.Add(2*time.Hour), *old.ValidUntil)

	// a superseded split cannot come back
	err = s.ActivateSplit(ctx, "a", "ops", t0.Add(3*time.Hour))
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestActivateSplit_ConcurrentApprovals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	for _, id := range ids {
		require.NoError(t, s.InsertSplit(ctx, proposed(id, model.Percentages{70, 20, 8, 2}, t0)))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = s.ActivateSplit(ctx, id, "ops", t0.Add(time.Hour))
		}(id)
	}
	wg.Wait()

	splits, err := s.ListSplits(ctx, 10)
	require.NoError(t, err)
	active := 0
	for _, sp := range splits {
		if sp.Status == model.SplitActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestRejectSplit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertSplit(ctx, proposed("r", model.Percentages{70, 20, 8, 2}, time.Now())))
	require.NoError(t, s.RejectSplit(ctx, "r", "ops"))
	err := s.RejectSplit(ctx, "r", "ops")
	assert.True(t, errors.Is(err, ErrConflict))
	err = s.RejectSplit(ctx, "missing", "ops")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTransferAttempts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.WithClock(func() time.Time { return now })

	rec := model.TransferRecord{ProfitEventID: "ev", Pool: model.PoolTreasury, Amount: decimal.NewFromInt(20),
		Status: model.TransferFailed, Error: "boom"}
	require.NoError(t, s.RecordTransferAttempt(ctx, rec))

	got, err := s.GetTransfer(ctx, "ev", model.PoolTreasury)
	require.NoError(t, err)
	assert.Equal(t, model.TransferFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)

	pending, err := s.ListRetryableTransfers(ctx, now.Add(-time.Hour), now.Add(-10*time.Minute), 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	ok, err := s.ClaimTransfer(ctx, got.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ClaimTransfer(ctx, got.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	rec.Status, rec.Signature, rec.Error = model.TransferSucceeded, "sig", ""
	require.NoError(t, s.RecordTransferAttempt(ctx, rec))

	// a later failure report never overwrites the success
	rec.Status, rec.Signature, rec.Error = model.TransferFailed, "", "late"
	require.NoError(t, s.RecordTransferAttempt(ctx, rec))

	got, err = s.GetTransfer(ctx, "ev", model.PoolTreasury)
	require.NoError(t, err)
	assert.Equal(t, model.TransferSucceeded, got.Status)
	assert.Equal(t, "sig", got.Signature)
	assert.Equal(t, 2, got.Attempts)
}

func TestProofRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := model.SelectionProof{
		ID: "proof-1", EntropySource: "static", BlockID: "abc", BlockHeight: 42,
		SampledAt:  time.Date(2026, 1, 1, 0, 0, 0, 123456789, time.UTC),
		Candidates: []string{"w1", "w2"}, Weights: []uint64{3, 1}, TotalWeight: 4,
		RewardAmount: decimal.RequireFromString("2.5"), DrawValue: 18446744073709551615,
		Index: 1, Winner: "w2", Digest: "ff", CreatedAt: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}
	require.NoError(t, s.InsertProof(ctx, p))

	got, err := s.GetProof(ctx, "proof-1")
	require.NoError(t, err)
	assert.Equal(t, p.SampledAt, got.SampledAt)
	assert.Equal(t, p.Candidates, got.Candidates)
	assert.Equal(t, p.Weights, got.Weights)
	assert.Equal(t, p.DrawValue, got.DrawValue)
	assert.True(t, p.RewardAmount.Equal(got.RewardAmount))

	since := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	// an unpaid proof puts nobody in cooldown
	winners, err := s.RecentWinners(ctx, since)
	require.NoError(t, err)
	assert.Empty(t, winners)
	unpaid, err := s.UnpaidProofs(ctx, since)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, "proof-1", unpaid[0].ID)

	require.NoError(t, s.RecordActivity(ctx, model.Activity{
		Kind: model.ActivityReward, Wallet: "w2", Asset: "SOL", Note: "proof-1", At: p.CreatedAt,
	}))
	winners, err = s.RecentWinners(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2"}, winners)
	unpaid, err = s.UnpaidProofs(ctx, since)
	require.NoError(t, err)
	assert.Empty(t, unpaid)
}

func TestReviewsAndHeartbeats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, d := range []model.Decision{model.DecisionApproved, model.DecisionRejected, model.DecisionModified} {
		require.NoError(t, s.InsertReview(ctx, model.GovernorReview{
			ID: string(rune('a' + i)), ActionType: model.ActionTokenCreation, Source: "test",
			Guardrails: []string{}, Decision: d, Seed: 1 << 63, CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}
	n, err := s.CountReviews(ctx, model.ActionTokenCreation,
		[]model.Decision{model.DecisionApproved, model.DecisionModified}, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reviews, err := s.ListReviews(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reviews, 3)
	assert.Equal(t, uint64(1<<63), reviews[0].Seed)

	_, err = s.LatestHeartbeat(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.InsertHeartbeat(ctx, model.HeartbeatRecord{ID: "h1", At: t0, Interval: 2 * time.Hour,
		Triggered: true, Outcome: "ok", NextAt: t0.Add(2 * time.Hour)}))
	require.NoError(t, s.InsertHeartbeat(ctx, model.HeartbeatRecord{ID: "h2", At: t0.Add(2 * time.Hour), Interval: time.Hour,
		Triggered: true, Outcome: "error: x", NextAt: t0.Add(3 * time.Hour)}))
	h, err := s.LatestHeartbeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h2", h.ID)
	assert.Equal(t, time.Hour, h.Interval)
	assert.True(t, h.Triggered)
}

func TestActivityStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	rows := []model.Activity{
		{Kind: model.ActivityTrade, Wallet: "w1", Asset: "ABC", Side: model.SideBuy, QuoteAmount: decimal.NewFromInt(5), At: t0},
		{Kind: model.ActivityTrade, Wallet: "w2", Asset: "ABC", Side: model.SideSell, QuoteAmount: decimal.NewFromInt(3), At: t0.Add(time.Minute)},
		{Kind: model.ActivityWalletConnect, Wallet: "w1", At: t0},
		{Kind: model.ActivityWalletConnect, Wallet: "w1", At: t0.Add(time.Minute)},
		{Kind: model.ActivityWalletConnect, Wallet: "w3", At: t0.Add(time.Minute)},
		{Kind: model.ActivityTrade, Wallet: "w1", Asset: "ABC", QuoteAmount: decimal.NewFromInt(100), At: t0.Add(-48 * time.Hour)},
	}
	for _, a := range rows {
		require.NoError(t, s.RecordActivity(ctx, a))
	}

	st, err := s.ActivityStats(ctx, model.ActivityFilter{Since: t0.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Trades)
	assert.Equal(t, 2, st.Wallets)
	assert.Equal(t, "8", st.Volume.String())

	trades, err := s.ListActivity(ctx, model.ActivityFilter{Kinds: []model.ActivityKind{model.ActivityTrade}, Wallet: "w1"})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].At.Before(trades[1].At))
}
