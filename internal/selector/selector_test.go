package selector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"TokenSentinel/internal/entropy"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/store"
	"TokenSentinel/internal/transfer"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampledAt = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

func testSeed() entropy.Sample {
	return entropy.Sample{Source: "rpc", BlockID: "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N", Height: 2792, ObservedAt: sampledAt}
}

func tenCandidates() ([]string, []uint64) {
	c := make([]string, 10)
	w := make([]uint64, 10)
	for i := range c {
		c[i] = fmt.Sprintf("wallet-%02d", i)
		w[i] = 1
	}
	return c, w
}

func TestSelect_Reproducible(t *testing.T) {
	c, w := tenCandidates()
	reward := decimal.RequireFromString("2.5")

	first, err := Select(testSeed(), c, w, reward)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		p, err := Select(testSeed(), c, w, reward)
		require.NoError(t, err)
		assert.Equal(t, first.Winner, p.Winner)
		assert.Equal(t, first.DrawValue, p.DrawValue)
		assert.Equal(t, first.Digest, p.Digest)
	}
	assert.True(t, Verify(first))
	assert.Equal(t, uint64(10), first.TotalWeight)
	assert.Less(t, first.DrawValue, first.TotalWeight)
	assert.Equal(t, c[first.Index], first.Winner)
}

func TestSelect_FirstCumulativeExceeds(t *testing.T) {
	// only the middle candidate carries weight, so every draw lands on it
	p, err := Select(testSeed(), []string{"a", "b", "c"}, []uint64{0, 5, 0}, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "b", p.Winner)
	assert.Equal(t, 1, p.Index)
}

func TestSelect_SeedChangesOutcome(t *testing.T) {
	c, w := tenCandidates()
	seen := map[uint64]bool{}
	for h := uint64(0); h < 20; h++ {
		seed := testSeed()
		seed.Height = h
		p, err := Select(seed, c, w, decimal.NewFromInt(1))
		require.NoError(t, err)
		seen[p.DrawValue] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestSelect_Errors(t *testing.T) {
	_, err := Select(testSeed(), nil, nil, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNoCandidates)

	_, err = Select(testSeed(), []string{"a", "b"}, []uint64{1}, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrWeightMismatch)

	_, err = Select(testSeed(), []string{"b", "a"}, []uint64{1, 1}, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrUnsorted)

	_, err = Select(testSeed(), []string{"a", "a"}, []uint64{1, 1}, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrUnsorted)

	_, err = Select(testSeed(), []string{"a"}, []uint64{0}, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNoCandidates)

	_, err = Select(testSeed(), []string{"a", "b"}, []uint64{^uint64(0), 1}, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrWeightOverflow)
}

func TestVerify_DetectsTampering(t *testing.T) {
	c, w := tenCandidates()
	p, err := Select(testSeed(), c, w, decimal.NewFromInt(3))
	require.NoError(t, err)
	p = Seal(p, "proof-1", sampledAt.Add(time.Minute))
	require.True(t, Verify(p))

	other := (p.Index + 1) % len(c)
	mutations := map[string]func(*model.SelectionProof){
		"winner":  func(p *model.SelectionProof) { p.Winner = c[other] },
		"index":   func(p *model.SelectionProof) { p.Index = other },
		"both":    func(p *model.SelectionProof) { p.Index, p.Winner = other, c[other] },
		"block":   func(p *model.SelectionProof) { p.BlockID += "x" },
		"height":  func(p *model.SelectionProof) { p.BlockHeight++ },
		"time":    func(p *model.SelectionProof) { p.SampledAt = p.SampledAt.Add(time.Nanosecond) },
		"source":  func(p *model.SelectionProof) { p.EntropySource = "static" },
		"reward":  func(p *model.SelectionProof) { p.RewardAmount = decimal.NewFromInt(4) },
		"weights": func(p *model.SelectionProof) { p.Weights = append([]uint64{2}, p.Weights[1:]...) },
		"draw":    func(p *model.SelectionProof) { p.DrawValue = (p.DrawValue + 1) % p.TotalWeight },
		"total":   func(p *model.SelectionProof) { p.TotalWeight++ },
		"digest":  func(p *model.SelectionProof) { p.Digest = "00" + p.Digest[2:] },
		"dropped": func(p *model.SelectionProof) { p.Candidates, p.Weights = p.Candidates[:9], p.Weights[:9] },
		"id":      func(p *model.SelectionProof) { p.ID = "proof-2" },
		"created": func(p *model.SelectionProof) { p.CreatedAt = p.CreatedAt.Add(time.Second) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			q := p
			q.Candidates = append([]string(nil), p.Candidates...)
			q.Weights = append([]uint64(nil), p.Weights...)
			mutate(&q)
			if name == "digest" && q.Digest == p.Digest {
				q.Digest = "11" + p.Digest[2:]
			}
			assert.False(t, Verify(q))
		})
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "sel.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestService_AwardPersistsVerifiableProof(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	record := func(kind model.ActivityKind, wallet string, at time.Time) {
		require.NoError(t, s.RecordActivity(ctx, model.Activity{Kind: kind, Wallet: wallet, Asset: "TKN", Side: model.SideBuy, At: at}))
	}
	for i := 0; i < 15; i++ {
		record(model.ActivityTrade, "alice", now.Add(-time.Hour))
	}
	record(model.ActivityTrade, "bob", now.Add(-2*time.Hour))
	record(model.ActivityTrade, "carol", now.Add(-48*time.Hour)) // outside the window
	record(model.ActivityTrade, "mallory", now.Add(-time.Hour))
	record(model.ActivityFlag, "mallory", now.Add(-time.Hour))

	mock := transfer.NewMockExecutor()
	svc := NewService(s, entropy.StaticSource{Value: testSeed()}, mock, DefaultConfig())
	svc.WithClock(func() time.Time { return now })

	candidates, weights, err := svc.Eligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, candidates)
	assert.Equal(t, []uint64{10, 1}, weights)

	award, err := svc.Award(ctx, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.NotEmpty(t, award.Receipt.Signature)
	require.Len(t, mock.Transfers, 1)
	assert.Equal(t, award.Proof.Winner, mock.Transfers[0].Destination)
	assert.Equal(t, "reward", mock.Transfers[0].WalletClass)

	stored, ok, err := svc.VerifyStored(ctx, award.Proof.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, award.Proof.Digest, stored.Digest)

	// the winner is now in cooldown
	candidates, _, err = svc.Eligible(ctx)
	require.NoError(t, err)
	assert.NotContains(t, candidates, award.Proof.Winner)
}

func rewardFixture(t *testing.T) (*Service, *store.Store, *transfer.MockExecutor) {
	t.Helper()
	ctx := context.Background()
	s := openStore(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordActivity(ctx, model.Activity{Kind: model.ActivityTrade, Wallet: "alice", Asset: "TKN", At: now.Add(-time.Hour)}))
	}
	require.NoError(t, s.RecordActivity(ctx, model.Activity{Kind: model.ActivityTrade, Wallet: "bob", Asset: "TKN", At: now.Add(-time.Hour)}))

	mock := transfer.NewMockExecutor()
	svc := NewService(s, entropy.StaticSource{Value: testSeed()}, mock, DefaultConfig())
	svc.WithClock(func() time.Time { return now })
	return svc, s, mock
}

func TestService_FailedPayoutKeepsWinnerEligibleUntilPaid(t *testing.T) {
	ctx := context.Background()
	svc, _, mock := rewardFixture(t)
	mock.FailNext("reward", 1)

	award, err := svc.Award(ctx, decimal.NewFromInt(2))
	require.Error(t, err)
	require.NotEmpty(t, award.Proof.ID)
	assert.Empty(t, mock.Transfers)

	candidates, _, err := svc.Eligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, candidates)

	report, err := svc.RetryUnpaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, PayoutReport{Attempted: 1, Paid: 1}, report)
	require.Len(t, mock.Transfers, 1)
	assert.Equal(t, award.Proof.Winner, mock.Transfers[0].Destination)
	assert.Equal(t, "reward:"+award.Proof.ID, mock.Transfers[0].IdempotencyKey)
	assert.True(t, mock.Transfers[0].Amount.Equal(decimal.NewFromInt(2)))

	// paid now: the winner is in cooldown and nothing is left to retry
	candidates, _, err = svc.Eligible(ctx)
	require.NoError(t, err)
	assert.NotContains(t, candidates, award.Proof.Winner)

	report, err = svc.RetryUnpaid(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Len(t, mock.Transfers, 1)
}

func TestService_RetryUnpaidSkipsWinnerPaidSince(t *testing.T) {
	ctx := context.Background()
	svc, _, mock := rewardFixture(t)
	mock.FailNext("reward", 1)

	first, err := svc.Award(ctx, decimal.NewFromInt(1))
	require.Error(t, err)

	// same seed and candidates: the same wallet wins again and is paid
	second, err := svc.Award(ctx, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Equal(t, first.Proof.Winner, second.Proof.Winner)

	report, err := svc.RetryUnpaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, PayoutReport{Skipped: 1}, report)
	assert.Len(t, mock.Transfers, 1)
}

func TestService_EntropyFailureAborts(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.RecordActivity(ctx, model.Activity{Kind: model.ActivityTrade, Wallet: "alice"}))

	mock := transfer.NewMockExecutor()
	svc := NewService(s, entropy.StaticSource{Err: fmt.Errorf("rpc down")}, mock, DefaultConfig())
	_, err := svc.Award(ctx, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, entropy.ErrUnavailable)
	assert.Empty(t, mock.Transfers)

	proofs, err := s.ListProofs(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, proofs)
}

func TestService_NoCandidates(t *testing.T) {
	svc := NewService(openStore(t), entropy.StaticSource{Value: testSeed()}, transfer.NewMockExecutor(), DefaultConfig())
	_, err := svc.Award(context.Background(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNoCandidates)
}
