package selector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"TokenSentinel/internal/entropy"
	"TokenSentinel/internal/logger"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/transfer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store is the persistence the selection service needs.
type Store interface {
	ListActivity(ctx context.Context, f model.ActivityFilter) ([]model.Activity, error)
	RecordActivity(ctx context.Context, a model.Activity) error
	RecentWinners(ctx context.Context, since time.Time) ([]string, error)
	InsertProof(ctx context.Context, p model.SelectionProof) error
	UnpaidProofs(ctx context.Context, since time.Time) ([]model.SelectionProof, error)
	GetProof(ctx context.Context, id string) (model.SelectionProof, error)
}

// Config tunes eligibility and payout.
type Config struct {
	ActivityWindow    time.Duration
	FlagLookback      time.Duration
	WinnerCooldown    time.Duration
	MaxWeight         uint64
	EntropyTimeout    time.Duration
	RewardAsset       string
	RewardWalletClass string
	// PayoutRetryLookback bounds how old an unpaid proof may be and still be retried.
	PayoutRetryLookback time.Duration
}

// DefaultConfig returns the production eligibility rules.
func DefaultConfig() Config {
	return Config{
		ActivityWindow:      24 * time.Hour,
		FlagLookback:        7 * 24 * time.Hour,
		WinnerCooldown:      7 * 24 * time.Hour,
		MaxWeight:           10,
		EntropyTimeout:      5 * time.Second,
		RewardAsset:         "SOL",
		RewardWalletClass:   string(model.PoolReward),
		PayoutRetryLookback: 24 * time.Hour,
	}
}

// Award is the outcome of one reward selection.
type Award struct {
	Proof   model.SelectionProof
	Receipt transfer.Receipt
}

// PayoutReport summarises a pass over unpaid proofs.
type PayoutReport struct {
	Attempted int
	Paid      int
	Failed    int
	Skipped   int
}

// Service filters eligible wallets, draws a winner and pays the reward.
type Service struct {
	store    Store
	entropy  entropy.Source
	executor transfer.Transferer
	cfg      Config
	clock    func() time.Time
	log      zerolog.Logger
}

// NewService creates a Service.
func NewService(st Store, src entropy.Source, executor transfer.Transferer, cfg Config) *Service {
	return &Service{
		store:    st,
		entropy:  src,
		executor: executor,
		cfg:      cfg,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      logger.GetForComponent("selector"),
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// Eligible returns the sorted candidate wallets and their weights: wallets that
// traded inside the activity window, minus flagged wallets and recently paid winners.
// Weight is the trade count, capped.
func (s *Service) Eligible(ctx context.Context) ([]string, []uint64, error) {
	now := s.clock()
	trades, err := s.store.ListActivity(ctx, model.ActivityFilter{
		Kinds: []model.ActivityKind{model.ActivityTrade},
		Since: now.Add(-s.cfg.ActivityWindow),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load trades: %w", err)
	}
	flags, err := s.store.ListActivity(ctx, model.ActivityFilter{
		Kinds: []model.ActivityKind{model.ActivityFlag},
		Since: now.Add(-s.cfg.FlagLookback),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load flags: %w", err)
	}
	winners, err := s.store.RecentWinners(ctx, now.Add(-s.cfg.WinnerCooldown))
	if err != nil {
		return nil, nil, fmt.Errorf("load recent winners: %w", err)
	}

	excluded := make(map[string]bool, len(flags)+len(winners))
	for _, f := range flags {
		excluded[f.Wallet] = true
	}
	for _, w := range winners {
		excluded[w] = true
	}

	counts := make(map[string]uint64)
	for _, t := range trades {
		if t.Wallet == "" || excluded[t.Wallet] {
			continue
		}
		counts[t.Wallet]++
	}

	candidates := make([]string, 0, len(counts))
	for w := range counts {
		candidates = append(candidates, w)
	}
	sort.Strings(candidates)
	weights := make([]uint64, len(candidates))
	for i, c := range candidates {
		weights[i] = counts[c]
		if s.cfg.MaxWeight > 0 && weights[i] > s.cfg.MaxWeight {
			weights[i] = s.cfg.MaxWeight
		}
	}
	return candidates, weights, nil
}

// Award draws a winner for reward and pays it. The proof is persisted before
// the payout; a failed payout returns the proof alongside the error and leaves
// it for RetryUnpaid. The winner enters cooldown only once paid.
func (s *Service) Award(ctx context.Context, reward decimal.Decimal) (Award, error) {
	if !reward.IsPositive() {
		return Award{}, fmt.Errorf("reward %s must be positive", reward)
	}
	candidates, weights, err := s.Eligible(ctx)
	if err != nil {
		return Award{}, err
	}
	if len(candidates) == 0 {
		return Award{}, ErrNoCandidates
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.EntropyTimeout)
	seed, err := s.entropy.Sample(sctx)
	cancel()
	if err != nil {
		s.log.Warn().Err(err).Str("source", s.entropy.Name()).Msg("entropy sample failed, aborting selection")
		return Award{}, fmt.Errorf("sample entropy: %w", err)
	}

	proof, err := Select(seed, candidates, weights, reward)
	if err != nil {
		return Award{}, err
	}
	proof = Seal(proof, uuid.NewString(), s.clock())
	if err := s.store.InsertProof(ctx, proof); err != nil {
		return Award{}, fmt.Errorf("persist proof: %w", err)
	}
	s.log.Info().
		Str("proof", proof.ID).
		Str("winner", proof.Winner).
		Int("candidates", len(candidates)).
		Uint64("draw", proof.DrawValue).
		Uint64("total_weight", proof.TotalWeight).
		Msg("reward winner selected")

	receipt, err := s.pay(ctx, proof)
	if err != nil {
		return Award{Proof: proof}, err
	}
	return Award{Proof: proof, Receipt: receipt}, nil
}

// RetryUnpaid re-sends the payout of every unpaid proof inside the retry
// lookback. The idempotency key is the one the first attempt used. A proof
// whose winner was paid for another draw inside the cooldown is skipped.
func (s *Service) RetryUnpaid(ctx context.Context) (PayoutReport, error) {
	now := s.clock()
	proofs, err := s.store.UnpaidProofs(ctx, now.Add(-s.cfg.PayoutRetryLookback))
	if err != nil {
		return PayoutReport{}, fmt.Errorf("load unpaid proofs: %w", err)
	}
	winners, err := s.store.RecentWinners(ctx, now.Add(-s.cfg.WinnerCooldown))
	if err != nil {
		return PayoutReport{}, fmt.Errorf("load recent winners: %w", err)
	}
	paid := make(map[string]bool, len(winners))
	for _, w := range winners {
		paid[w] = true
	}

	var report PayoutReport
	for _, p := range proofs {
		if paid[p.Winner] {
			report.Skipped++
			continue
		}
		report.Attempted++
		if _, err := s.pay(ctx, p); err != nil {
			report.Failed++
			continue
		}
		report.Paid++
		paid[p.Winner] = true
	}
	if report.Attempted > 0 {
		s.log.Info().Int("attempted", report.Attempted).Int("paid", report.Paid).
			Int("failed", report.Failed).Msg("reward payout retry pass")
	}
	return report, nil
}

// pay sends the reward named by proof and records the reward activity that
// marks the proof paid.
func (s *Service) pay(ctx context.Context, proof model.SelectionProof) (transfer.Receipt, error) {
	receipt, err := s.executor.Transfer(ctx, transfer.Instruction{
		WalletClass:    s.cfg.RewardWalletClass,
		Destination:    proof.Winner,
		Asset:          s.cfg.RewardAsset,
		Amount:         proof.RewardAmount,
		Memo:           "reward " + proof.ID,
		IdempotencyKey: "reward:" + proof.ID,
	})
	if err != nil {
		s.log.Error().Err(err).Str("proof", proof.ID).Msg("reward payout failed")
		return transfer.Receipt{}, fmt.Errorf("pay reward: %w", err)
	}
	if err := s.store.RecordActivity(ctx, model.Activity{
		Kind:        model.ActivityReward,
		Wallet:      proof.Winner,
		Asset:       s.cfg.RewardAsset,
		QuoteAmount: proof.RewardAmount,
		Note:        proof.ID,
		At:          s.clock(),
	}); err != nil {
		s.log.Error().Err(err).Str("proof", proof.ID).Msg("record reward activity")
	}
	return receipt, nil
}

// VerifyStored loads a persisted proof and verifies it.
func (s *Service) VerifyStored(ctx context.Context, id string) (model.SelectionProof, bool, error) {
	p, err := s.store.GetProof(ctx, id)
	if err != nil {
		return model.SelectionProof{}, false, err
	}
	return p, Verify(p), nil
}
