// Package allocator owns the versioned profit split and executes distributions
// across the four pools.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TokenSentinel/internal/logger"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/store"
	"TokenSentinel/internal/transfer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSplit     = errors.New("split percentages must sum to 100")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrNotProposed      = errors.New("proposal already reviewed")
)

// FallbackSplit is used whenever no split has been activated.
var FallbackSplit = model.Percentages{Reinvestment: 70, Treasury: 20, Reward: 8, Originator: 2}

// Store is the persistence the allocator needs.
type Store interface {
	InsertSplit(ctx context.Context, sp model.AllocationSplit) error
	GetSplit(ctx context.Context, id string) (model.AllocationSplit, error)
	ActiveSplit(ctx context.Context) (model.AllocationSplit, error)
	ListSplits(ctx context.Context, limit int) ([]model.AllocationSplit, error)
	ActivateSplit(ctx context.Context, id, reviewer string, at time.Time) error
	RejectSplit(ctx context.Context, id, reviewer string) error

	RecordTransferAttempt(ctx context.Context, rec model.TransferRecord) error
	GetTransfer(ctx context.Context, eventID string, pool model.Pool) (model.TransferRecord, error)
	ListTransfers(ctx context.Context, eventID string) ([]model.TransferRecord, error)
	ListRetryableTransfers(ctx context.Context, since, staleBefore time.Time, maxAttempts int) ([]model.TransferRecord, error)
	ClaimTransfer(ctx context.Context, id string, staleBefore time.Time) (bool, error)
}

// Config tunes the allocator.
type Config struct {
	Epsilon float64
	// PoolWallets maps each pool to its destination address.
	PoolWallets map[model.Pool]string
	// RetryLookback bounds how old a failed transfer may be and still be retried.
	RetryLookback time.Duration
	// MaxAttempts caps the attempts per (profit event, pool), first try included.
	MaxAttempts int
	// StaleAfter is how long a claimed retry may sit before another pass reclaims it.
	StaleAfter time.Duration
}

// DefaultConfig returns the production settings without wallet addresses.
func DefaultConfig() Config {
	return Config{
		Epsilon:       0.01,
		RetryLookback: 24 * time.Hour,
		MaxAttempts:   3,
		StaleAfter:    10 * time.Minute,
	}
}

// Manager handles split governance and distribution.
type Manager struct {
	store    Store
	executor transfer.Transferer
	cfg      Config
	clock    func() time.Time
	log      zerolog.Logger
}

// NewManager creates a Manager.
func NewManager(st Store, executor transfer.Transferer, cfg Config) *Manager {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 0.01
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Manager{
		store:    st,
		executor: executor,
		cfg:      cfg,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      logger.GetForComponent("allocator"),
	}
}

// WithClock overrides the manager clock for deterministic tests.
func (m *Manager) WithClock(clock func() time.Time) {
	if clock != nil {
		m.clock = clock
	}
}

// ActiveSplit returns the active split, or the fallback when none is stored.
func (m *Manager) ActiveSplit(ctx context.Context) (model.AllocationSplit, error) {
	sp, err := m.store.ActiveSplit(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return model.AllocationSplit{
			ID:          "fallback",
			Percentages: FallbackSplit,
			Status:      model.SplitActive,
			Reasoning:   "no split activated",
			Confidence:  1,
		}, nil
	}
	if err != nil {
		return model.AllocationSplit{}, fmt.Errorf("load active split: %w", err)
	}
	return sp, nil
}

// Propose records a new split proposal and returns its id. Splits that do not
// sum to 100 are rejected, never clamped.
func (m *Manager) Propose(ctx context.Context, p model.Percentages, reasoning string, confidence float64, metrics map[string]float64) (string, error) {
	if !p.Valid(m.cfg.Epsilon) {
		return "", fmt.Errorf("%.4f%%: %w", p.Sum(), ErrInvalidSplit)
	}
	sp := model.AllocationSplit{
		ID:            uuid.NewString(),
		Percentages:   p,
		Status:        model.SplitProposed,
		Reasoning:     reasoning,
		Confidence:    confidence,
		SourceMetrics: metrics,
		ProposedAt:    m.clock(),
	}
	if err := m.store.InsertSplit(ctx, sp); err != nil {
		return "", fmt.Errorf("insert split: %w", err)
	}
	m.log.Info().
		Str("id", sp.ID).
		Float64("reinvestment", p.Reinvestment).
		Float64("treasury", p.Treasury).
		Float64("reward", p.Reward).
		Float64("originator", p.Originator).
		Msg("split proposed")
	return sp.ID, nil
}

// Review approves or rejects a proposal. Approval swaps the active split in a
// single transaction.
func (m *Manager) Review(ctx context.Context, id string, approve bool, reviewer string) error {
	var err error
	if approve {
		err = m.store.ActivateSplit(ctx, id, reviewer, m.clock())
	} else {
		err = m.store.RejectSplit(ctx, id, reviewer)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", id, ErrProposalNotFound)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%s: %w", id, ErrNotProposed)
	case err != nil:
		return fmt.Errorf("review split %s: %w", id, err)
	}
	m.log.Info().Str("id", id).Bool("approved", approve).Str("reviewer", reviewer).Msg("split reviewed")
	return nil
}

// History lists the most recent splits, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]model.AllocationSplit, error) {
	return m.store.ListSplits(ctx, limit)
}

// CalculateAmounts splits total across the pools. It has no side effects.
func CalculateAmounts(total decimal.Decimal, split model.Percentages) map[model.Pool]decimal.Decimal {
	out := make(map[model.Pool]decimal.Decimal, len(model.Pools))
	for _, pool := range model.Pools {
		out[pool] = total.Mul(decimal.NewFromFloat(split.Share(pool))).Shift(-2)
	}
	return out
}
