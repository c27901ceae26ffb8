package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"TokenSentinel/internal/logger"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store persists heartbeat records.
type Store interface {
	InsertHeartbeat(ctx context.Context, h model.HeartbeatRecord) error
	LatestHeartbeat(ctx context.Context) (model.HeartbeatRecord, error)
}

// StatsSource reports recent market activity.
type StatsSource interface {
	Stats(ctx context.Context, window time.Duration) (model.ActivityStats, error)
}

// Cycle runs one decision pipeline pass and describes its outcome.
type Cycle func(ctx context.Context) (string, error)

// Heartbeat gates and runs decision cycles.
type Heartbeat struct {
	store Store
	stats StatsSource
	cycle Cycle
	cfg   Config
	clock func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	inFlight atomic.Bool
	log      zerolog.Logger
}

// New creates a Heartbeat.
func New(st Store, stats StatsSource, cycle Cycle, cfg Config) *Heartbeat {
	return &Heartbeat{
		store: st,
		stats: stats,
		cycle: cycle,
		cfg:   cfg,
		clock: func() time.Time { return time.Now().UTC() },
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:   logger.GetForComponent("heartbeat"),
	}
}

// WithClock overrides the heartbeat clock for deterministic tests.
func (h *Heartbeat) WithClock(clock func() time.Time) {
	if clock != nil {
		h.clock = clock
	}
}

// WithRand overrides the random source for deterministic tests.
func (h *Heartbeat) WithRand(rng *rand.Rand) {
	if rng != nil {
		h.rngMu.Lock()
		h.rng = rng
		h.rngMu.Unlock()
	}
}

// ShouldTrigger reports whether the scheduled instant of the newest record has
// passed. With no record at all it triggers immediately.
func (h *Heartbeat) ShouldTrigger(ctx context.Context) (bool, time.Time, error) {
	last, err := h.store.LatestHeartbeat(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return true, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("load latest heartbeat: %w", err)
	}
	return !h.clock().Before(last.NextAt), last.NextAt, nil
}

// Beat runs one cycle when due. It returns false without doing anything while
// another beat is in flight or before the scheduled time. A triggered beat
// always writes a record; a failed cycle becomes the record's outcome.
func (h *Heartbeat) Beat(ctx context.Context) (model.HeartbeatRecord, bool, error) {
	return h.beat(ctx, false)
}

// BeatNow runs one cycle regardless of the schedule. It still yields to a beat
// in flight and writes the same record, so the next scheduled beat counts
// from it.
func (h *Heartbeat) BeatNow(ctx context.Context) (model.HeartbeatRecord, bool, error) {
	return h.beat(ctx, true)
}

func (h *Heartbeat) beat(ctx context.Context, force bool) (model.HeartbeatRecord, bool, error) {
	if !h.inFlight.CompareAndSwap(false, true) {
		h.log.Debug().Msg("beat already in flight, skipping")
		return model.HeartbeatRecord{}, false, nil
	}
	defer h.inFlight.Store(false)

	if !force {
		due, next, err := h.ShouldTrigger(ctx)
		if err != nil {
			return model.HeartbeatRecord{}, false, err
		}
		if !due {
			h.log.Debug().Time("next_at", next).Msg("not due")
			return model.HeartbeatRecord{}, false, nil
		}
	}

	now := h.clock()
	stats, err := h.stats.Stats(ctx, h.cfg.StatsWindow)
	if err != nil {
		h.log.Warn().Err(err).Msg("market stats unavailable, scoring as idle")
	}
	market := MarketActivityScore(stats, h.cfg)

	h.rngMu.Lock()
	tod := TimeOfDayScore(now, h.cfg, h.rng)
	ent := EntropyScore(h.rng)
	interval := NextInterval(h.cfg, market, tod, ent, h.rng)
	h.rngMu.Unlock()

	outcome := h.run(ctx)

	rec := model.HeartbeatRecord{
		ID:           uuid.NewString(),
		At:           now,
		Interval:     interval,
		MarketScore:  market,
		TimeScore:    tod,
		EntropyScore: ent,
		Triggered:    true,
		Outcome:      outcome,
		NextAt:       now.Add(interval),
	}
	if err := h.store.InsertHeartbeat(ctx, rec); err != nil {
		h.log.Error().Err(err).Msg("persist heartbeat")
		return rec, true, fmt.Errorf("persist heartbeat: %w", err)
	}
	h.log.Info().
		Float64("market", market).
		Float64("time", tod).
		Float64("entropy", ent).
		Dur("interval", interval).
		Time("next_at", rec.NextAt).
		Str("outcome", outcome).
		Msg("heartbeat")
	return rec, true, nil
}

func (h *Heartbeat) run(ctx context.Context) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("cycle panicked")
			outcome = fmt.Sprintf("failed: panic: %v", r)
		}
	}()
	out, err := h.cycle(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("cycle failed")
		return "failed: " + err.Error()
	}
	return out
}
