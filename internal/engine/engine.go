// Package engine runs one autonomous cycle: gather a snapshot, ask the decision
// source for an intent, review it with the governor and execute what passes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TokenSentinel/internal/allocator"
	"TokenSentinel/internal/curve"
	"TokenSentinel/internal/decision"
	"TokenSentinel/internal/governor"
	"TokenSentinel/internal/logger"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/selector"
	"TokenSentinel/internal/store"
	"TokenSentinel/internal/transfer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store is the part of the ledger the engine reads and appends to directly.
type Store interface {
	ListCurves(ctx context.Context) ([]model.Curve, error)
	GetCurve(ctx context.Context, asset string) (model.Curve, error)
	ListActivity(ctx context.Context, f model.ActivityFilter) ([]model.Activity, error)
	RecordActivity(ctx context.Context, a model.Activity) error
	LatestHeartbeat(ctx context.Context) (model.HeartbeatRecord, error)
	PendingProfit(ctx context.Context) (decimal.Decimal, error)
}

// Market reports aggregate activity, usually a collector.Collector.
type Market interface {
	Stats(ctx context.Context, window time.Duration) (model.ActivityStats, error)
}

// Trender optionally adds a volume trend to the snapshot.
type Trender interface {
	Trend(ctx context.Context) (model.ActivityTrend, error)
}

type Launcher interface {
	Launch(ctx context.Context, req curve.LaunchRequest) (model.CurveState, transfer.Receipt, error)
}

type Allocator interface {
	ActiveSplit(ctx context.Context) (model.AllocationSplit, error)
	Propose(ctx context.Context, p model.Percentages, reasoning string, confidence float64, metrics map[string]float64) (string, error)
	Review(ctx context.Context, id string, approve bool, reviewer string) error
	Distribute(ctx context.Context, ev model.ProfitEvent) (allocator.Distribution, error)
}

type Selector interface {
	Award(ctx context.Context, reward decimal.Decimal) (selector.Award, error)
}

// Announcer publishes reviews that carry a public message.
type Announcer interface {
	Announce(ctx context.Context, r model.GovernorReview) error
}

// Deps are the collaborators of an Engine. Trend and Announcer may be nil.
type Deps struct {
	Store     Store
	Market    Market
	Trend     Trender
	Source    decision.Source
	Governor  *governor.Governor
	Launcher  Launcher
	Allocator Allocator
	Selector  Selector
	Executor  transfer.Transferer
	Announcer Announcer
}

// Config holds the engine's own settings.
type Config struct {
	// StatsWindow is the activity window of the decision snapshot.
	StatsWindow time.Duration
	// QuoteAsset is the asset profits are realised and distributed in.
	QuoteAsset string
	// Creator receives the mint of every launched token.
	Creator          string
	GraduationTarget decimal.Decimal
	// GovernorReviewer names the governor in split review columns.
	GovernorReviewer string
}

func DefaultConfig() Config {
	return Config{
		StatsWindow:      24 * time.Hour,
		QuoteAsset:       "SOL",
		GraduationTarget: curve.DefaultParams().GraduationTarget,
		GovernorReviewer: "governor",
	}
}

// Result is the end state of one executed proposal.
type Result struct {
	Review  model.GovernorReview
	Outcome string
}

// Engine wires the decision pipeline together.
type Engine struct {
	d     Deps
	cfg   Config
	clock func() time.Time
	log   zerolog.Logger
}

// New creates an Engine.
func New(d Deps, cfg Config) *Engine {
	return &Engine{
		d:     d,
		cfg:   cfg,
		clock: func() time.Time { return time.Now().UTC() },
		log:   logger.GetForComponent("engine"),
	}
}

// WithClock overrides the engine clock for deterministic tests.
func (e *Engine) WithClock(clock func() time.Time) {
	if clock != nil {
		e.clock = clock
	}
}

// RunCycle is one heartbeat cycle. The returned string is recorded as the
// heartbeat outcome; an error means the cycle failed before or during execution.
func (e *Engine) RunCycle(ctx context.Context) (string, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	in, err := e.d.Source.Decide(ctx, snap)
	if err != nil {
		return "", fmt.Errorf("decide: %w", err)
	}
	e.log.Info().
		Str("kind", string(in.Kind)).
		Str("source", in.Source).
		Float64("confidence", in.Confidence).
		Msg("intent received")

	if in.Kind == decision.KindHold {
		return "hold: " + in.Reasoning, nil
	}
	p, err := e.proposal(ctx, in, snap)
	if err != nil {
		return "", err
	}
	res, err := e.Execute(ctx, p, snapshotMetrics(snap))
	return res.Outcome, err
}

// Snapshot gathers the decision context. Only store failures abort it.
func (e *Engine) Snapshot(ctx context.Context) (decision.Snapshot, error) {
	now := e.clock()
	snap := decision.Snapshot{At: now, PendingProfit: decimal.Zero}

	stats, err := e.d.Market.Stats(ctx, e.cfg.StatsWindow)
	if err != nil {
		e.log.Warn().Err(err).Msg("market stats unavailable, snapshot treats market as idle")
		stats = model.ActivityStats{Volume: decimal.Zero}
	}
	snap.Stats = stats

	split, err := e.d.Allocator.ActiveSplit(ctx)
	if err != nil {
		return snap, fmt.Errorf("active split: %w", err)
	}
	snap.Split = split.Percentages

	curves, err := e.d.Store.ListCurves(ctx)
	if err != nil {
		return snap, fmt.Errorf("list curves: %w", err)
	}
	for _, c := range curves {
		snap.Curves = append(snap.Curves, decision.CurveSummary{
			Asset:       c.Asset,
			Price:       c.State.MarginalPrice(),
			RealQuote:   c.State.RealQuote,
			ProgressPct: curve.Progress(c.State, e.cfg.GraduationTarget),
			Graduated:   curve.HasGraduated(c.State, e.cfg.GraduationTarget),
		})
	}

	if snap.PendingProfit, err = e.PendingProfit(ctx); err != nil {
		return snap, fmt.Errorf("pending profit: %w", err)
	}

	launched, err := e.d.Store.ListActivity(ctx, model.ActivityFilter{
		Kinds: []model.ActivityKind{model.ActivityTokenCreated},
		Since: now.Add(-24 * time.Hour),
	})
	if err != nil {
		return snap, fmt.Errorf("list launches: %w", err)
	}
	snap.TokensLastDay = len(launched)

	if e.d.Trend != nil {
		if tr, err := e.d.Trend.Trend(ctx); err != nil {
			e.log.Warn().Err(err).Msg("volume trend unavailable")
		} else {
			snap.Trend = &tr
		}
	}
	return snap, nil
}

// PendingProfit is the trade fees collected less everything already distributed.
func (e *Engine) PendingProfit(ctx context.Context) (decimal.Decimal, error) {
	return e.d.Store.PendingProfit(ctx)
}

// proposal maps an intent onto the governor's action vocabulary.
func (e *Engine) proposal(ctx context.Context, in decision.Intent, snap decision.Snapshot) (governor.Proposal, error) {
	p := governor.Proposal{Source: in.Source, Confidence: in.Confidence, Reasoning: in.Reasoning}
	switch in.Kind {
	case decision.KindCreateToken:
		p.Action = governor.TokenCreation{
			Symbol:  in.Token.Symbol,
			Name:    in.Token.Name,
			Supply:  in.Token.Supply,
			Creator: e.cfg.Creator,
		}
	case decision.KindAdjustSplit:
		p.Action = governor.SplitChange{Current: snap.Split, Proposed: *in.Split}
	case decision.KindDistributeProfit:
		p.Action = governor.ProfitDistribution{
			EventID: uuid.NewString(),
			Asset:   e.cfg.QuoteAsset,
			Amount:  *in.Profit,
		}
	case decision.KindSelectReward:
		p.Action = governor.RewardSelection{Amount: *in.Reward}
	case decision.KindTransfer:
		t := governor.Transfer{
			WalletClass: in.Transfer.WalletClass,
			Destination: in.Transfer.Destination,
			Asset:       in.Transfer.Asset,
			Amount:      in.Transfer.Amount,
		}
		if c, err := e.d.Store.GetCurve(ctx, t.Asset); err == nil {
			t.TotalSupply = c.State.TotalSupply
		} else if !errors.Is(err, store.ErrNotFound) {
			return p, fmt.Errorf("load supply of %s: %w", t.Asset, err)
		}
		p.Action = t
	default:
		return p, fmt.Errorf("intent %q: %w", in.Kind, decision.ErrMalformed)
	}
	return p, nil
}

// Execute reviews a proposal and, when the decision allows, runs the action.
// metrics is stored with split proposals and may be nil.
func (e *Engine) Execute(ctx context.Context, p governor.Proposal, metrics map[string]float64) (Result, error) {
	out, err := e.d.Governor.Review(ctx, p)
	if err != nil {
		return Result{Outcome: "review failed"}, fmt.Errorf("review: %w", err)
	}
	res := Result{Review: out.Review}
	e.announce(ctx, out.Review)

	if !out.Review.Decision.Executable() {
		res.Outcome = fmt.Sprintf("%s %s: %s", out.Review.ActionType, out.Review.Decision, out.Review.Reasoning)
		return res, nil
	}

	detail, err := e.run(ctx, out, metrics)
	if err != nil {
		res.Outcome = fmt.Sprintf("%s %s, execution failed", out.Review.ActionType, out.Review.Decision)
		e.log.Error().Err(err).Str("review", out.Review.ID).Str("action", string(out.Review.ActionType)).Msg("execution failed")
		return res, fmt.Errorf("execute %s: %w", out.Review.ActionType, err)
	}
	res.Outcome = fmt.Sprintf("%s %s: %s", out.Review.ActionType, out.Review.Decision, detail)
	return res, nil
}

func (e *Engine) run(ctx context.Context, out governor.Outcome, metrics map[string]float64) (string, error) {
	switch a := out.Action.(type) {
	case governor.TokenCreation:
		_, receipt, err := e.d.Launcher.Launch(ctx, curve.LaunchRequest{
			Asset:   a.Symbol,
			Name:    a.Name,
			Supply:  a.Supply,
			Creator: a.Creator,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("launched %s (%s)", a.Symbol, receipt.Signature), nil

	case governor.SplitChange:
		id, err := e.d.Allocator.Propose(ctx, a.Proposed, out.Review.Reasoning, out.Review.Confidence, metrics)
		if err != nil {
			return "", err
		}
		if err := e.d.Allocator.Review(ctx, id, true, e.cfg.GovernorReviewer); err != nil {
			return "", err
		}
		return fmt.Sprintf("split %s active", id), nil

	case governor.ProfitDistribution:
		d, err := e.d.Allocator.Distribute(ctx, model.ProfitEvent{ID: a.EventID, Asset: a.Asset, Total: a.Amount})
		if err != nil {
			return "", err
		}
		// the whole event leaves pending profit; failed pools are retried by event id
		if err := e.d.Store.RecordActivity(ctx, model.Activity{
			Kind:        model.ActivityDistribution,
			Asset:       a.Asset,
			QuoteAmount: a.Amount,
			Note:        a.EventID,
			At:          e.clock(),
		}); err != nil {
			e.log.Error().Err(err).Str("event", a.EventID).Msg("record distribution activity")
		}
		if failed := d.Failed(); len(failed) > 0 {
			return fmt.Sprintf("distributed %s of %s, %d pools pending retry", d.TotalDistributed, a.Amount, len(failed)), nil
		}
		return fmt.Sprintf("distributed %s", d.TotalDistributed), nil

	case governor.RewardSelection:
		aw, err := e.d.Selector.Award(ctx, a.Amount)
		if errors.Is(err, selector.ErrNoCandidates) {
			return "no eligible wallets", nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("rewarded %s %s (proof %s)", aw.Proof.Winner, a.Amount, aw.Proof.ID), nil

	case governor.Transfer:
		receipt, err := e.d.Executor.Transfer(ctx, transfer.Instruction{
			WalletClass:    a.WalletClass,
			Destination:    a.Destination,
			Asset:          a.Asset,
			Amount:         a.Amount,
			Memo:           "review " + out.Review.ID,
			IdempotencyKey: "transfer:" + out.Review.ID,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("sent %s %s to %s (%s)", a.Amount, a.Asset, a.Destination, receipt.Signature), nil
	}
	return "", fmt.Errorf("no executor for %T", out.Action)
}

func (e *Engine) announce(ctx context.Context, r model.GovernorReview) {
	if e.d.Announcer == nil || r.PublicMessage == "" {
		return
	}
	if err := e.d.Announcer.Announce(ctx, r); err != nil {
		e.log.Warn().Err(err).Str("review", r.ID).Msg("announce review")
	}
}

func snapshotMetrics(snap decision.Snapshot) map[string]float64 {
	return map[string]float64{
		"volume":         snap.Stats.Volume.InexactFloat64(),
		"wallets":        float64(snap.Stats.Wallets),
		"trades":         float64(snap.Stats.Trades),
		"pending_profit": snap.PendingProfit.InexactFloat64(),
	}
}
