package governor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"TokenSentinel/internal/logger"
	"TokenSentinel/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// EntropyThreshold above which an otherwise approvable action may be deferred.
	EntropyThreshold = 0.7

	rejectConfidence   = 0.95
	deferConfidence    = 0.4
	modifiedDiscount   = 0.9
	maxUnresolvedFails = 2
)

// Store persists reviews and answers rate queries.
type Store interface {
	ReviewCounter
	InsertReview(ctx context.Context, r model.GovernorReview) error
}

// Config tunes the entropy blend.
type Config struct {
	// SourceEntropy is the base entropy per decision source name.
	SourceEntropy  map[string]float64
	DefaultEntropy float64
	Threshold      float64
}

// DefaultConfig returns the production entropy settings.
func DefaultConfig() Config {
	return Config{
		SourceEntropy: map[string]float64{
			"operator": 0,
			"rules":    0.1,
			"http":     0.4,
		},
		DefaultEntropy: 0.5,
		Threshold:      EntropyThreshold,
	}
}

// Outcome is a finished review. Action carries any merged overrides.
type Outcome struct {
	Review model.GovernorReview
	Action Action
}

// Governor evaluates proposals against its guardrails.
type Governor struct {
	store      Store
	guardrails []Guardrail
	cfg        Config
	clock      func() time.Time
	seed       func() uint64

	flavorMu sync.Mutex
	flavor   *rand.Rand

	log zerolog.Logger
}

// New creates a Governor over the given ordered guardrails.
func New(st Store, guardrails []Guardrail, cfg Config) *Governor {
	return &Governor{
		store:      st,
		guardrails: guardrails,
		cfg:        cfg,
		clock:      func() time.Time { return time.Now().UTC() },
		seed:       rand.Uint64,
		flavor:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:        logger.GetForComponent("governor"),
	}
}

// WithClock overrides the governor clock for deterministic tests.
func (g *Governor) WithClock(clock func() time.Time) {
	if clock != nil {
		g.clock = clock
	}
}

// WithSeed overrides the per-review seed generator.
func (g *Governor) WithSeed(seed func() uint64) {
	if seed != nil {
		g.seed = seed
	}
}

// Review runs the guardrails, decides, and appends the review to the audit
// log. An error means the review could not be recorded and the action must not
// run.
func (g *Governor) Review(ctx context.Context, p Proposal) (Outcome, error) {
	seed := g.seed()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	entropy := g.entropyFactor(p, rng.Float64())
	out := Outcome{
		Action: p.Action,
		Review: model.GovernorReview{
			ID:            uuid.NewString(),
			ActionType:    p.Action.Type(),
			Source:        p.Source,
			EntropyFactor: entropy,
			Seed:          seed,
			Guardrails:    []string{},
			CreatedAt:     g.clock(),
		},
	}
	r := &out.Review

	var (
		reasons   []string
		overrides []func(Action) Action
		unfixable int
	)
	for _, gr := range g.guardrails {
		res, err := gr.Check(ctx, p)
		if err != nil {
			// a check that cannot run counts as failed
			res = Result{Reason: "check error: " + err.Error()}
			g.log.Warn().Err(err).Str("guardrail", gr.Name).Msg("guardrail check failed")
		}
		if res.Passed {
			continue
		}
		r.Guardrails = append(r.Guardrails, gr.Name)
		reasons = append(reasons, gr.Name+": "+res.Reason)
		if gr.Severity == Critical {
			r.Decision = model.DecisionRejected
			r.Confidence = rejectConfidence
			r.Reasoning = "critical guardrail failed: " + gr.Name + ": " + res.Reason
			return g.finish(ctx, p, out)
		}
		if res.Override != nil {
			overrides = append(overrides, res.Override)
		} else {
			unfixable++
		}
	}

	baseline := clamp01(p.Confidence)
	switch {
	case len(r.Guardrails) == 0:
		r.Decision = model.DecisionApproved
		r.Confidence = baseline
		r.Reasoning = "all guardrails passed"
	case unfixable == 0:
		for _, o := range overrides {
			out.Action = o(out.Action)
		}
		r.Decision = model.DecisionModified
		r.Confidence = baseline * modifiedDiscount
		r.Reasoning = "applied overrides: " + strings.Join(reasons, "; ")
	case unfixable > maxUnresolvedFails:
		r.Decision = model.DecisionDeferred
		r.Confidence = deferConfidence
		r.Reasoning = fmt.Sprintf("%d guardrails failed without a fix: %s", unfixable, strings.Join(reasons, "; "))
	case entropy > g.cfg.Threshold && rng.Float64() < 0.5:
		r.Decision = model.DecisionDeferred
		r.Confidence = deferConfidence
		r.Reasoning = fmt.Sprintf("entropy %.3f above %.2f, deferred: %s", entropy, g.cfg.Threshold, strings.Join(reasons, "; "))
	default:
		r.Decision = model.DecisionApproved
		r.Confidence = baseline * (1 - entropy*0.5)
		r.Reasoning = fmt.Sprintf("approved with entropy %.3f despite: %s", entropy, strings.Join(reasons, "; "))
	}
	return g.finish(ctx, p, out)
}

func (g *Governor) finish(ctx context.Context, p Proposal, out Outcome) (Outcome, error) {
	r := &out.Review
	r.Confidence = clamp01(r.Confidence)
	if p.Reasoning != "" {
		r.Reasoning += " | source: " + p.Reasoning
	}
	payload, err := json.Marshal(out.Action)
	if err != nil {
		return out, fmt.Errorf("marshal %s payload: %w", r.ActionType, err)
	}
	r.Payload = payload
	if r.ActionType.Publishable() {
		r.PublicMessage = g.publicMessage(out.Action, r.Decision)
	}

	if err := g.store.InsertReview(ctx, *r); err != nil {
		g.log.Error().Err(err).Str("review", r.ID).Msg("persist review")
		return out, fmt.Errorf("persist review: %w", err)
	}
	ev := g.log.Info()
	if r.Decision == model.DecisionRejected || r.Decision == model.DecisionDeferred {
		ev = g.log.Warn()
	}
	ev.Str("review", r.ID).
		Str("action", string(r.ActionType)).
		Str("decision", string(r.Decision)).
		Float64("confidence", r.Confidence).
		Float64("entropy", r.EntropyFactor).
		Strs("guardrails", r.Guardrails).
		Msg("action reviewed")
	return out, nil
}

// entropyFactor blends source base entropy, doubt, and jitter into [0,1].
func (g *Governor) entropyFactor(p Proposal, jitter float64) float64 {
	base, ok := g.cfg.SourceEntropy[p.Source]
	if !ok {
		base = g.cfg.DefaultEntropy
	}
	return clamp01(0.4*base + 0.4*(1-clamp01(p.Confidence)) + 0.2*jitter)
}

// ReplayEntropy recomputes the entropy factor of a stored review from its seed.
func (g *Governor) ReplayEntropy(source string, confidence float64, seed uint64) float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return g.entropyFactor(Proposal{Source: source, Confidence: confidence}, rng.Float64())
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
