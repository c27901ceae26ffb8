package decision

import (
	"context"

	"TokenSentinel/internal/logger"

	"github.com/rs/zerolog"
)

// Resilient tries the primary source and falls back when it fails.
type Resilient struct {
	primary  Source
	fallback Source
	log      zerolog.Logger
}

// NewResilient wraps primary with fallback. A nil primary always uses fallback.
func NewResilient(primary, fallback Source) *Resilient {
	return &Resilient{primary: primary, fallback: fallback, log: logger.GetForComponent("decision")}
}

func (r *Resilient) Name() string {
	if r.primary == nil {
		return r.fallback.Name()
	}
	return r.primary.Name() + "+" + r.fallback.Name()
}

// Decide returns the primary intent, or the fallback intent on any error.
func (r *Resilient) Decide(ctx context.Context, snap Snapshot) (Intent, error) {
	if r.primary != nil {
		in, err := r.primary.Decide(ctx, snap)
		if err == nil {
			return in, nil
		}
		if ctx.Err() != nil {
			return Intent{}, ctx.Err()
		}
		r.log.Warn().Err(err).Str("primary", r.primary.Name()).Str("fallback", r.fallback.Name()).
			Msg("decision source failed, using fallback")
	}
	return r.fallback.Decide(ctx, snap)
}
