package engine

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"TokenSentinel/internal/curve"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/notifier"
	"TokenSentinel/internal/store"
)

// HandleCommand answers an operator command received over the notifier.
func (e *Engine) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}
	switch strings.ToLower(fields[0]) {
	case "/status":
		snap, err := e.Snapshot(ctx)
		if err != nil {
			e.log.Error().Err(err).Msg("status snapshot")
			return fmt.Sprintf("❌ status unavailable: %v", err)
		}
		var hb *model.HeartbeatRecord
		if last, err := e.d.Store.LatestHeartbeat(ctx); err == nil {
			hb = &last
		} else if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn().Err(err).Msg("latest heartbeat")
		}
		return notifier.FormatStatus(snap, hb)
	case "/split":
		sp, err := e.d.Allocator.ActiveSplit(ctx)
		if err != nil {
			return fmt.Sprintf("❌ split unavailable: %v", err)
		}
		return notifier.FormatSplit(sp)
	case "/curve":
		if len(fields) < 2 {
			return "usage: /curve &lt;asset&gt;"
		}
		asset := strings.ToUpper(fields[1])
		c, err := e.d.Store.GetCurve(ctx, asset)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("no curve for %s", html.EscapeString(asset))
		}
		if err != nil {
			return fmt.Sprintf("❌ curve unavailable: %v", err)
		}
		return notifier.FormatCurve(c,
			curve.Progress(c.State, e.cfg.GraduationTarget),
			curve.HasGraduated(c.State, e.cfg.GraduationTarget))
	default:
		return notifier.FormatHelp()
	}
}
