package notifier

import (
	"fmt"
	"html"
	"strings"

	"TokenSentinel/internal/decision"
	"TokenSentinel/internal/model"
)

var decisionIcon = map[model.Decision]string{
	model.DecisionApproved: "✅",
	model.DecisionModified: "🛠",
	model.DecisionDeferred: "⏸",
	model.DecisionRejected: "⛔",
}

// FormatReview formats a governor review announcement.
func FormatReview(r model.GovernorReview) string {
	var b strings.Builder
	icon := decisionIcon[r.Decision]
	b.WriteString(fmt.Sprintf("%s <b>%s</b> | %s\n\n", icon, strings.ReplaceAll(string(r.ActionType), "_", " "), r.Decision))
	if r.PublicMessage != "" {
		b.WriteString(html.EscapeString(r.PublicMessage) + "\n\n")
	}
	b.WriteString(fmt.Sprintf("confidence: %.2f\n", r.Confidence))
	if len(r.Guardrails) > 0 {
		b.WriteString(fmt.Sprintf("guardrails: %s\n", html.EscapeString(strings.Join(r.Guardrails, ", "))))
	}
	b.WriteString(fmt.Sprintf("<code>%s</code>", r.ID))
	return b.String()
}

// FormatStatus formats the engine snapshot and the latest heartbeat, if any.
func FormatStatus(snap decision.Snapshot, hb *model.HeartbeatRecord) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>TokenSentinel status</b> | %s\n\n", snap.At.Format("2006-01-02 15:04")))

	b.WriteString(fmt.Sprintf("volume: %s\n", snap.Stats.Volume.StringFixed(2)))
	b.WriteString(fmt.Sprintf("wallets: %d | trades: %d\n", snap.Stats.Wallets, snap.Stats.Trades))
	b.WriteString(fmt.Sprintf("pending profit: %s\n", snap.PendingProfit.StringFixed(4)))
	b.WriteString(fmt.Sprintf("curves: %d | launched today: %d\n", len(snap.Curves), snap.TokensLastDay))
	if snap.Trend != nil {
		b.WriteString(fmt.Sprintf("volume SMA: %.2f | RSI: %.0f\n", snap.Trend.SMA, snap.Trend.RSI))
	}

	if hb != nil {
		b.WriteString("\n💓 <b>heartbeat</b>\n")
		b.WriteString(fmt.Sprintf("last: %s (%s)\n", hb.At.Format("2006-01-02 15:04"), html.EscapeString(hb.Outcome)))
		b.WriteString(fmt.Sprintf("next: %s\n", hb.NextAt.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatSplit formats the active allocation split.
func FormatSplit(sp model.AllocationSplit) string {
	var b strings.Builder
	b.WriteString("📦 <b>Profit split</b>\n\n")
	for _, pool := range model.Pools {
		b.WriteString(fmt.Sprintf("%s: %.2f%%\n", pool, sp.Share(pool)))
	}
	if sp.ReviewedBy != "" {
		b.WriteString(fmt.Sprintf("\napproved by %s", html.EscapeString(sp.ReviewedBy)))
	}
	if sp.ValidFrom != nil {
		b.WriteString(fmt.Sprintf(" since %s", sp.ValidFrom.Format("2006-01-02 15:04")))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatCurve formats one curve's reserves and graduation progress.
func FormatCurve(c model.Curve, progressPct float64, graduated bool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b>\n\n", html.EscapeString(c.Asset)))
	b.WriteString(fmt.Sprintf("price: %s\n", c.State.MarginalPrice().StringFixed(12)))
	b.WriteString(fmt.Sprintf("real quote: %s\n", c.State.RealQuote.StringFixed(4)))
	b.WriteString(fmt.Sprintf("real base: %s\n", c.State.RealBase.StringFixed(0)))
	b.WriteString(fmt.Sprintf("supply: %s\n", c.State.TotalSupply.StringFixed(0)))
	if graduated {
		b.WriteString("graduation: 🎓 complete")
	} else {
		b.WriteString(fmt.Sprintf("graduation: %.1f%%", progressPct))
	}
	return b.String()
}

// FormatHelp lists the operator commands.
func FormatHelp() string {
	return "Available commands:\n• /status\n• /split\n• /curve &lt;asset&gt;"
}
