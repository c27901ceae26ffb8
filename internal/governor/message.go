package governor

import (
	"fmt"
	"strings"

	"TokenSentinel/internal/model"
)

var (
	launchLines = []string{
		"New token %s just hit the curve.",
		"%s is live. The curve is open.",
		"Fresh launch: %s. Trade it on the curve.",
	}
	splitLines = []string{
		"Profit split updated: %s.",
		"New allocation in effect: %s.",
		"The pools have been rebalanced: %s.",
	}
	rewardLines = []string{
		"A %s reward draw is underway. Proof to follow.",
		"Reward round of %s starting now, verifiable on chain.",
		"Drawing a %s reward among active traders.",
	}
	holdLines = []string{
		"Holding off on %s for now.",
		"%s is on pause while we take another look.",
		"Not this cycle: %s.",
	}
)

// publicMessage picks a line for a publishable action. Wording comes from the
// flavor source and has no bearing on the decision.
func (g *Governor) publicMessage(a Action, d model.Decision) string {
	var (
		lines   []string
		subject string
	)
	switch act := a.(type) {
	case TokenCreation:
		lines, subject = launchLines, act.Symbol
	case SplitChange:
		p := act.Proposed
		lines, subject = splitLines, fmt.Sprintf("%.0f/%.0f/%.0f/%.0f", p.Reinvestment, p.Treasury, p.Reward, p.Originator)
	case RewardSelection:
		lines, subject = rewardLines, act.Amount.String()
	default:
		return ""
	}
	if !d.Executable() {
		lines, subject = holdLines, strings.ReplaceAll(string(a.Type()), "_", " ")
	}

	g.flavorMu.Lock()
	i := g.flavor.IntN(len(lines))
	g.flavorMu.Unlock()
	return fmt.Sprintf(lines[i], subject)
}
