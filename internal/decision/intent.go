// Package decision produces the next autonomous intent from a snapshot of the
// engine's state.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// ErrMalformed marks an intent that fails validation.
var ErrMalformed = errors.New("malformed intent")

// Kind names what the source wants to do next.
type Kind string

const (
	KindCreateToken      Kind = "create_token"
	KindAdjustSplit      Kind = "adjust_split"
	KindDistributeProfit Kind = "distribute_profit"
	KindSelectReward     Kind = "select_reward"
	KindTransfer         Kind = "transfer"
	KindHold             Kind = "hold"
)

// TokenParams describes a token to launch.
type TokenParams struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Supply decimal.Decimal `json:"supply"`
}

// TransferParams describes a discretionary transfer.
type TransferParams struct {
	WalletClass string          `json:"wallet_class"`
	Destination string          `json:"destination"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
}

// Intent is one proposed action. Exactly the field matching Kind is set.
type Intent struct {
	Kind       Kind    `json:"kind"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
	// Source is filled in by the producing Source, not by remote output.
	Source string `json:"-"`

	Token    *TokenParams       `json:"token,omitempty"`
	Split    *model.Percentages `json:"split,omitempty"`
	Transfer *TransferParams    `json:"transfer,omitempty"`
	Reward   *decimal.Decimal   `json:"reward,omitempty"`
	Profit   *decimal.Decimal   `json:"profit,omitempty"`
}

// Validate checks that the intent is complete for its kind.
func (i Intent) Validate() error {
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]: %w", i.Confidence, ErrMalformed)
	}
	var missing bool
	switch i.Kind {
	case KindCreateToken:
		missing = i.Token == nil
	case KindAdjustSplit:
		missing = i.Split == nil
	case KindTransfer:
		missing = i.Transfer == nil
	case KindSelectReward:
		missing = i.Reward == nil
	case KindDistributeProfit:
		missing = i.Profit == nil
	case KindHold:
	default:
		return fmt.Errorf("unknown kind %q: %w", i.Kind, ErrMalformed)
	}
	if missing {
		return fmt.Errorf("%s without parameters: %w", i.Kind, ErrMalformed)
	}
	return nil
}

// CurveSummary is the per-asset view in a snapshot.
type CurveSummary struct {
	Asset       string          `json:"asset"`
	Price       decimal.Decimal `json:"price"`
	RealQuote   decimal.Decimal `json:"real_quote"`
	ProgressPct float64         `json:"progress_pct"`
	Graduated   bool            `json:"graduated"`
}

// Snapshot is the context handed to a source.
type Snapshot struct {
	At            time.Time            `json:"at"`
	Stats         model.ActivityStats  `json:"stats"`
	Split         model.Percentages    `json:"split"`
	Curves        []CurveSummary       `json:"curves"`
	PendingProfit decimal.Decimal      `json:"pending_profit"`
	TokensLastDay int                  `json:"tokens_last_day"`
	Trend         *model.ActivityTrend `json:"trend,omitempty"`
}

// Source produces intents.
type Source interface {
	Decide(ctx context.Context, snap Snapshot) (Intent, error)
	Name() string
}
