// Package governor reviews every autonomous action against an ordered list of
// guardrails before it may execute.
package governor

import (
	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// Action is one of the reviewable action payloads below.
type Action interface {
	Type() model.ActionType
}

// TokenCreation launches a new asset on its own curve.
type TokenCreation struct {
	Symbol  string          `json:"symbol"`
	Name    string          `json:"name"`
	Supply  decimal.Decimal `json:"supply"`
	Creator string          `json:"creator"`
}

// SplitChange proposes new pool percentages.
type SplitChange struct {
	Current  model.Percentages `json:"current"`
	Proposed model.Percentages `json:"proposed"`
}

// Transfer moves funds out of an engine wallet. TotalSupply is the supply of
// Asset, used for the share check; zero skips it.
type Transfer struct {
	WalletClass string          `json:"wallet_class"`
	Destination string          `json:"destination"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	TotalSupply decimal.Decimal `json:"total_supply"`
}

// RewardSelection funds one fair draw.
type RewardSelection struct {
	Amount decimal.Decimal `json:"amount"`
}

// ProfitDistribution splits realized profit across the pools.
type ProfitDistribution struct {
	EventID string          `json:"event_id"`
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
}

func (TokenCreation) Type() model.ActionType      { return model.ActionTokenCreation }
func (SplitChange) Type() model.ActionType        { return model.ActionSplitChange }
func (Transfer) Type() model.ActionType           { return model.ActionTransfer }
func (RewardSelection) Type() model.ActionType    { return model.ActionRewardSelection }
func (ProfitDistribution) Type() model.ActionType { return model.ActionProfitDistribution }

// Proposal is an action plus what its producer believes about it.
type Proposal struct {
	Action     Action
	Source     string
	Confidence float64
	Reasoning  string
}
