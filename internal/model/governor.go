package model

import (
	"encoding/json"
	"time"
)

// ActionType identifies the kind of autonomous action under review.
type ActionType string

const (
	ActionTokenCreation      ActionType = "token_creation"
	ActionSplitChange        ActionType = "split_change"
	ActionTransfer           ActionType = "transfer"
	ActionRewardSelection    ActionType = "reward_selection"
	ActionProfitDistribution ActionType = "profit_distribution"
)

// Publishable reports whether decisions on this action get a public message.
func (a ActionType) Publishable() bool {
	switch a {
	case ActionTokenCreation, ActionSplitChange, ActionRewardSelection:
		return true
	}
	return false
}

// Decision is the terminal outcome of a governor review.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionModified Decision = "modified"
	DecisionDeferred Decision = "deferred"
	DecisionRejected Decision = "rejected"
)

// Executable reports whether the reviewed action may run.
func (d Decision) Executable() bool {
	return d == DecisionApproved || d == DecisionModified
}

// GovernorReview is one append-only row of the governor log.
type GovernorReview struct {
	ID            string          `json:"id"`
	ActionType    ActionType      `json:"action_type"`
	Source        string          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
	Guardrails    []string        `json:"guardrails_triggered"`
	EntropyFactor float64         `json:"entropy_factor"`
	Seed          uint64          `json:"seed"`
	Decision      Decision        `json:"decision"`
	Confidence    float64         `json:"confidence"`
	Reasoning     string          `json:"reasoning"`
	PublicMessage string          `json:"public_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
