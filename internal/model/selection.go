package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SelectionProof is the immutable audit record of one reward draw. Digest
// covers every field, ID and CreatedAt included.
type SelectionProof struct {
	ID            string          `json:"id"`
	EntropySource string          `json:"entropy_source"`
	BlockID       string          `json:"block_id"`
	BlockHeight   uint64          `json:"block_height"`
	SampledAt     time.Time       `json:"sampled_at"`
	Candidates    []string        `json:"candidates"`
	Weights       []uint64        `json:"weights"`
	TotalWeight   uint64          `json:"total_weight"`
	RewardAmount  decimal.Decimal `json:"reward_amount"`
	DrawValue     uint64          `json:"draw_value"`
	Index         int             `json:"index"`
	Winner        string          `json:"winner"`
	Digest        string          `json:"digest"`
	CreatedAt     time.Time       `json:"created_at"`
}
