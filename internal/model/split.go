package model

import (
	"math"
	"time"
)

// Pool names a profit destination.
type Pool string

const (
	PoolReinvestment Pool = "reinvestment"
	PoolTreasury     Pool = "treasury"
	PoolReward       Pool = "reward"
	PoolOriginator   Pool = "originator"
)

// Pools lists every pool in distribution order.
var Pools = []Pool{PoolReinvestment, PoolTreasury, PoolReward, PoolOriginator}

// SplitStatus is the lifecycle state of an allocation split.
type SplitStatus string

const (
	SplitProposed   SplitStatus = "proposed"
	SplitActive     SplitStatus = "active"
	SplitSuperseded SplitStatus = "superseded"
	SplitRejected   SplitStatus = "rejected"
)

// Percentages are the four pool shares of realized profit, in percent.
type Percentages struct {
	Reinvestment float64 `json:"reinvestment"`
	Treasury     float64 `json:"treasury"`
	Reward       float64 `json:"reward"`
	Originator   float64 `json:"originator"`
}

// Sum returns the total of all four shares.
func (p Percentages) Sum() float64 {
	return p.Reinvestment + p.Treasury + p.Reward + p.Originator
}

// Share returns the percentage assigned to pool.
func (p Percentages) Share(pool Pool) float64 {
	switch pool {
	case PoolReinvestment:
		return p.Reinvestment
	case PoolTreasury:
		return p.Treasury
	case PoolReward:
		return p.Reward
	case PoolOriginator:
		return p.Originator
	}
	return 0
}

// Valid reports whether every share is non-negative and the total is 100 within epsilon.
func (p Percentages) Valid(epsilon float64) bool {
	for _, pool := range Pools {
		if p.Share(pool) < 0 {
			return false
		}
	}
	return math.Abs(p.Sum()-100) <= epsilon
}

// AllocationSplit is one versioned row of the allocation log.
type AllocationSplit struct {
	ID            string `json:"id"`
	Percentages   `json:"percentages"`
	Status        SplitStatus        `json:"status"`
	Reasoning     string             `json:"reasoning"`
	Confidence    float64            `json:"confidence"`
	SourceMetrics map[string]float64 `json:"source_metrics,omitempty"`
	ReviewedBy    string             `json:"reviewed_by,omitempty"`
	ProposedAt    time.Time          `json:"proposed_at"`
	ValidFrom     *time.Time         `json:"valid_from,omitempty"`
	ValidUntil    *time.Time         `json:"valid_until,omitempty"`
}
