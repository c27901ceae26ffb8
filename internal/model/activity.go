package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityKind classifies activity log rows.
type ActivityKind string

const (
	ActivityTrade         ActivityKind = "trade"
	ActivityWalletConnect ActivityKind = "wallet_connect"
	ActivityTokenCreated  ActivityKind = "token_created"
	ActivityFlag          ActivityKind = "flag"
	ActivityReward        ActivityKind = "reward"
	ActivityFee           ActivityKind = "fee"
	ActivityDistribution  ActivityKind = "distribution"
)

// Side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Activity is one append-only row of the activity log.
type Activity struct {
	ID          string
	Kind        ActivityKind
	Wallet      string
	Asset       string
	Side        Side
	BaseAmount  decimal.Decimal
	QuoteAmount decimal.Decimal
	Note        string
	At          time.Time
}

// ActivityStats aggregates the activity log over a window.
type ActivityStats struct {
	Volume  decimal.Decimal `json:"volume"`
	Wallets int             `json:"wallets"`
	Trades  int             `json:"trades"`
}

// ActivityFilter narrows ListActivity. Zero fields match everything.
type ActivityFilter struct {
	Kinds  []ActivityKind
	Wallet string
	Asset  string
	Since  time.Time
	Limit  int
}

// ActivityTrend summarises bucketed trade volume leading up to now.
type ActivityTrend struct {
	Buckets []float64     `json:"buckets"`
	Width   time.Duration `json:"width"`
	SMA     float64       `json:"sma"`
	RSI     float64       `json:"rsi"`
	Peak    float64       `json:"peak"`
	Trough  float64       `json:"trough"`
}
