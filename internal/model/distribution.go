package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfitEvent is a realized profit to be split across the pools.
type ProfitEvent struct {
	ID    string          `json:"id"`
	Asset string          `json:"asset"`
	Total decimal.Decimal `json:"total"`
}

// TransferStatus tracks one pool transfer of a distribution.
type TransferStatus string

const (
	TransferSucceeded TransferStatus = "succeeded"
	TransferFailed    TransferStatus = "failed"
	TransferRetrying  TransferStatus = "retrying"
)

// TransferRecord is one row of the distribution log, unique per (profit event, pool).
type TransferRecord struct {
	ID            string
	ProfitEventID string
	Pool          Pool
	Asset         string
	Amount        decimal.Decimal
	Status        TransferStatus
	Signature     string
	Error         string
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
