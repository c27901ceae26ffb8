// Package transfer talks to the signing service that moves funds. Key material
// never enters this process.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Instruction moves Amount of Asset out of the wallet of class WalletClass.
type Instruction struct {
	WalletClass    string          `json:"wallet_class"`
	Destination    string          `json:"destination"`
	Asset          string          `json:"asset"`
	Amount         decimal.Decimal `json:"amount"`
	Memo           string          `json:"memo,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// MintInstruction issues a new asset with its full supply.
type MintInstruction struct {
	Asset          string          `json:"asset"`
	Name           string          `json:"name"`
	Supply         decimal.Decimal `json:"supply"`
	Creator        string          `json:"creator"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Receipt confirms an executed instruction.
type Receipt struct {
	Signature string    `json:"signature"`
	At        time.Time `json:"at"`
}

// Failure is a structured rejection from the executor.
type Failure struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("transfer failed (%s): %s", f.Code, f.Message)
}

// IsRetryable reports whether err may succeed on another attempt. Errors that
// are not a *Failure (network, timeout) are treated as transient.
func IsRetryable(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Retryable
	}
	return err != nil
}

// Transferer executes transfers.
type Transferer interface {
	Transfer(ctx context.Context, in Instruction) (Receipt, error)
}

// Minter executes mints.
type Minter interface {
	Mint(ctx context.Context, in MintInstruction) (Receipt, error)
}

// Executor is the full signing-service contract.
type Executor interface {
	Transferer
	Minter
}
