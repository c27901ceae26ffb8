package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockExecutor records instructions and fails on demand, for dry runs and tests.
type MockExecutor struct {
	mu sync.Mutex
	// Failures maps a wallet class (or "mint") to the number of upcoming calls
	// that fail. A negative count fails forever.
	Failures  map[string]int
	Transfers []Instruction
	Mints     []MintInstruction
	seq       int
}

// NewMockExecutor returns an executor that succeeds on everything.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{Failures: make(map[string]int)}
}

// FailNext makes the next n calls for key fail with a retryable failure.
func (m *MockExecutor) FailNext(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures[key] = n
}

func (m *MockExecutor) Transfer(_ context.Context, in Instruction) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(in.WalletClass); err != nil {
		return Receipt{}, err
	}
	m.Transfers = append(m.Transfers, in)
	return m.receipt(), nil
}

func (m *MockExecutor) Mint(_ context.Context, in MintInstruction) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("mint"); err != nil {
		return Receipt{}, err
	}
	m.Mints = append(m.Mints, in)
	return m.receipt(), nil
}

// TransferCount returns how many transfers went out of walletClass.
func (m *MockExecutor) TransferCount(walletClass string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, in := range m.Transfers {
		if in.WalletClass == walletClass {
			n++
		}
	}
	return n
}

func (m *MockExecutor) fail(key string) error {
	n := m.Failures[key]
	if n == 0 {
		return nil
	}
	if n > 0 {
		m.Failures[key] = n - 1
	}
	return &Failure{Code: "unavailable", Message: key + " wallet unavailable", Retryable: true}
}

func (m *MockExecutor) receipt() Receipt {
	m.seq++
	return Receipt{Signature: fmt.Sprintf("mock-sig-%d", m.seq), At: time.Now().UTC()}
}
