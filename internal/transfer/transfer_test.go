package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(recorded *[]time.Duration) Sleeper {
	return func(_ context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
}

func TestRetryPolicy_StopsAtAttemptCap(t *testing.T) {
	var waits []time.Duration
	p := RetryPolicy{Attempts: 3, Initial: time.Second, Max: 8 * time.Second, Multiplier: 2, Sleep: noSleep(&waits)}

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return &Failure{Code: "unavailable", Retryable: true}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
	assert.Contains(t, err.Error(), "all 3 attempts exhausted")
}

func TestRetryPolicy_NonRetryableStopsImmediately(t *testing.T) {
	var waits []time.Duration
	p := RetryPolicy{Attempts: 5, Initial: time.Second, Multiplier: 2, Sleep: noSleep(&waits)}

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return &Failure{Code: "invalid", Retryable: false}
	})
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, "invalid", f.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestRetryPolicy_SucceedsAfterFailure(t *testing.T) {
	var waits []time.Duration
	p := RetryPolicy{Attempts: 3, Initial: time.Second, Multiplier: 2, Sleep: noSleep(&waits)}
	err := p.Do(context.Background(), func(attempt int) error {
		if attempt < 2 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, waits, 1)
}

func TestBackoffCapped(t *testing.T) {
	p := RetryPolicy{Initial: time.Second, Max: 5 * time.Second, Multiplier: 3}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 3*time.Second, p.Backoff(2))
	assert.Equal(t, 5*time.Second, p.Backoff(3))
}

func TestHTTPExecutor(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var in Instruction
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		switch in.WalletClass {
		case "treasury":
			json.NewEncoder(w).Encode(Receipt{Signature: "sig-1"})
		case "reward":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(Failure{Code: "bad_destination", Message: "unknown wallet"})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer ts.Close()

	e := NewHTTPExecutor(ts.URL, "secret", "", 5*time.Second)
	ctx := context.Background()
	amt := decimal.NewFromInt(10)

	r, err := e.Transfer(ctx, Instruction{WalletClass: "treasury", Amount: amt})
	require.NoError(t, err)
	assert.Equal(t, "sig-1", r.Signature)

	_, err = e.Transfer(ctx, Instruction{WalletClass: "reward", Amount: amt})
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, "bad_destination", f.Code)
	assert.False(t, IsRetryable(err))

	_, err = e.Transfer(ctx, Instruction{WalletClass: "originator", Amount: amt})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestMockExecutor_FailNext(t *testing.T) {
	m := NewMockExecutor()
	m.FailNext("treasury", 1)
	ctx := context.Background()

	_, err := m.Transfer(ctx, Instruction{WalletClass: "treasury"})
	require.Error(t, err)
	_, err = m.Transfer(ctx, Instruction{WalletClass: "treasury"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.TransferCount("treasury"))
}
