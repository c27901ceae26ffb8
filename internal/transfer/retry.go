package transfer

import (
	"context"
	"fmt"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Sleep      Sleeper
}

// DefaultRetryPolicy returns the mint retry policy: 3 attempts, 1s doubling to 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Initial: time.Second, Max: 8 * time.Second, Multiplier: 2, Sleep: SleepContext}
}

// Backoff returns the wait before attempt n+1, for n starting at 1.
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.Initial
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.Max > 0 && d > p.Max {
			return p.Max
		}
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts
// run out.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		err := fn(i)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
		if i == attempts {
			break
		}
		if err := sleep(ctx, p.Backoff(i)); err != nil {
			return fmt.Errorf("retry interrupted after attempt %d: %w", i, err)
		}
	}
	return fmt.Errorf("all %d attempts exhausted: %w", attempts, lastErr)
}
