package allocator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"TokenSentinel/internal/model"
	"TokenSentinel/internal/store"
	"TokenSentinel/internal/transfer"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// PoolResult is the outcome of one pool transfer.
type PoolResult struct {
	Pool      model.Pool
	Amount    decimal.Decimal
	Status    model.TransferStatus
	Signature string
	Error     string
}

// Distribution reports a distribute call. TotalDistributed counts confirmed
// transfers only.
type Distribution struct {
	ProfitEventID    string
	SplitID          string
	Pools            []PoolResult
	TotalDistributed decimal.Decimal
}

// Failed returns the pools whose transfer did not succeed.
func (d Distribution) Failed() []model.Pool {
	var out []model.Pool
	for _, r := range d.Pools {
		if r.Status != model.TransferSucceeded {
			out = append(out, r.Pool)
		}
	}
	return out
}

// RetryReport summarises a retry pass.
type RetryReport struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
}

// Distribute sends one transfer per pool under the active split. A failed
// transfer never blocks the others; every attempt is logged per pool. Pools
// that already succeeded for this event are not sent again.
func (m *Manager) Distribute(ctx context.Context, ev model.ProfitEvent) (Distribution, error) {
	if !ev.Total.IsPositive() {
		return Distribution{}, fmt.Errorf("profit %s: amount must be positive", ev.Total)
	}
	split, err := m.ActiveSplit(ctx)
	if err != nil {
		return Distribution{}, err
	}
	amounts := CalculateAmounts(ev.Total, split.Percentages)

	results := make([]PoolResult, len(model.Pools))
	g, gctx := errgroup.WithContext(ctx)
	for i, pool := range model.Pools {
		g.Go(func() error {
			results[i] = m.sendPool(gctx, ev, pool, amounts[pool])
			return nil
		})
	}
	// per-pool failures are results, not errors
	_ = g.Wait()

	d := Distribution{ProfitEventID: ev.ID, SplitID: split.ID, Pools: results, TotalDistributed: decimal.Zero}
	for _, r := range results {
		if r.Status == model.TransferSucceeded {
			d.TotalDistributed = d.TotalDistributed.Add(r.Amount)
		}
	}
	m.log.Info().
		Str("event", ev.ID).
		Str("total", ev.Total.String()).
		Str("distributed", d.TotalDistributed.String()).
		Int("failed", len(d.Failed())).
		Msg("distribution finished")
	return d, nil
}

func (m *Manager) sendPool(ctx context.Context, ev model.ProfitEvent, pool model.Pool, amount decimal.Decimal) PoolResult {
	res := PoolResult{Pool: pool, Amount: amount}

	existing, err := m.store.GetTransfer(ctx, ev.ID, pool)
	if err == nil && existing.Status == model.TransferSucceeded {
		res.Amount, res.Status, res.Signature = existing.Amount, existing.Status, existing.Signature
		return res
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		res.Status, res.Error = model.TransferFailed, err.Error()
		return res
	}
	if err == nil {
		// an earlier row exists: take it the same way a retry pass does
		claimed, cerr := m.store.ClaimTransfer(ctx, existing.ID, m.clock().Add(-m.cfg.StaleAfter))
		if cerr != nil || !claimed {
			res.Amount, res.Status = existing.Amount, model.TransferRetrying
			res.Error = "transfer claimed by another attempt"
			if cerr != nil {
				res.Error = cerr.Error()
			}
			return res
		}
	}
	if !amount.IsPositive() {
		// zero share: nothing to move, but the pool is settled
		res.Status = model.TransferSucceeded
		m.record(ctx, ev.ID, ev.Asset, res)
		return res
	}

	receipt, err := m.executor.Transfer(ctx, m.instruction(ev.ID, ev.Asset, pool, amount))
	if err != nil {
		res.Status, res.Error = model.TransferFailed, err.Error()
		m.log.Warn().Err(err).Str("event", ev.ID).Str("pool", string(pool)).Msg("pool transfer failed")
	} else {
		res.Status, res.Signature = model.TransferSucceeded, receipt.Signature
	}
	m.record(ctx, ev.ID, ev.Asset, res)
	return res
}

// RetryFailed re-attempts failed transfers inside the lookback window. Each row
// is claimed before the attempt so concurrent passes never double-send, and a
// pool that already succeeded is never touched.
func (m *Manager) RetryFailed(ctx context.Context) (RetryReport, error) {
	now := m.clock()
	staleBefore := now.Add(-m.cfg.StaleAfter)
	rows, err := m.store.ListRetryableTransfers(ctx, now.Add(-m.cfg.RetryLookback), staleBefore, m.cfg.MaxAttempts)
	if err != nil {
		return RetryReport{}, fmt.Errorf("list retryable transfers: %w", err)
	}

	var (
		mu     sync.Mutex
		report RetryReport
	)
	count := func(f func(*RetryReport)) {
		mu.Lock()
		defer mu.Unlock()
		f(&report)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(model.Pools))
	for _, row := range rows {
		g.Go(func() error {
			current, err := m.store.GetTransfer(gctx, row.ProfitEventID, row.Pool)
			if err != nil || current.Status == model.TransferSucceeded {
				count(func(r *RetryReport) { r.Skipped++ })
				return nil
			}
			claimed, err := m.store.ClaimTransfer(gctx, row.ID, staleBefore)
			if err != nil || !claimed {
				count(func(r *RetryReport) { r.Skipped++ })
				return nil
			}

			res := PoolResult{Pool: row.Pool, Amount: row.Amount}
			receipt, err := m.executor.Transfer(gctx, m.instruction(row.ProfitEventID, row.Asset, row.Pool, row.Amount))
			if err != nil {
				res.Status, res.Error = model.TransferFailed, err.Error()
				m.log.Warn().Err(err).Str("event", row.ProfitEventID).Str("pool", string(row.Pool)).
					Int("attempt", row.Attempts+1).Msg("retry failed")
				count(func(r *RetryReport) { r.Attempted++; r.Failed++ })
			} else {
				res.Status, res.Signature = model.TransferSucceeded, receipt.Signature
				count(func(r *RetryReport) { r.Attempted++; r.Succeeded++ })
			}
			m.record(gctx, row.ProfitEventID, row.Asset, res)
			return nil
		})
	}
	_ = g.Wait()

	if report.Attempted > 0 {
		m.log.Info().Int("attempted", report.Attempted).Int("succeeded", report.Succeeded).
			Int("failed", report.Failed).Msg("transfer retry pass")
	}
	return report, nil
}

// Transfers returns the per-pool log of a profit event.
func (m *Manager) Transfers(ctx context.Context, eventID string) ([]model.TransferRecord, error) {
	return m.store.ListTransfers(ctx, eventID)
}

func (m *Manager) instruction(eventID, asset string, pool model.Pool, amount decimal.Decimal) transfer.Instruction {
	return transfer.Instruction{
		WalletClass:    string(pool),
		Destination:    m.cfg.PoolWallets[pool],
		Asset:          asset,
		Amount:         amount,
		Memo:           "profit " + eventID,
		IdempotencyKey: eventID + ":" + string(pool),
	}
}

func (m *Manager) record(ctx context.Context, eventID, asset string, res PoolResult) {
	err := m.store.RecordTransferAttempt(ctx, model.TransferRecord{
		ProfitEventID: eventID,
		Pool:          res.Pool,
		Asset:         asset,
		Amount:        res.Amount,
		Status:        res.Status,
		Signature:     res.Signature,
		Error:         res.Error,
	})
	if err != nil {
		m.log.Error().Err(err).Str("event", eventID).Str("pool", string(res.Pool)).Msg("record transfer attempt")
	}
}
