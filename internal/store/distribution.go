package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"TokenSentinel/internal/model"

	"github.com/google/uuid"
)

const transferColumns = `id, profit_event_id, pool, asset, amount, status, signature, error, attempts, created_at, updated_at`

// RecordTransferAttempt upserts the outcome of one attempt for (profit event,
// pool). A row that already succeeded is never overwritten.
func (s *Store) RecordTransferAttempt(ctx context.Context, rec model.TransferRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := millis(s.now())
	_, err := s.exec(ctx, `INSERT INTO distribution_log (`+transferColumns+`)
		VALUES (?,?,?,?,?,?,?,?,1,?,?)
		ON CONFLICT (profit_event_id, pool) DO UPDATE SET
			status = excluded.status,
			signature = excluded.signature,
			error = excluded.error,
			attempts = distribution_log.attempts + 1,
			updated_at = excluded.updated_at
		WHERE distribution_log.status <> 'succeeded'`,
		rec.ID, rec.ProfitEventID, string(rec.Pool), rec.Asset, rec.Amount, string(rec.Status), rec.Signature, rec.Error, now, now,
	)
	return err
}

// GetTransfer loads the row for (profit event, pool).
func (s *Store) GetTransfer(ctx context.Context, eventID string, pool model.Pool) (model.TransferRecord, error) {
	rec, err := scanTransfer(s.queryRow(ctx, `SELECT `+transferColumns+` FROM distribution_log
		WHERE profit_event_id = ? AND pool = ?`, eventID, string(pool)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TransferRecord{}, fmt.Errorf("transfer %s/%s: %w", eventID, pool, ErrNotFound)
	}
	return rec, err
}

// ListTransfers returns every pool row of a profit event.
func (s *Store) ListTransfers(ctx context.Context, eventID string) ([]model.TransferRecord, error) {
	return s.listTransfers(ctx, `SELECT `+transferColumns+` FROM distribution_log
		WHERE profit_event_id = ? ORDER BY created_at, pool`, eventID)
}

// ListRetryableTransfers returns failed rows updated since `since` with fewer
// than maxAttempts attempts, plus rows stuck in retrying since before staleBefore.
func (s *Store) ListRetryableTransfers(ctx context.Context, since, staleBefore time.Time, maxAttempts int) ([]model.TransferRecord, error) {
	return s.listTransfers(ctx, `SELECT `+transferColumns+` FROM distribution_log
		WHERE attempts < ? AND updated_at >= ?
		AND (status = ? OR (status = ? AND updated_at < ?))
		ORDER BY created_at, pool`,
		maxAttempts, millis(since), string(model.TransferFailed), string(model.TransferRetrying), millis(staleBefore))
}

// ClaimTransfer moves a failed (or stale retrying) row to retrying. Only one
// caller can win the claim.
func (s *Store) ClaimTransfer(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	res, err := s.exec(ctx, `UPDATE distribution_log SET status = ?, updated_at = ?
		WHERE id = ? AND (status = ? OR (status = ? AND updated_at < ?))`,
		string(model.TransferRetrying), millis(s.now()), id,
		string(model.TransferFailed), string(model.TransferRetrying), millis(staleBefore))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) listTransfers(ctx context.Context, q string, args ...any) ([]model.TransferRecord, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TransferRecord
	for rows.Next() {
		rec, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanTransfer(sc scanner) (model.TransferRecord, error) {
	var (
		rec              model.TransferRecord
		pool, status     string
		created, updated int64
	)
	err := sc.Scan(&rec.ID, &rec.ProfitEventID, &pool, &rec.Asset, &rec.Amount, &status, &rec.Signature, &rec.Error,
		&rec.Attempts, &created, &updated)
	if err != nil {
		return rec, err
	}
	rec.Pool = model.Pool(pool)
	rec.Status = model.TransferStatus(status)
	rec.CreatedAt = fromMillis(created)
	rec.UpdatedAt = fromMillis(updated)
	return rec, nil
}
