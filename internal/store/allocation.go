package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TokenSentinel/internal/model"
)

const splitColumns = `id, reinvestment, treasury, reward, originator, status, reasoning, confidence,
	source_metrics, reviewed_by, proposed_at, valid_from, valid_until`

// InsertSplit appends a proposed split to the allocation log.
func (s *Store) InsertSplit(ctx context.Context, sp model.AllocationSplit) error {
	metrics, err := json.Marshal(sp.SourceMetrics)
	if err != nil {
		return fmt.Errorf("marshal source metrics: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO allocation_log (`+splitColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sp.ID, sp.Reinvestment, sp.Treasury, sp.Reward, sp.Originator, string(sp.Status),
		sp.Reasoning, sp.Confidence, string(metrics), sp.ReviewedBy, millis(sp.ProposedAt),
		nullMillis(sp.ValidFrom), nullMillis(sp.ValidUntil),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("split %s: %w", sp.ID, ErrDuplicate)
	}
	return err
}

// GetSplit loads one split by id.
func (s *Store) GetSplit(ctx context.Context, id string) (model.AllocationSplit, error) {
	sp, err := scanSplit(s.queryRow(ctx, `SELECT `+splitColumns+` FROM allocation_log WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AllocationSplit{}, fmt.Errorf("split %s: %w", id, ErrNotFound)
	}
	return sp, err
}

// ActiveSplit loads the single active split.
func (s *Store) ActiveSplit(ctx context.Context) (model.AllocationSplit, error) {
	sp, err := scanSplit(s.queryRow(ctx, `SELECT `+splitColumns+` FROM allocation_log WHERE status = ?`,
		string(model.SplitActive)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AllocationSplit{}, fmt.Errorf("active split: %w", ErrNotFound)
	}
	return sp, err
}

// ListSplits returns the newest splits first.
func (s *Store) ListSplits(ctx context.Context, limit int) ([]model.AllocationSplit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, `SELECT `+splitColumns+` FROM allocation_log ORDER BY proposed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AllocationSplit
	for rows.Next() {
		sp, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// ActivateSplit closes the validity window of the current active split and
// activates the proposed split id in one transaction. The partial unique index
// on status='active' turns a lost race into ErrConflict.
func (s *Store) ActivateSplit(ctx context.Context, id, reviewer string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM allocation_log WHERE id = ?`), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("split %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if model.SplitStatus(status) != model.SplitProposed {
		return fmt.Errorf("split %s is %s: %w", id, status, ErrConflict)
	}

	ts := millis(at)
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE allocation_log SET status = ?, valid_until = ?
		WHERE status = ?`), string(model.SplitSuperseded), ts, string(model.SplitActive)); err != nil {
		return fmt.Errorf("close active split: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE allocation_log SET status = ?, valid_from = ?, reviewed_by = ?
		WHERE id = ? AND status = ?`), string(model.SplitActive), ts, reviewer, id, string(model.SplitProposed))
	if isUniqueViolation(err) {
		return fmt.Errorf("activate split %s: %w", id, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("activate split %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("activate split %s: %w", id, ErrConflict)
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("activate split %s: %w", id, ErrConflict)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RejectSplit marks a proposed split rejected.
func (s *Store) RejectSplit(ctx context.Context, id, reviewer string) error {
	res, err := s.exec(ctx, `UPDATE allocation_log SET status = ?, reviewed_by = ? WHERE id = ? AND status = ?`,
		string(model.SplitRejected), reviewer, id, string(model.SplitProposed))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		if _, err := s.GetSplit(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("split %s is not proposed: %w", id, ErrConflict)
	}
	return nil
}

func scanSplit(sc scanner) (model.AllocationSplit, error) {
	var (
		sp          model.AllocationSplit
		status      string
		metrics     string
		proposed    int64
		from, until sql.NullInt64
	)
	err := sc.Scan(&sp.ID, &sp.Reinvestment, &sp.Treasury, &sp.Reward, &sp.Originator, &status,
		&sp.Reasoning, &sp.Confidence, &metrics, &sp.ReviewedBy, &proposed, &from, &until)
	if err != nil {
		return sp, err
	}
	sp.Status = model.SplitStatus(status)
	sp.ProposedAt = fromMillis(proposed)
	sp.ValidFrom = timePtr(from)
	sp.ValidUntil = timePtr(until)
	if metrics != "" && metrics != "null" {
		if err := json.Unmarshal([]byte(metrics), &sp.SourceMetrics); err != nil {
			return sp, fmt.Errorf("decode source metrics: %w", err)
		}
	}
	return sp, nil
}
