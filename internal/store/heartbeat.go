package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"TokenSentinel/internal/model"
)

const heartbeatColumns = `id, at, interval_ms, market_score, time_score, entropy_score, triggered, outcome, next_at`

// InsertHeartbeat appends a heartbeat record.
func (s *Store) InsertHeartbeat(ctx context.Context, h model.HeartbeatRecord) error {
	triggered := 0
	if h.Triggered {
		triggered = 1
	}
	_, err := s.exec(ctx, `INSERT INTO heartbeat_log (`+heartbeatColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		h.ID, millis(h.At), h.Interval.Milliseconds(), h.MarketScore, h.TimeScore, h.EntropyScore,
		triggered, h.Outcome, millis(h.NextAt),
	)
	return err
}

// LatestHeartbeat loads the newest record; its NextAt gates the next cycle.
func (s *Store) LatestHeartbeat(ctx context.Context) (model.HeartbeatRecord, error) {
	h, err := scanHeartbeat(s.queryRow(ctx, `SELECT `+heartbeatColumns+` FROM heartbeat_log
		ORDER BY at DESC, next_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return model.HeartbeatRecord{}, fmt.Errorf("heartbeat: %w", ErrNotFound)
	}
	return h, err
}

// ListHeartbeats returns the newest records first.
func (s *Store) ListHeartbeats(ctx context.Context, limit int) ([]model.HeartbeatRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, `SELECT `+heartbeatColumns+` FROM heartbeat_log ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HeartbeatRecord
	for rows.Next() {
		h, err := scanHeartbeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHeartbeat(sc scanner) (model.HeartbeatRecord, error) {
	var (
		h                    model.HeartbeatRecord
		at, interval, nextAt int64
		triggered            int
	)
	err := sc.Scan(&h.ID, &at, &interval, &h.MarketScore, &h.TimeScore, &h.EntropyScore, &triggered, &h.Outcome, &nextAt)
	if err != nil {
		return h, err
	}
	h.At = fromMillis(at)
	h.Interval = time.Duration(interval) * time.Millisecond
	h.Triggered = triggered != 0
	h.NextAt = fromMillis(nextAt)
	return h, nil
}
