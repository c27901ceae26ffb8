package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"TokenSentinel/internal/model"
)

const reviewColumns = `id, action_type, source, payload, guardrails, entropy_factor, seed, decision,
	confidence, reasoning, public_message, created_at`

// InsertReview appends a governor review to the audit trail.
func (s *Store) InsertReview(ctx context.Context, r model.GovernorReview) error {
	guardrails, err := json.Marshal(r.Guardrails)
	if err != nil {
		return fmt.Errorf("marshal guardrails: %w", err)
	}
	payload := string(r.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err = s.exec(ctx, `INSERT INTO governor_log (`+reviewColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, string(r.ActionType), r.Source, payload, string(guardrails), r.EntropyFactor,
		strconv.FormatUint(r.Seed, 10), string(r.Decision), r.Confidence, r.Reasoning, r.PublicMessage,
		millis(r.CreatedAt),
	)
	return err
}

// CountReviews counts reviews of an action type with one of the given
// decisions since the given instant.
func (s *Store) CountReviews(ctx context.Context, action model.ActionType, decisions []model.Decision, since time.Time) (int, error) {
	args := []any{string(action), millis(since)}
	q := `SELECT COUNT(*) FROM governor_log WHERE action_type = ? AND created_at >= ?`
	if len(decisions) > 0 {
		marks := make([]string, len(decisions))
		for i, d := range decisions {
			marks[i] = "?"
			args = append(args, string(d))
		}
		q += " AND decision IN (" + strings.Join(marks, ",") + ")"
	}
	var n int
	err := s.queryRow(ctx, q, args...).Scan(&n)
	return n, err
}

// ListReviews returns the newest reviews first.
func (s *Store) ListReviews(ctx context.Context, limit int) ([]model.GovernorReview, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, `SELECT `+reviewColumns+` FROM governor_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GovernorReview
	for rows.Next() {
		var (
			r                               model.GovernorReview
			action, payload, rails, seed, d string
			created                         int64
		)
		if err := rows.Scan(&r.ID, &action, &r.Source, &payload, &rails, &r.EntropyFactor, &seed, &d,
			&r.Confidence, &r.Reasoning, &r.PublicMessage, &created); err != nil {
			return nil, err
		}
		r.ActionType = model.ActionType(action)
		r.Payload = json.RawMessage(payload)
		r.Decision = model.Decision(d)
		r.CreatedAt = fromMillis(created)
		if err := json.Unmarshal([]byte(rails), &r.Guardrails); err != nil {
			return nil, fmt.Errorf("decode guardrails: %w", err)
		}
		if r.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("decode seed: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
