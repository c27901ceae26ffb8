package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"TokenSentinel/internal/model"
)

const proofColumns = `id, entropy_source, block_id, block_height, sampled_at, candidates, weights, total_weight,
	reward_amount, draw_value, winner_index, winner, digest, created_at`

// InsertProof appends an immutable selection proof.
func (s *Store) InsertProof(ctx context.Context, p model.SelectionProof) error {
	candidates, err := json.Marshal(p.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	weights, err := json.Marshal(p.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO selection_proofs (`+proofColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.EntropySource, p.BlockID, int64(p.BlockHeight), p.SampledAt.UnixNano(),
		string(candidates), string(weights), strconv.FormatUint(p.TotalWeight, 10),
		p.RewardAmount, strconv.FormatUint(p.DrawValue, 10), p.Index, p.Winner, p.Digest, millis(p.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("proof %s: %w", p.ID, ErrDuplicate)
	}
	return err
}

// GetProof loads a proof by id.
func (s *Store) GetProof(ctx context.Context, id string) (model.SelectionProof, error) {
	p, err := scanProof(s.queryRow(ctx, `SELECT `+proofColumns+` FROM selection_proofs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.SelectionProof{}, fmt.Errorf("proof %s: %w", id, ErrNotFound)
	}
	return p, err
}

// ListProofs returns proofs created since the given instant, newest first.
func (s *Store) ListProofs(ctx context.Context, since time.Time) ([]model.SelectionProof, error) {
	rows, err := s.query(ctx, `SELECT `+proofColumns+` FROM selection_proofs
		WHERE created_at >= ? ORDER BY created_at DESC`, millis(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SelectionProof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentWinners returns the distinct winners of paid proofs since the given
// instant. A proof counts as paid once a reward activity row names it.
func (s *Store) RecentWinners(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.query(ctx, `SELECT DISTINCT winner FROM selection_proofs
		WHERE created_at >= ? AND id IN (SELECT note FROM activity_log WHERE kind = ?)`,
		millis(since), string(model.ActivityReward))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UnpaidProofs returns proofs created since the given instant that no reward
// activity row names yet, oldest first.
func (s *Store) UnpaidProofs(ctx context.Context, since time.Time) ([]model.SelectionProof, error) {
	rows, err := s.query(ctx, `SELECT `+proofColumns+` FROM selection_proofs
		WHERE created_at >= ? AND id NOT IN (SELECT note FROM activity_log WHERE kind = ?)
		ORDER BY created_at ASC`, millis(since), string(model.ActivityReward))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SelectionProof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProof(sc scanner) (model.SelectionProof, error) {
	var (
		p                        model.SelectionProof
		height, sampled, created int64
		candidates, weights      string
		total, draw              string
	)
	err := sc.Scan(&p.ID, &p.EntropySource, &p.BlockID, &height, &sampled, &candidates, &weights, &total,
		&p.RewardAmount, &draw, &p.Index, &p.Winner, &p.Digest, &created)
	if err != nil {
		return p, err
	}
	p.BlockHeight = uint64(height)
	// nanoseconds: the sample time feeds the draw and must round-trip exactly
	p.SampledAt = time.Unix(0, sampled).UTC()
	p.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(candidates), &p.Candidates); err != nil {
		return p, fmt.Errorf("decode candidates: %w", err)
	}
	if err := json.Unmarshal([]byte(weights), &p.Weights); err != nil {
		return p, fmt.Errorf("decode weights: %w", err)
	}
	if p.TotalWeight, err = strconv.ParseUint(total, 10, 64); err != nil {
		return p, fmt.Errorf("decode total weight: %w", err)
	}
	if p.DrawValue, err = strconv.ParseUint(draw, 10, 64); err != nil {
		return p, fmt.Errorf("decode draw value: %w", err)
	}
	return p, nil
}
