package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"TokenSentinel/internal/model"
)

// CreateCurve inserts the bootstrap state of an asset. It returns ErrDuplicate
// if the asset already has a curve.
func (s *Store) CreateCurve(ctx context.Context, asset string, st model.CurveState) error {
	now := millis(s.now())
	_, err := s.exec(ctx, `INSERT INTO curve_state
		(asset, virtual_base, virtual_quote, real_base, real_quote, total_supply, version, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		asset, st.VirtualBase, st.VirtualQuote, st.RealBase, st.RealQuote, st.TotalSupply, 1, now, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("curve %s: %w", asset, ErrDuplicate)
	}
	return err
}

// GetCurve loads the current state and version of an asset.
func (s *Store) GetCurve(ctx context.Context, asset string) (model.Curve, error) {
	row := s.queryRow(ctx, `SELECT asset, virtual_base, virtual_quote, real_base, real_quote, total_supply,
		version, created_at, updated_at FROM curve_state WHERE asset = ?`, asset)
	c, err := scanCurve(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Curve{}, fmt.Errorf("curve %s: %w", asset, ErrNotFound)
	}
	return c, err
}

// SwapCurve replaces the state of an asset only if its version is unchanged.
// It reports false when another trade won the race.
func (s *Store) SwapCurve(ctx context.Context, asset string, version int64, next model.CurveState) (bool, error) {
	res, err := s.exec(ctx, `UPDATE curve_state SET
		virtual_base = ?, virtual_quote = ?, real_base = ?, real_quote = ?, total_supply = ?,
		version = version + 1, updated_at = ?
		WHERE asset = ? AND version = ?`,
		next.VirtualBase, next.VirtualQuote, next.RealBase, next.RealQuote, next.TotalSupply,
		millis(s.now()), asset, version,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListCurves returns every curve ordered by asset.
func (s *Store) ListCurves(ctx context.Context) ([]model.Curve, error) {
	rows, err := s.query(ctx, `SELECT asset, virtual_base, virtual_quote, real_base, real_quote, total_supply,
		version, created_at, updated_at FROM curve_state ORDER BY asset`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Curve
	for rows.Next() {
		c, err := scanCurve(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCurve(sc scanner) (model.Curve, error) {
	var c model.Curve
	err := sc.Scan(&c.Asset, &c.State.VirtualBase, &c.State.VirtualQuote, &c.State.RealBase,
		&c.State.RealQuote, &c.State.TotalSupply, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
