package store

import (
	"context"
	"strings"

	"TokenSentinel/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordActivity appends a row to the activity log.
func (s *Store) RecordActivity(ctx context.Context, a model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = s.now()
	}
	_, err := s.exec(ctx, `INSERT INTO activity_log
		(id, kind, wallet, asset, side, base_amount, quote_amount, note, at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, string(a.Kind), a.Wallet, a.Asset, string(a.Side), a.BaseAmount, a.QuoteAmount, a.Note, millis(a.At),
	)
	return err
}

// ListActivity returns matching rows oldest first.
func (s *Store) ListActivity(ctx context.Context, f model.ActivityFilter) ([]model.Activity, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Kinds) > 0 {
		marks := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ",")+")")
	}
	if f.Wallet != "" {
		where = append(where, "wallet = ?")
		args = append(args, f.Wallet)
	}
	if f.Asset != "" {
		where = append(where, "asset = ?")
		args = append(args, f.Asset)
	}
	if !f.Since.IsZero() {
		where = append(where, "at >= ?")
		args = append(args, millis(f.Since))
	}

	q := `SELECT id, kind, wallet, asset, side, base_amount, quote_amount, note, at FROM activity_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY at ASC, id ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a          model.Activity
			kind, side string
			at         int64
		)
		if err := rows.Scan(&a.ID, &kind, &a.Wallet, &a.Asset, &side, &a.BaseAmount, &a.QuoteAmount, &a.Note, &at); err != nil {
			return nil, err
		}
		a.Kind = model.ActivityKind(kind)
		a.Side = model.Side(side)
		a.At = fromMillis(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActivityStats aggregates trade volume, trade count and distinct connected
// wallets since the given instant.
func (s *Store) ActivityStats(ctx context.Context, f model.ActivityFilter) (model.ActivityStats, error) {
	f.Kinds = []model.ActivityKind{model.ActivityTrade, model.ActivityWalletConnect}
	rows, err := s.ListActivity(ctx, f)
	if err != nil {
		return model.ActivityStats{}, err
	}
	var st model.ActivityStats
	wallets := make(map[string]struct{})
	for _, a := range rows {
		switch a.Kind {
		case model.ActivityTrade:
			st.Trades++
			st.Volume = st.Volume.Add(a.QuoteAmount)
		case model.ActivityWalletConnect:
			wallets[a.Wallet] = struct{}{}
		}
	}
	st.Wallets = len(wallets)
	return st, nil
}

// PendingProfit is the realized fee income not yet distributed, floored at zero.
func (s *Store) PendingProfit(ctx context.Context) (decimal.Decimal, error) {
	rows, err := s.ListActivity(ctx, model.ActivityFilter{
		Kinds: []model.ActivityKind{model.ActivityFee, model.ActivityDistribution},
	})
	if err != nil {
		return decimal.Zero, err
	}
	pending := decimal.Zero
	for _, a := range rows {
		switch a.Kind {
		case model.ActivityFee:
			pending = pending.Add(a.QuoteAmount)
		case model.ActivityDistribution:
			pending = pending.Sub(a.QuoteAmount)
		}
	}
	if pending.IsNegative() {
		return decimal.Zero, nil
	}
	return pending, nil
}
