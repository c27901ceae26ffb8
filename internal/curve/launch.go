package curve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TokenSentinel/internal/logger"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/store"
	"TokenSentinel/internal/transfer"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LaunchRequest issues a new asset.
type LaunchRequest struct {
	Asset   string
	Name    string
	Supply  decimal.Decimal
	Creator string
}

// Launcher mints new assets and bootstraps their curves.
type Launcher struct {
	store  Store
	minter transfer.Minter
	params Params
	retry  transfer.RetryPolicy
	clock  func() time.Time
	log    zerolog.Logger
}

// NewLauncher creates a Launcher; retry bounds the mint attempts.
func NewLauncher(st Store, minter transfer.Minter, params Params, retry transfer.RetryPolicy) *Launcher {
	return &Launcher{
		store:  st,
		minter: minter,
		params: params,
		retry:  retry,
		clock:  func() time.Time { return time.Now().UTC() },
		log:    logger.GetForComponent("launch"),
	}
}

// WithClock overrides the launch clock for deterministic tests.
func (l *Launcher) WithClock(clock func() time.Time) {
	if clock != nil {
		l.clock = clock
	}
}

// Launch mints the supply with bounded retries, then creates the curve row.
// The asset symbol is the mint idempotency key, so a retried or raced mint
// never issues twice.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) (model.CurveState, transfer.Receipt, error) {
	st, err := InitCurve(l.params, req.Supply)
	if err != nil {
		return model.CurveState{}, transfer.Receipt{}, err
	}
	if _, err := l.store.GetCurve(ctx, req.Asset); err == nil {
		return model.CurveState{}, transfer.Receipt{}, fmt.Errorf("%s: %w", req.Asset, ErrCurveExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.CurveState{}, transfer.Receipt{}, fmt.Errorf("load curve %s: %w", req.Asset, err)
	}

	var receipt transfer.Receipt
	err = l.retry.Do(ctx, func(attempt int) error {
		r, err := l.minter.Mint(ctx, transfer.MintInstruction{
			Asset:          req.Asset,
			Name:           req.Name,
			Supply:         req.Supply,
			Creator:        req.Creator,
			IdempotencyKey: "mint:" + req.Asset,
		})
		if err != nil {
			l.log.Warn().Err(err).Str("asset", req.Asset).Int("attempt", attempt).Msg("mint failed")
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return model.CurveState{}, transfer.Receipt{}, fmt.Errorf("mint %s: %w", req.Asset, err)
	}

	if err := l.store.CreateCurve(ctx, req.Asset, st); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.CurveState{}, receipt, fmt.Errorf("%s: %w", req.Asset, ErrCurveExists)
		}
		return model.CurveState{}, receipt, fmt.Errorf("create curve %s: %w", req.Asset, err)
	}
	if err := l.store.RecordActivity(ctx, model.Activity{
		Kind:       model.ActivityTokenCreated,
		Wallet:     req.Creator,
		Asset:      req.Asset,
		BaseAmount: req.Supply,
		Note:       req.Name,
		At:         l.clock(),
	}); err != nil {
		l.log.Error().Err(err).Str("asset", req.Asset).Msg("record launch activity")
	}

	l.log.Info().Str("asset", req.Asset).Str("supply", req.Supply.String()).Str("signature", receipt.Signature).Msg("asset launched")
	return st, receipt, nil
}
