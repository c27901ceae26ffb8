package curve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TokenSentinel/internal/guard"
	"TokenSentinel/internal/logger"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/store"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrCurveNotFound = errors.New("curve not found")
	ErrCurveExists   = errors.New("curve already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrTradeRejected = errors.New("trade rejected by guard")
	ErrContention    = errors.New("curve update contention")
)

// Store is the persistence the trader needs.
type Store interface {
	GetCurve(ctx context.Context, asset string) (model.Curve, error)
	CreateCurve(ctx context.Context, asset string, st model.CurveState) error
	SwapCurve(ctx context.Context, asset string, version int64, next model.CurveState) (bool, error)
	RecordActivity(ctx context.Context, a model.Activity) error
	ListActivity(ctx context.Context, f model.ActivityFilter) ([]model.Activity, error)
}

// TradeRequest is one buy or sell. Amount is quote for buys and base for sells.
type TradeRequest struct {
	Asset          string
	Wallet         string
	Amount         decimal.Decimal
	MaxSlippagePct decimal.Decimal
}

// TradeResult is an executed trade.
type TradeResult struct {
	Quote
	Asset     string
	Wallet    string
	Graduated bool
	Flags     []string
}

// Trader executes trades with guard checks and compare-and-swap persistence.
type Trader struct {
	store       Store
	params      Params
	limits      guard.Limits
	maxAttempts int
	clock       func() time.Time
	log         zerolog.Logger
}

// NewTrader creates a Trader.
func NewTrader(st Store, params Params, limits guard.Limits) *Trader {
	return &Trader{
		store:       st,
		params:      params,
		limits:      limits,
		maxAttempts: 16,
		clock:       func() time.Time { return time.Now().UTC() },
		log:         logger.GetForComponent("curve"),
	}
}

// WithClock overrides the trader clock for deterministic tests.
func (t *Trader) WithClock(clock func() time.Time) {
	if clock != nil {
		t.clock = clock
	}
}

// Params returns the curve constants in use.
func (t *Trader) Params() Params { return t.params }

// Buy spends req.Amount quote on the asset.
func (t *Trader) Buy(ctx context.Context, req TradeRequest) (TradeResult, error) {
	return t.trade(ctx, model.SideBuy, req)
}

// Sell sells req.Amount base of the asset.
func (t *Trader) Sell(ctx context.Context, req TradeRequest) (TradeResult, error) {
	return t.trade(ctx, model.SideSell, req)
}

// Preview prices a trade against the current state without executing it.
func (t *Trader) Preview(ctx context.Context, side model.Side, req TradeRequest) (Quote, error) {
	c, err := t.curve(ctx, req.Asset)
	if err != nil {
		return Quote{}, err
	}
	return t.quote(side, c.State, req)
}

func (t *Trader) trade(ctx context.Context, side model.Side, req TradeRequest) (TradeResult, error) {
	now := t.clock()

	recent, err := t.store.ListActivity(ctx, model.ActivityFilter{
		Kinds:  []model.ActivityKind{model.ActivityTrade},
		Wallet: req.Wallet,
		Since:  now.Add(-24 * time.Hour),
	})
	if err != nil {
		return TradeResult{}, fmt.Errorf("load recent trades: %w", err)
	}
	times := make([]time.Time, len(recent))
	for i, a := range recent {
		times[i] = a.At
	}
	if v := guard.CheckRate(times, now, t.limits.Rate); !v.Allowed {
		return TradeResult{}, fmt.Errorf("%d trades in the last %s, retry after %s: %w",
			v.Count, v.Window, v.RetryAfter.Round(time.Second), ErrRateLimited)
	}

	var (
		q    Quote
		prev model.CurveState
	)
	for attempt := 1; ; attempt++ {
		c, err := t.curve(ctx, req.Asset)
		if err != nil {
			return TradeResult{}, err
		}
		q, err = t.quote(side, c.State, req)
		if err != nil {
			return TradeResult{}, err
		}
		if err := t.checkLimits(q, c.State); err != nil {
			return TradeResult{}, err
		}
		ok, err := t.store.SwapCurve(ctx, req.Asset, c.Version, q.Next)
		if err != nil {
			return TradeResult{}, fmt.Errorf("persist curve %s: %w", req.Asset, err)
		}
		if ok {
			prev = c.State
			break
		}
		if attempt >= t.maxAttempts {
			return TradeResult{}, fmt.Errorf("%s after %d attempts: %w", req.Asset, attempt, ErrContention)
		}
		t.log.Debug().Str("asset", req.Asset).Int("attempt", attempt).Msg("curve version moved, requoting")
	}

	res := TradeResult{Quote: q, Asset: req.Asset, Wallet: req.Wallet}
	act := model.Activity{
		Kind:   model.ActivityTrade,
		Wallet: req.Wallet,
		Asset:  req.Asset,
		Side:   side,
		At:     now,
	}
	if side == model.SideBuy {
		act.BaseAmount, act.QuoteAmount = q.AmountOut, q.AmountIn
	} else {
		act.BaseAmount, act.QuoteAmount = q.AmountIn, q.AmountOut
	}
	if err := t.store.RecordActivity(ctx, act); err != nil {
		t.log.Error().Err(err).Str("asset", req.Asset).Msg("record trade activity")
	}
	if q.Fee.IsPositive() {
		if err := t.store.RecordActivity(ctx, model.Activity{
			Kind: model.ActivityFee, Wallet: req.Wallet, Asset: req.Asset, QuoteAmount: q.Fee, At: now,
		}); err != nil {
			t.log.Error().Err(err).Str("asset", req.Asset).Msg("record fee activity")
		}
	}

	res.Flags = t.flag(ctx, req, q.Next.TotalSupply, now)
	if HasGraduated(q.Next, t.params.GraduationTarget) && !HasGraduated(prev, t.params.GraduationTarget) {
		res.Graduated = true
		t.log.Info().Str("asset", req.Asset).Str("real_quote", q.Next.RealQuote.String()).Msg("curve graduated")
	}

	t.log.Info().
		Str("asset", req.Asset).
		Str("side", string(side)).
		Str("in", q.AmountIn.String()).
		Str("out", q.AmountOut.String()).
		Str("slippage_pct", q.SlippagePct.StringFixed(4)).
		Msg("trade executed")
	return res, nil
}

func (t *Trader) curve(ctx context.Context, asset string) (model.Curve, error) {
	c, err := t.store.GetCurve(ctx, asset)
	if errors.Is(err, store.ErrNotFound) {
		return model.Curve{}, fmt.Errorf("%s: %w", asset, ErrCurveNotFound)
	}
	if err != nil {
		return model.Curve{}, fmt.Errorf("load curve %s: %w", asset, err)
	}
	return c, nil
}

func (t *Trader) quote(side model.Side, st model.CurveState, req TradeRequest) (Quote, error) {
	if side == model.SideBuy {
		return QuoteBuy(t.params, st, req.Amount, req.MaxSlippagePct)
	}
	return QuoteSell(t.params, st, req.Amount, req.MaxSlippagePct)
}

// checkLimits blocks on trade size and supply share.
func (t *Trader) checkLimits(q Quote, st model.CurveState) error {
	quoteSize, baseSize := q.AmountIn, q.AmountOut
	if q.Side == model.SideSell {
		quoteSize, baseSize = q.AmountOut.Add(q.Fee), q.AmountIn
	}
	if v := guard.CheckTradeSize(quoteSize, t.limits.MinTrade, t.limits.MaxTrade); !v.OK {
		return fmt.Errorf("%s: %w", v.Reason, ErrTradeRejected)
	}
	if v := guard.CheckSupplyShare(baseSize, st.TotalSupply, t.limits.MaxSupplyPct); !v.OK {
		return fmt.Errorf("%s: %w", v.Reason, ErrTradeRejected)
	}
	return nil
}

// flag records whale and pump-and-dump classifications without blocking.
func (t *Trader) flag(ctx context.Context, req TradeRequest, supply decimal.Decimal, now time.Time) []string {
	history, err := t.store.ListActivity(ctx, model.ActivityFilter{
		Kinds:  []model.ActivityKind{model.ActivityTrade},
		Wallet: req.Wallet,
		Asset:  req.Asset,
	})
	if err != nil {
		t.log.Warn().Err(err).Str("wallet", req.Wallet).Msg("load trade history for flags")
		return nil
	}
	trades := make([]guard.Trade, len(history))
	for i, a := range history {
		trades[i] = guard.Trade{Side: a.Side, Base: a.BaseAmount, At: a.At}
	}

	var flags []string
	if pct := guard.HoldingsPct(trades, supply); guard.IsWhale(pct, t.limits.WhalePct) {
		flags = append(flags, fmt.Sprintf("whale: holds %.2f%% of supply", pct))
	}
	if pairs, hit := guard.DetectPumpDump(trades, t.limits.PumpWindow, t.limits.PumpMinPairs); hit {
		flags = append(flags, fmt.Sprintf("pump_and_dump: %d buy-sell pairs", pairs))
	}
	for _, f := range flags {
		t.log.Warn().Str("wallet", req.Wallet).Str("asset", req.Asset).Msg(f)
		if err := t.store.RecordActivity(ctx, model.Activity{
			Kind: model.ActivityFlag, Wallet: req.Wallet, Asset: req.Asset, Note: f, At: now,
		}); err != nil {
			t.log.Error().Err(err).Msg("record flag")
		}
	}
	return flags
}
