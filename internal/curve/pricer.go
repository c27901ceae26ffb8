// Package curve prices trades on a constant-product bonding curve and persists
// the resulting reserves atomically per asset.
package curve

import (
	"errors"
	"fmt"

	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// precision is the number of fractional digits kept for reserves.
const precision = 18

var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
)

// Params are the bootstrap constants of every curve.
type Params struct {
	VirtualBase        decimal.Decimal
	VirtualQuote       decimal.Decimal
	PublicSaleFraction decimal.Decimal
	FeePct             decimal.Decimal
	GraduationTarget   decimal.Decimal
}

// DefaultParams returns the production curve constants.
func DefaultParams() Params {
	return Params{
		VirtualBase:        decimal.NewFromInt(1_073_000_000),
		VirtualQuote:       decimal.NewFromInt(30_000),
		PublicSaleFraction: decimal.RequireFromString("0.8"),
		FeePct:             decimal.NewFromInt(1),
		GraduationTarget:   decimal.NewFromInt(85_000),
	}
}

// Quote is a priced trade together with the full next state of the curve.
type Quote struct {
	Side           model.Side
	AmountIn       decimal.Decimal
	AmountOut      decimal.Decimal // base for buys, quote net of fee for sells
	ExecutionPrice decimal.Decimal
	SlippagePct    decimal.Decimal
	Fee            decimal.Decimal
	Next           model.CurveState
}

// InitCurve bootstraps reserves for a newly issued asset.
func InitCurve(p Params, supply decimal.Decimal) (model.CurveState, error) {
	if !supply.IsPositive() {
		return model.CurveState{}, fmt.Errorf("supply %s: %w", supply, ErrInvalidAmount)
	}
	return model.CurveState{
		VirtualBase:  p.VirtualBase,
		VirtualQuote: p.VirtualQuote,
		RealBase:     supply.Mul(p.PublicSaleFraction).Truncate(precision),
		RealQuote:    decimal.Zero,
		TotalSupply:  supply,
	}, nil
}

// QuoteBuy prices spending quoteIn on base. The fee comes off the input before
// the exchange. A zero maxSlippagePct disables the slippage check.
func QuoteBuy(p Params, s model.CurveState, quoteIn, maxSlippagePct decimal.Decimal) (Quote, error) {
	if !quoteIn.IsPositive() {
		return Quote{}, fmt.Errorf("quote in %s: %w", quoteIn, ErrInvalidAmount)
	}
	fee := quoteIn.Mul(p.FeePct).Shift(-2)
	afterFee := quoteIn.Sub(fee)

	nextQuote := s.VirtualQuote.Add(afterFee)
	nextBase := floorDiv(s.K(), nextQuote)
	baseOut := s.VirtualBase.Sub(nextBase)
	if !baseOut.IsPositive() {
		return Quote{}, fmt.Errorf("quote in %s buys nothing: %w", quoteIn, ErrInvalidAmount)
	}
	if baseOut.GreaterThan(s.RealBase) {
		return Quote{}, fmt.Errorf("base out %s exceeds real reserve %s: %w", baseOut, s.RealBase, ErrInsufficientLiquidity)
	}

	exec := afterFee.DivRound(baseOut, precision)
	slippage := slippagePct(s.MarginalPrice(), exec)
	if err := checkSlippage(slippage, maxSlippagePct); err != nil {
		return Quote{}, err
	}

	return Quote{
		Side:           model.SideBuy,
		AmountIn:       quoteIn,
		AmountOut:      baseOut,
		ExecutionPrice: exec,
		SlippagePct:    slippage,
		Fee:            fee,
		Next: model.CurveState{
			VirtualBase:  nextBase,
			VirtualQuote: nextQuote,
			RealBase:     s.RealBase.Sub(baseOut),
			RealQuote:    s.RealQuote.Add(afterFee),
			TotalSupply:  s.TotalSupply,
		},
	}, nil
}

// QuoteSell prices selling baseIn for quote. The fee comes off the gross output.
func QuoteSell(p Params, s model.CurveState, baseIn, maxSlippagePct decimal.Decimal) (Quote, error) {
	if !baseIn.IsPositive() {
		return Quote{}, fmt.Errorf("base in %s: %w", baseIn, ErrInvalidAmount)
	}
	nextBase := s.VirtualBase.Add(baseIn)
	nextQuote := floorDiv(s.K(), nextBase)
	gross := s.VirtualQuote.Sub(nextQuote)
	if !gross.IsPositive() {
		return Quote{}, fmt.Errorf("base in %s returns nothing: %w", baseIn, ErrInvalidAmount)
	}
	if gross.GreaterThan(s.RealQuote) {
		return Quote{}, fmt.Errorf("quote out %s exceeds real reserve %s: %w", gross, s.RealQuote, ErrInsufficientLiquidity)
	}

	exec := gross.DivRound(baseIn, precision)
	slippage := slippagePct(s.MarginalPrice(), exec)
	if err := checkSlippage(slippage, maxSlippagePct); err != nil {
		return Quote{}, err
	}
	fee := gross.Mul(p.FeePct).Shift(-2)

	return Quote{
		Side:           model.SideSell,
		AmountIn:       baseIn,
		AmountOut:      gross.Sub(fee),
		ExecutionPrice: exec,
		SlippagePct:    slippage,
		Fee:            fee,
		Next: model.CurveState{
			VirtualBase:  nextBase,
			VirtualQuote: nextQuote,
			RealBase:     s.RealBase.Add(baseIn),
			RealQuote:    s.RealQuote.Sub(gross),
			TotalSupply:  s.TotalSupply,
		},
	}, nil
}

// HasGraduated reports whether the settled quote reserve reached target.
func HasGraduated(s model.CurveState, target decimal.Decimal) bool {
	return target.IsPositive() && s.RealQuote.GreaterThanOrEqual(target)
}

// Progress returns graduation progress in percent, capped at 100.
func Progress(s model.CurveState, target decimal.Decimal) float64 {
	if !target.IsPositive() {
		return 0
	}
	pct := s.RealQuote.DivRound(target, 8).Shift(2).InexactFloat64()
	if pct > 100 {
		return 100
	}
	return pct
}

// floorDiv truncates a/b to the reserve precision, so the product of the
// result and b never exceeds a.
func floorDiv(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, precision)
	return q
}

func slippagePct(marginal, exec decimal.Decimal) decimal.Decimal {
	if marginal.IsZero() {
		return decimal.Zero
	}
	return exec.Sub(marginal).Abs().DivRound(marginal, 8).Shift(2)
}

func checkSlippage(slippage, max decimal.Decimal) error {
	if max.IsPositive() && slippage.GreaterThan(max) {
		return fmt.Errorf("slippage %s%% above %s%%: %w", slippage.StringFixed(4), max, ErrSlippageExceeded)
	}
	return nil
}
