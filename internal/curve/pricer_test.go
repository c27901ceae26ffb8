package curve

import (
	"testing"

	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func freshCurve(t *testing.T) model.CurveState {
	t.Helper()
	st, err := InitCurve(DefaultParams(), d("1000000000"))
	require.NoError(t, err)
	return st
}

func TestInitCurve(t *testing.T) {
	st := freshCurve(t)
	assert.True(t, st.VirtualBase.Equal(d("1073000000")))
	assert.True(t, st.VirtualQuote.Equal(d("30000")))
	assert.True(t, st.RealBase.Equal(d("800000000")))
	assert.True(t, st.RealQuote.IsZero())

	_, err := InitCurve(DefaultParams(), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestQuoteBuy_SmallTrade(t *testing.T) {
	st := freshCurve(t)
	q, err := QuoteBuy(DefaultParams(), st, d("1"), d("1"))
	require.NoError(t, err)

	assert.True(t, q.AmountOut.IsPositive())
	assert.True(t, q.Fee.Equal(d("0.01")), "fee %s", q.Fee)
	assert.True(t, q.SlippagePct.LessThan(d("1")), "slippage %s", q.SlippagePct)
	assert.True(t, q.Next.RealQuote.Equal(d("0.99")))
	assert.True(t, q.Next.RealBase.Equal(st.RealBase.Sub(q.AmountOut)))
	assert.True(t, q.Next.VirtualQuote.Equal(d("30000.99")))
}

func TestQuoteSell_FeeFromOutput(t *testing.T) {
	st := freshCurve(t)
	buy, err := QuoteBuy(DefaultParams(), st, d("100"), decimal.Zero)
	require.NoError(t, err)

	sell, err := QuoteSell(DefaultParams(), buy.Next, d("1000"), decimal.Zero)
	require.NoError(t, err)
	gross := buy.Next.VirtualQuote.Sub(sell.Next.VirtualQuote)
	assert.True(t, sell.Fee.Equal(gross.Mul(d("0.01"))))
	assert.True(t, sell.AmountOut.Equal(gross.Sub(sell.Fee)))
	assert.True(t, sell.Next.RealQuote.Equal(buy.Next.RealQuote.Sub(gross)))
}

func TestConstantProductNeverIncreases(t *testing.T) {
	p := DefaultParams()
	st := freshCurve(t)
	steps := []struct {
		side   model.Side
		amount string
	}{
		{model.SideBuy, "1"},
		{model.SideBuy, "333.33"},
		{model.SideSell, "12345.6789"},
		{model.SideBuy, "7"},
		{model.SideSell, "1"},
		{model.SideBuy, "2500"},
		{model.SideSell, "1000000"},
	}
	for _, s := range steps {
		var (
			q   Quote
			err error
		)
		if s.side == model.SideBuy {
			q, err = QuoteBuy(p, st, d(s.amount), decimal.Zero)
		} else {
			q, err = QuoteSell(p, st, d(s.amount), decimal.Zero)
		}
		require.NoError(t, err, "%s %s", s.side, s.amount)
		assert.True(t, q.Next.K().LessThanOrEqual(st.K()), "%s %s raised k", s.side, s.amount)
		st = q.Next
	}
}

func TestQuote_Errors(t *testing.T) {
	p := DefaultParams()
	st := freshCurve(t)

	_, err := QuoteBuy(p, st, d("-1"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = QuoteBuy(p, st, d("1000000"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	// nothing has been bought yet, so there is no quote reserve to pay out
	_, err = QuoteSell(p, st, d("10"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = QuoteBuy(p, st, d("10000"), d("1"))
	assert.ErrorIs(t, err, ErrSlippageExceeded)

	// zero disables the check
	_, err = QuoteBuy(p, st, d("10000"), decimal.Zero)
	assert.NoError(t, err)
}

func TestGraduation(t *testing.T) {
	target := d("100")
	st := model.CurveState{RealQuote: d("50")}
	assert.False(t, HasGraduated(st, target))
	assert.InDelta(t, 50.0, Progress(st, target), 1e-9)

	st.RealQuote = d("120")
	assert.True(t, HasGraduated(st, target))
	assert.InDelta(t, 100.0, Progress(st, target), 1e-9)
	assert.False(t, HasGraduated(st, decimal.Zero))
}
