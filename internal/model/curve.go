package model

import "github.com/shopspring/decimal"

// CurveState holds the reserves of one tradable asset.
// All four reserve fields change together on every trade; persist the whole value.
type CurveState struct {
	VirtualBase  decimal.Decimal `json:"virtual_base"`
	VirtualQuote decimal.Decimal `json:"virtual_quote"`
	RealBase     decimal.Decimal `json:"real_base"`
	RealQuote    decimal.Decimal `json:"real_quote"`
	TotalSupply  decimal.Decimal `json:"total_supply"`
}

// K returns the constant product of the virtual reserves.
func (c CurveState) K() decimal.Decimal {
	return c.VirtualBase.Mul(c.VirtualQuote)
}

// MarginalPrice is the quote price of one base unit before any trade.
func (c CurveState) MarginalPrice() decimal.Decimal {
	if c.VirtualBase.IsZero() {
		return decimal.Zero
	}
	return c.VirtualQuote.DivRound(c.VirtualBase, 18)
}

// Curve is a persisted curve row.
type Curve struct {
	Asset     string
	State     CurveState
	Version   int64
	CreatedAt int64
	UpdatedAt int64
}
