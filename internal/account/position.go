package account

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Position is an open holding valued at the last marked price
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

func newPosition(symbol string, qty, price decimal.Decimal) *Position {
	return &Position{
		Symbol:       symbol,
		Quantity:     qty,
		AvgPrice:     price,
		CurrentPrice: price,
	}
}

// MarketValue is quantity times current price
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// CostBasis is quantity times average price
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AvgPrice)
}

// UnrealizedPnL is market value minus cost basis
func (p Position) UnrealizedPnL() decimal.Decimal {
	return p.MarketValue().Sub(p.CostBasis())
}

// UnrealizedPnLPercent is the mark relative to average price, 0 when the average is not positive
func (p Position) UnrealizedPnLPercent() decimal.Decimal {
	if !p.AvgPrice.IsPositive() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.AvgPrice).Div(p.AvgPrice).Mul(hundred)
}

// add merges a buy into the position using the weighted-average rule
func (p *Position) add(qty, price decimal.Decimal) {
	if !qty.IsPositive() {
		return
	}
	total := p.CostBasis().Add(qty.Mul(price))
	p.Quantity = p.Quantity.Add(qty)
	p.AvgPrice = total.Div(p.Quantity)
}

// reduce lowers the quantity, never below zero
func (p *Position) reduce(qty decimal.Decimal) {
	if !qty.IsPositive() {
		return
	}
	p.Quantity = p.Quantity.Sub(qty)
	if p.Quantity.IsNegative() {
		p.Quantity = decimal.Zero
	}
}

// PositionView is a position snapshot with its derived figures
type PositionView struct {
	Position
	MarketValue          decimal.Decimal `json:"market_value"`
	CostBasis            decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
}

// View returns the position with derived figures filled in
func (p Position) View() PositionView {
	return PositionView{
		Position:             p,
		MarketValue:          p.MarketValue(),
		CostBasis:            p.CostBasis(),
		UnrealizedPnL:        p.UnrealizedPnL(),
		UnrealizedPnLPercent: p.UnrealizedPnLPercent().Round(4),
	}
}
