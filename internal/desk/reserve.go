package desk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradedesk/internal/account"
	"github.com/wonny/tradedesk/internal/order"
)

// reservation is what an open order holds back: cash for a buy, shares for a sell
type reservation struct {
	side   order.Side
	symbol string
	qty    decimal.Decimal
	price  decimal.Decimal
}

func (r reservation) cost() decimal.Decimal {
	return r.qty.Mul(r.price)
}

// availableCash is the cash balance less what open buys other than exclude hold.
// Caller holds bookMu.
func (d *Desk) availableCash(exclude string) decimal.Decimal {
	avail := d.account.CashBalance()
	for id, r := range d.reservations {
		if id != exclude && r.side == order.SideBuy {
			avail = avail.Sub(r.cost())
		}
	}
	return avail
}

// availableQuantity is the position in symbol less what open sells other than
// exclude hold. Caller holds bookMu.
func (d *Desk) availableQuantity(symbol, exclude string) decimal.Decimal {
	avail := decimal.Zero
	if p, ok := d.account.Position(symbol); ok {
		avail = p.Quantity
	}
	for id, r := range d.reservations {
		if id != exclude && r.side == order.SideSell && r.symbol == symbol {
			avail = avail.Sub(r.qty)
		}
	}
	return avail
}

// reserve checks qty against what other orders leave available and, on
// success, holds it for id. A failed check leaves any existing hold as it was.
// Caller holds bookMu.
func (d *Desk) reserve(id, symbol string, side order.Side, typ order.Type, qty, price decimal.Decimal) error {
	if !qty.IsPositive() {
		return nil
	}

	r := reservation{side: side, symbol: symbol, qty: qty}
	switch side {
	case order.SideBuy:
		r.price = d.referencePrice(symbol, typ, price)
		avail := d.availableCash(id)
		if cost := r.cost(); cost.GreaterThan(avail) {
			return fmt.Errorf("%w: need %s, available %s", account.ErrInsufficientFunds,
				cost.StringFixed(2), avail.StringFixed(2))
		}
	case order.SideSell:
		avail := d.availableQuantity(symbol, id)
		if qty.GreaterThan(avail) {
			return fmt.Errorf("%w: selling %s, available %s", ErrInsufficientPosition, qty, avail)
		}
	default:
		return nil
	}

	d.reservations[id] = r
	return nil
}

// consume shrinks id's hold by a fill. The hold goes once nothing remains.
// Caller holds bookMu.
func (d *Desk) consume(id string, qty decimal.Decimal, done bool) {
	r, ok := d.reservations[id]
	if !ok {
		return
	}
	r.qty = r.qty.Sub(qty)
	if done || !r.qty.IsPositive() {
		delete(d.reservations, id)
		return
	}
	d.reservations[id] = r
}

// AvailableCash is the cash not held back by open buy orders
func (d *Desk) AvailableCash() decimal.Decimal {
	d.bookMu.Lock()
	defer d.bookMu.Unlock()
	return d.availableCash("")
}

// Withdraw debits cash that no open buy order is holding
func (d *Desk) Withdraw(amount decimal.Decimal, description string) error {
	d.bookMu.Lock()
	defer d.bookMu.Unlock()

	if avail := d.availableCash(""); amount.IsPositive() && amount.GreaterThan(avail) {
		return fmt.Errorf("%w: withdrawing %s, available %s", account.ErrInsufficientFunds,
			amount.StringFixed(2), avail.StringFixed(2))
	}
	return d.account.Withdraw(amount, description)
}
