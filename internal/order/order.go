package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side represents buy or sell
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Type represents the order type
type Type string

const (
	TypeMarket    Type = "MARKET"
	TypeLimit     Type = "LIMIT"
	TypeStop      Type = "STOP"
	TypeStopLimit Type = "STOP_LIMIT"
)

// Status represents the order lifecycle status
type Status string

const (
	StatusPendingNew      Status = "PENDING_NEW"
	StatusNew             Status = "NEW"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusPendingCancel   Status = "PENDING_CANCEL"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// TimeInForce represents how long an order stays working
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// ParseSide converts a wire string into a Side
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown order side %q", s)
}

// ParseType converts a wire string into a Type
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeMarket, TypeLimit, TypeStop, TypeStopLimit:
		return t, nil
	}
	return "", fmt.Errorf("unknown order type %q", s)
}

// ParseStatus converts a wire string into a Status
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPendingNew, StatusNew, StatusPartiallyFilled, StatusFilled,
		StatusPendingCancel, StatusCancelled, StatusRejected, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// ParseTimeInForce converts a wire string into a TimeInForce. Empty means DAY.
func ParseTimeInForce(s string) (TimeInForce, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return TIFDay, nil
	}
	switch tif := TimeInForce(s); tif {
	case TIFDay, TIFGTC, TIFIOC, TIFFOK:
		return tif, nil
	}
	return "", fmt.Errorf("unknown time in force %q", s)
}

// IsActive reports whether an order in this status can still change
func (s Status) IsActive() bool {
	switch s {
	case StatusPendingNew, StatusNew, StatusPartiallyFilled, StatusPendingCancel:
		return true
	}
	return false
}

// IsFinal reports whether the status is terminal
func (s Status) IsFinal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// RequiresPrice reports whether the order type needs a positive limit price
func (t Type) RequiresPrice() bool {
	return t == TypeLimit || t == TypeStopLimit
}

// Order is a single client order and its execution state
type Order struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Type           Type            `json:"type"`
	Status         Status          `json:"status"`
	TimeInForce    TimeInForce     `json:"time_in_force"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"` // 0 for market order
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	AvgFillPrice   decimal.Decimal `json:"avg_fill_price"`
	StatusMessage  string          `json:"status_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// New creates a PENDING_NEW day order with a fresh id
func New(symbol string, side Side, typ Type, quantity, price decimal.Decimal) *Order {
	now := time.Now()
	return &Order{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Side:        side,
		Type:        typ,
		Status:      StatusPendingNew,
		TimeInForce: TIFDay,
		Quantity:    quantity,
		Price:       price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SetStatus moves the order to status, keeping the previous message when msg is empty
func (o *Order) SetStatus(status Status, msg string) {
	o.Status = status
	if msg != "" {
		o.StatusMessage = msg
	}
	o.UpdatedAt = time.Now()
}

// AddFill applies an execution. Non-positive quantities are ignored and the
// filled quantity never exceeds the order quantity.
func (o *Order) AddFill(qty, price decimal.Decimal) {
	if !qty.IsPositive() {
		return
	}
	if remaining := o.Remaining(); qty.GreaterThan(remaining) {
		qty = remaining
	}
	if !qty.IsPositive() {
		return
	}

	total := o.FilledQuantity.Add(qty)
	o.AvgFillPrice = o.AvgFillPrice.Mul(o.FilledQuantity).Add(price.Mul(qty)).Div(total)
	o.FilledQuantity = total

	if o.FilledQuantity.GreaterThanOrEqual(o.Quantity) {
		o.SetStatus(StatusFilled, "")
	} else {
		o.SetStatus(StatusPartiallyFilled, "")
	}
}

// Remaining returns the unfilled quantity
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsActive reports whether the order can still change
func (o *Order) IsActive() bool {
	return o.Status.IsActive()
}

// IsFinal reports whether the order reached a terminal status
func (o *Order) IsFinal() bool {
	return o.Status.IsFinal()
}

// Notional returns filled quantity times average fill price
func (o *Order) Notional() decimal.Decimal {
	return o.FilledQuantity.Mul(o.AvgFillPrice)
}

// Clone returns a detached copy
func (o *Order) Clone() Order {
	return *o
}
