package order

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wonny/tradedesk/internal/scheduler"
	"github.com/wonny/tradedesk/pkg/logger"
)

// DefaultReferencePrice fills market orders when no market price is known
var DefaultReferencePrice = decimal.NewFromInt(100)

// Config holds the simulated exchange timings
type Config struct {
	AcceptDelay time.Duration
	FillDelay   time.Duration
	CancelDelay time.Duration
}

// DefaultConfig returns the standard exchange timings
func DefaultConfig() Config {
	return Config{
		AcceptDelay: 50 * time.Millisecond,
		FillDelay:   200 * time.Millisecond,
		CancelDelay: 100 * time.Millisecond,
	}
}

// PriceSource supplies the last traded price for a symbol
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

// AcceptGate runs when the exchange accepts an order. A non-nil error rejects it.
type AcceptGate func(o Order) error

// ModifyGate sees an order as it would look after a modification. A non-nil
// error refuses the change. It runs with the registry locked and must not call
// back into the Manager.
type ModifyGate func(proposed Order) error

// SubmitRequest is the client's order entry. ID is optional; when set it must
// not already be registered.
type SubmitRequest struct {
	ID          string          `json:"id,omitempty"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Type        Type            `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TimeInForce TimeInForce     `json:"time_in_force"`
}

// Stats aggregates over the registry
type Stats struct {
	Total       int             `json:"total"`
	Active      int             `json:"active"`
	Filled      int             `json:"filled"`
	Volume      decimal.Decimal `json:"volume"`
	ValueTraded decimal.Decimal `json:"value_traded"`
}

// Manager owns the order registry and drives the simulated exchange
type Manager struct {
	mu     sync.RWMutex
	orders map[string]*Order

	cfg       Config
	prices    PriceSource
	gate      AcceptGate
	modGate   ModifyGate
	closed    bool
	timers    *scheduler.Timers
	listeners listeners
	logger    *logger.Logger
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithPriceSource sets where market orders look up their fill price
func WithPriceSource(ps PriceSource) ManagerOption {
	return func(m *Manager) { m.prices = ps }
}

// WithAcceptGate installs a check that runs on exchange acceptance
func WithAcceptGate(gate AcceptGate) ManagerOption {
	return func(m *Manager) { m.gate = gate }
}

// WithModifyGate installs a check that runs before a modification is applied
func WithModifyGate(gate ModifyGate) ManagerOption {
	return func(m *Manager) { m.modGate = gate }
}

// NewManager creates an empty order manager
func NewManager(cfg Config, log *logger.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		orders: make(map[string]*Order),
		cfg:    cfg,
		timers: scheduler.NewTimers(),
		logger: log.WithComponent("orders"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers a listener for every subsequent event
func (m *Manager) Subscribe(l Listener) {
	m.listeners.add(l)
}

// Close cancels every scheduled exchange callback. Later submissions fail with ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.timers.Stop()
}

func validate(req SubmitRequest) error {
	if req.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "symbol is required"}
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return &ValidationError{Field: "side", Reason: "side must be BUY or SELL"}
	}
	if _, err := ParseType(string(req.Type)); err != nil {
		return &ValidationError{Field: "type", Reason: err.Error()}
	}
	if !req.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Reason: "quantity must be positive"}
	}
	if req.Type.RequiresPrice() && !req.Price.IsPositive() {
		return &ValidationError{Field: "price", Reason: "price must be positive for " + string(req.Type) + " orders"}
	}
	if req.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "price must not be negative"}
	}
	return nil
}

// Submit validates and registers an order, then starts its simulated execution.
// Invalid input returns a *ValidationError and publishes a rejection without registering the order.
func (m *Manager) Submit(req SubmitRequest) (string, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.TimeInForce == "" {
		req.TimeInForce = TIFDay
	}

	if err := validate(req); err != nil {
		id := req.ID
		if id == "" {
			id = uuid.NewString()
		}
		m.logger.WithFields(map[string]interface{}{
			"order_id": id,
			"symbol":   req.Symbol,
			"reason":   err.Error(),
		}).Warn("Order rejected")

		o := New(req.Symbol, req.Side, req.Type, req.Quantity, req.Price)
		o.ID = id
		o.TimeInForce = req.TimeInForce
		o.SetStatus(StatusRejected, err.Error())
		m.listeners.publish(Event{
			Type:      EventRejected,
			OrderID:   id,
			Order:     o.Clone(),
			Status:    StatusRejected,
			Reason:    err.Error(),
			Timestamp: time.Now(),
		})
		return "", err
	}

	o := New(req.Symbol, req.Side, req.Type, req.Quantity, req.Price)
	if req.ID != "" {
		o.ID = req.ID
	}
	o.TimeInForce = req.TimeInForce
	o.StatusMessage = "Order submitted"

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	if _, taken := m.orders[o.ID]; taken {
		m.mu.Unlock()
		return "", &ValidationError{Field: "id", Reason: "order id already in use"}
	}
	m.orders[o.ID] = o
	snap := o.Clone()
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"order_id": o.ID,
		"symbol":   o.Symbol,
		"side":     o.Side,
		"type":     o.Type,
		"qty":      o.Quantity.String(),
		"price":    o.Price.String(),
	}).Info("Order submitted")

	m.listeners.publish(Event{Type: EventSubmitted, OrderID: o.ID, Order: snap, Status: snap.Status, Timestamp: snap.CreatedAt})

	id := o.ID
	if !m.timers.After(m.cfg.AcceptDelay, func() { m.accept(id) }) {
		// Close won the race with registration; the exchange will never see it.
		_ = m.Reject(id, ErrManagerClosed.Error())
		return id, ErrManagerClosed
	}
	return id, nil
}

// accept moves a PENDING_NEW order to NEW and schedules its fill
func (m *Manager) accept(id string) {
	m.mu.RLock()
	o, ok := m.orders[id]
	var snap Order
	if ok {
		snap = o.Clone()
	}
	m.mu.RUnlock()

	if !ok || snap.Status != StatusPendingNew {
		return
	}

	if m.gate != nil {
		if err := m.gate(snap); err != nil {
			m.Reject(id, err.Error())
			return
		}
	}

	m.mu.Lock()
	if o.Status != StatusPendingNew {
		m.mu.Unlock()
		return
	}
	o.SetStatus(StatusNew, "Order accepted")
	snap = o.Clone()
	m.mu.Unlock()

	m.logger.WithField("order_id", id).Debug("Order accepted")
	m.listeners.publish(
		Event{Type: EventStatusChanged, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt},
		Event{Type: EventAccepted, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt},
	)

	m.timers.After(m.cfg.FillDelay, func() { m.fill(id) })
}

// fillPrice returns the limit price, or the market reference for unpriced orders
func (m *Manager) fillPrice(o *Order) decimal.Decimal {
	if o.Type != TypeMarket && o.Price.IsPositive() {
		return o.Price
	}
	if m.prices != nil {
		if last, ok := m.prices.LastPrice(o.Symbol); ok && last > 0 {
			return decimal.NewFromFloat(last).Round(4)
		}
	}
	return DefaultReferencePrice
}

// fill executes the remaining quantity. Orders that left NEW/PARTIALLY_FILLED are skipped.
func (m *Manager) fill(id string) {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok || (o.Status != StatusNew && o.Status != StatusPartiallyFilled) {
		m.mu.Unlock()
		return
	}

	qty := o.Remaining()
	price := m.fillPrice(o)
	o.AddFill(qty, price)
	snap := o.Clone()
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"order_id": id,
		"symbol":   snap.Symbol,
		"side":     snap.Side,
		"qty":      qty.String(),
		"price":    price.String(),
	}).Info("Order filled")

	evType := EventFilled
	if snap.Status == StatusPartiallyFilled {
		evType = EventPartiallyFilled
	}
	m.listeners.publish(
		Event{Type: EventStatusChanged, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt},
		Event{Type: evType, OrderID: id, Order: snap, Status: snap.Status, FillQty: qty, FillPrice: price, Timestamp: snap.UpdatedAt},
	)
}

// Cancel requests cancellation. The order is PENDING_CANCEL immediately and
// CANCELLED after the cancel delay.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		m.logger.WithField("order_id", id).Warn("Cancel failed: order not found")
		return ErrOrderNotFound
	}
	if o.Status == StatusPendingCancel {
		m.mu.Unlock()
		return ErrCancelPending
	}
	if !o.IsActive() {
		status := o.Status
		m.mu.Unlock()
		m.logger.WithFields(map[string]interface{}{"order_id": id, "status": status}).Warn("Cancel failed: order not active")
		return ErrOrderNotActive
	}
	o.SetStatus(StatusPendingCancel, "Cancel requested")
	snap := o.Clone()
	m.mu.Unlock()

	m.logger.WithField("order_id", id).Info("Cancel requested")
	m.listeners.publish(Event{Type: EventStatusChanged, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt})

	m.timers.After(m.cfg.CancelDelay, func() { m.completeCancel(id) })
	return nil
}

func (m *Manager) completeCancel(id string) {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok || o.Status != StatusPendingCancel {
		m.mu.Unlock()
		return
	}
	o.SetStatus(StatusCancelled, "Order cancelled")
	snap := o.Clone()
	m.mu.Unlock()

	m.logger.WithField("order_id", id).Info("Order cancelled")
	m.listeners.publish(
		Event{Type: EventStatusChanged, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt},
		Event{Type: EventCancelled, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt},
	)
}

// Modify replaces the price when newPrice is positive and the quantity when
// newQuantity is positive. A new quantity must exceed what is already filled.
func (m *Manager) Modify(id string, newQuantity, newPrice decimal.Decimal) error {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return ErrOrderNotFound
	}
	if !o.IsActive() || o.Status == StatusPendingCancel {
		m.mu.Unlock()
		return ErrOrderNotActive
	}
	if newQuantity.IsPositive() && newQuantity.LessThanOrEqual(o.FilledQuantity) {
		m.mu.Unlock()
		return ErrInvalidModify
	}
	if newPrice.IsNegative() || newQuantity.IsNegative() {
		m.mu.Unlock()
		return ErrInvalidModify
	}

	proposed := o.Clone()
	if newPrice.IsPositive() {
		proposed.Price = newPrice
	}
	if newQuantity.IsPositive() {
		proposed.Quantity = newQuantity
	}
	if m.modGate != nil {
		if err := m.modGate(proposed); err != nil {
			m.mu.Unlock()
			m.logger.WithError(err).WithField("order_id", id).Warn("Modification refused")
			return err
		}
	}

	o.Price = proposed.Price
	o.Quantity = proposed.Quantity
	o.UpdatedAt = time.Now()
	snap := o.Clone()
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"order_id": id,
		"qty":      snap.Quantity.String(),
		"price":    snap.Price.String(),
	}).Info("Order modified")
	m.listeners.publish(Event{Type: EventModified, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt})
	return nil
}

// Reject moves a PENDING_NEW or NEW order to REJECTED
func (m *Manager) Reject(id, reason string) error {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return ErrOrderNotFound
	}
	if o.Status != StatusPendingNew && o.Status != StatusNew {
		m.mu.Unlock()
		return ErrOrderNotActive
	}
	o.SetStatus(StatusRejected, reason)
	snap := o.Clone()
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{"order_id": id, "reason": reason}).Warn("Order rejected")
	m.listeners.publish(
		Event{Type: EventStatusChanged, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt},
		Event{Type: EventRejected, OrderID: id, Order: snap, Status: snap.Status, Reason: reason, Timestamp: snap.UpdatedAt},
	)
	return nil
}

// Expire moves an active order to EXPIRED
func (m *Manager) Expire(id string) error {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return ErrOrderNotFound
	}
	if !o.IsActive() {
		m.mu.Unlock()
		return ErrOrderNotActive
	}
	o.SetStatus(StatusExpired, "Order expired")
	snap := o.Clone()
	m.mu.Unlock()

	m.logger.WithField("order_id", id).Info("Order expired")
	m.listeners.publish(
		Event{Type: EventStatusChanged, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt},
		Event{Type: EventExpired, OrderID: id, Order: snap, Status: snap.Status, Timestamp: snap.UpdatedAt},
	)
	return nil
}

// ExpireDayOrders expires every active DAY order and returns how many changed
func (m *Manager) ExpireDayOrders() int {
	var ids []string
	for _, o := range m.Active() {
		if o.TimeInForce == TIFDay {
			ids = append(ids, o.ID)
		}
	}

	expired := 0
	for _, id := range ids {
		if m.Expire(id) == nil {
			expired++
		}
	}
	return expired
}

// Get returns a snapshot of one order
func (m *Manager) Get(id string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return o.Clone(), true
}

// All returns snapshots of every order, oldest first
func (m *Manager) All() []Order {
	return m.filter(func(*Order) bool { return true })
}

// Active returns snapshots of every active order
func (m *Manager) Active() []Order {
	return m.filter((*Order).IsActive)
}

// BySymbol returns snapshots of the orders for symbol
func (m *Manager) BySymbol(symbol string) []Order {
	symbol = strings.ToUpper(symbol)
	return m.filter(func(o *Order) bool { return o.Symbol == symbol })
}

// ByStatus returns snapshots of the orders in status
func (m *Manager) ByStatus(status Status) []Order {
	return m.filter(func(o *Order) bool { return o.Status == status })
}

func (m *Manager) filter(keep func(*Order) bool) []Order {
	m.mu.RLock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ActiveCount returns the number of active orders
func (m *Manager) ActiveCount() int {
	return m.Stats().Active
}

// Stats aggregates counts, filled volume and traded value
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Total: len(m.orders)}
	for _, o := range m.orders {
		if o.IsActive() {
			st.Active++
		}
		if o.Status == StatusFilled {
			st.Filled++
		}
		st.Volume = st.Volume.Add(o.FilledQuantity)
		st.ValueTraded = st.ValueTraded.Add(o.Notional())
	}
	return st
}
