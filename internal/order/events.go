package order

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies an order lifecycle event
type EventType string

const (
	EventSubmitted       EventType = "order.submitted"
	EventAccepted        EventType = "order.accepted"
	EventRejected        EventType = "order.rejected"
	EventFilled          EventType = "order.filled"
	EventPartiallyFilled EventType = "order.partially_filled"
	EventCancelled       EventType = "order.cancelled"
	EventModified        EventType = "order.modified"
	EventExpired         EventType = "order.expired"
	EventStatusChanged   EventType = "order.status_changed"
)

// Event is published to listeners after the registry lock is released.
// Order is a snapshot taken when the event was produced.
type Event struct {
	Type      EventType       `json:"type"`
	OrderID   string          `json:"order_id"`
	Order     Order           `json:"order"`
	Status    Status          `json:"status,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	FillQty   decimal.Decimal `json:"fill_qty,omitempty"`
	FillPrice decimal.Decimal `json:"fill_price,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// IsFill reports whether the event carries an execution
func (e Event) IsFill() bool {
	return e.Type == EventFilled || e.Type == EventPartiallyFilled
}

// Listener receives order events
type Listener interface {
	OnOrderEvent(Event)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(Event)

// OnOrderEvent calls f(e)
func (f ListenerFunc) OnOrderEvent(e Event) { f(e) }

type listeners struct {
	mu   sync.RWMutex
	list []Listener
}

func (l *listeners) add(listener Listener) {
	l.mu.Lock()
	l.list = append(l.list, listener)
	l.mu.Unlock()
}

func (l *listeners) publish(events ...Event) {
	l.mu.RLock()
	list := l.list
	l.mu.RUnlock()

	for _, e := range events {
		for _, listener := range list {
			listener.OnOrderEvent(e)
		}
	}
}
