package marketdata

import (
	"sync"
	"time"
)

// Status is the feed connection state
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusReconnecting Status = "RECONNECTING"
	StatusError        Status = "ERROR"
)

// EventType identifies a feed event
type EventType string

const (
	EventConnected     EventType = "feed.connected"
	EventDisconnected  EventType = "feed.disconnected"
	EventError         EventType = "feed.error"
	EventStatusChanged EventType = "feed.status_changed"
	EventTick          EventType = "feed.tick"
	EventTrade         EventType = "feed.trade"
	EventQuote         EventType = "feed.quote"
)

// Event is published after the feed's lock is released.
// Data is a copy of the symbol's snapshot for tick, trade and quote events.
type Event struct {
	Type      EventType  `json:"type"`
	Symbol    string     `json:"symbol,omitempty"`
	Data      MarketData `json:"data,omitempty"`
	Status    Status     `json:"status,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Listener receives feed events
type Listener interface {
	OnFeedEvent(Event)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(Event)

// OnFeedEvent calls f(e)
func (f ListenerFunc) OnFeedEvent(e Event) { f(e) }

type listeners struct {
	mu   sync.RWMutex
	list []Listener
}

func (l *listeners) add(listener Listener) {
	l.mu.Lock()
	l.list = append(l.list, listener)
	l.mu.Unlock()
}

func (l *listeners) publish(events []Event) {
	if len(events) == 0 {
		return
	}

	l.mu.RLock()
	list := l.list
	l.mu.RUnlock()

	for _, e := range events {
		for _, listener := range list {
			listener.OnFeedEvent(e)
		}
	}
}
