package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/tradedesk/internal/marketdata"
	"github.com/wonny/tradedesk/internal/order"
	"github.com/wonny/tradedesk/pkg/logger"
)

// Stream channels
const (
	ChannelOrders = "orders"
	ChannelMarket = "market"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
	clientBuffer   = 256
)

// Envelope is one frame pushed to stream clients
type Envelope struct {
	Channel string      `json:"channel"`
	Event   interface{} `json:"event"`
}

type streamClient struct {
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]bool
}

func (c *streamClient) wants(channel string) bool {
	return len(c.channels) == 0 || c.channels[channel]
}

// enqueue drops the oldest frame when the client's queue is full
func (c *streamClient) enqueue(frame []byte) (dropped bool) {
	for {
		select {
		case c.send <- frame:
			return dropped
		default:
			select {
			case <-c.send:
				dropped = true
			default:
			}
		}
	}
}

// StreamHub fans order and feed events out to websocket clients.
// It implements order.Listener and marketdata.Listener.
type StreamHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool

	dropped atomic.Int64
	logger  *logger.Logger
}

// NewStreamHub creates an empty hub
func NewStreamHub(log *logger.Logger) *StreamHub {
	return &StreamHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*streamClient]struct{}),
		logger:  log.WithComponent("stream"),
	}
}

// OnOrderEvent broadcasts an order lifecycle event
func (h *StreamHub) OnOrderEvent(e order.Event) {
	h.broadcast(ChannelOrders, e)
}

// OnFeedEvent broadcasts a feed event
func (h *StreamHub) OnFeedEvent(e marketdata.Event) {
	h.broadcast(ChannelMarket, e)
}

// ClientCount returns the number of connected clients
func (h *StreamHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for slow clients
func (h *StreamHub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *StreamHub) broadcast(channel string, event interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	frame, err := json.Marshal(Envelope{Channel: channel, Event: event})
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode stream event")
		return
	}

	for c := range h.clients {
		if !c.wants(channel) {
			continue
		}
		if c.enqueue(frame) {
			h.dropped.Add(1)
		}
	}
}

// ServeWS upgrades the request and streams events until the client leaves
// GET /api/stream?channels=orders,market
func (h *StreamHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		respondError(w, http.StatusServiceUnavailable, "stream is closed")
		return
	}

	channels := make(map[string]bool)
	if raw := r.URL.Query().Get("channels"); raw != "" {
		for _, ch := range strings.Split(raw, ",") {
			switch ch = strings.TrimSpace(ch); ch {
			case ChannelOrders, ChannelMarket:
				channels[ch] = true
			default:
				respondError(w, http.StatusBadRequest, "unknown channel "+ch)
				return
			}
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &streamClient{
		conn:     conn,
		send:     make(chan []byte, clientBuffer),
		channels: channels,
	}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	h.logger.WithField("remote", r.RemoteAddr).Info("Stream client connected")

	go h.writePump(c)
	h.readPump(c)
}

func (h *StreamHub) register(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *StreamHub) unregister(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards client frames and keeps the read deadline fresh
func (h *StreamHub) readPump(c *streamClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.logger.Info("Stream client disconnected")
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
