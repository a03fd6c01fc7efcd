package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/tradedesk/pkg/config"
	"github.com/wonny/tradedesk/pkg/logger"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 10 * time.Second
)

// ErrEmptySymbol is returned when subscribing to a blank symbol
var ErrEmptySymbol = errors.New("symbol is required")

// Config holds feed timings and the live endpoint
type Config struct {
	Live              bool
	WebSocketURL      string
	TickInterval      time.Duration
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	DialTimeout       time.Duration
}

// ConfigFrom maps application config onto feed settings
func ConfigFrom(cfg config.FeedConfig) Config {
	return Config{
		Live:              cfg.Live(),
		WebSocketURL:      cfg.WebSocketURL,
		TickInterval:      cfg.TickInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectDelay:    cfg.ReconnectDelay,
		DialTimeout:       dialTimeout,
	}
}

// Stats counts live transport traffic
type Stats struct {
	MessagesReceived  int64     `json:"messages_received"`
	MessagesProcessed int64     `json:"messages_processed"`
	LastMessageAt     time.Time `json:"last_message_at,omitempty"`
}

// FeedStatus is a point-in-time view of the feed
type FeedStatus struct {
	Status     Status   `json:"status"`
	Simulating bool     `json:"simulating"`
	Symbols    []string `json:"symbols"`
	Stats      Stats    `json:"stats"`
}

// Option configures a Feed
type Option func(*Feed)

// WithSnapshotFetcher seeds newly subscribed symbols from REST while live
func WithSnapshotFetcher(fetcher *SnapshotFetcher) Option {
	return func(f *Feed) { f.snapshots = fetcher }
}

// WithDialer overrides the websocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(f *Feed) { f.dialer = d }
}

// Feed maintains per-symbol snapshots from a live websocket source,
// falling back to a local simulator when the source fails.
//
// mu guards state, snapshots and the subscription set. Events are published
// after mu is released. gen is bumped on every Connect and Disconnect so
// goroutines of an older session drop their work.
type Feed struct {
	cfg       Config
	log       *logger.Logger
	sim       *Simulator
	snapshots *SnapshotFetcher
	dialer    *websocket.Dialer

	mu         sync.Mutex
	status     Status
	simulating bool
	data       map[string]*MarketData
	active     map[string]bool
	conn       *websocket.Conn
	gen        uint64
	simStop    chan struct{}
	reconnect  *time.Timer
	stats      Stats
	closed     bool

	writeMu   sync.Mutex
	listeners listeners

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeed creates a disconnected feed
func NewFeed(cfg Config, sim *Simulator, log *logger.Logger, opts ...Option) *Feed {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = dialTimeout
	}
	if sim == nil {
		sim = NewSimulator(nil, uint64(time.Now().UnixNano()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Feed{
		cfg:    cfg,
		log:    log.WithComponent("feed"),
		sim:    sim,
		dialer: websocket.DefaultDialer,
		status: StatusDisconnected,
		data:   make(map[string]*MarketData),
		active: make(map[string]bool),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe registers a listener for feed events
func (f *Feed) Subscribe(l Listener) {
	f.listeners.add(l)
}

// Connect starts delivering data. In live mode it dials the source and falls
// back to simulation on failure. Connecting an already running feed is a no-op.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("feed is closed")
	}
	switch f.status {
	case StatusConnecting, StatusConnected, StatusReconnecting:
		f.mu.Unlock()
		return nil
	}
	f.gen++
	gen := f.gen
	f.simulating = !f.cfg.Live
	events := f.setStatusLocked(StatusConnecting)
	live := f.cfg.Live
	f.mu.Unlock()
	f.listeners.publish(events)

	if !live {
		f.log.Info("Starting market data simulation")
		f.startSimulation(gen)
		return nil
	}

	f.dial(ctx, gen)
	return nil
}

// Disconnect stops the transport or simulation. Snapshots are kept.
func (f *Feed) Disconnect() {
	f.mu.Lock()
	f.gen++
	conn := f.conn
	f.conn = nil
	stop := f.simStop
	f.simStop = nil
	if f.reconnect != nil {
		f.reconnect.Stop()
		f.reconnect = nil
	}
	var events []Event
	if f.status != StatusDisconnected {
		events = append(events, f.setStatusLocked(StatusDisconnected)...)
		events = append(events, Event{Type: EventDisconnected, Status: StatusDisconnected, Timestamp: time.Now()})
	}
	f.mu.Unlock()

	if conn != nil {
		f.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		f.writeMu.Unlock()
		conn.Close()
	}
	if stop != nil {
		close(stop)
	}

	if len(events) > 0 {
		f.log.Info("Market data feed disconnected")
	}
	f.listeners.publish(events)
}

// Close disconnects and waits for background goroutines to exit
func (f *Feed) Close() {
	f.Disconnect()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cancel()
	f.wg.Wait()
}

// SubscribeSymbol adds symbol to the active set. Re-subscribing is a no-op.
func (f *Feed) SubscribeSymbol(symbol string) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}

	f.mu.Lock()
	if f.active[symbol] {
		f.mu.Unlock()
		return nil
	}
	f.active[symbol] = true
	if _, ok := f.data[symbol]; !ok {
		f.data[symbol] = &MarketData{Symbol: symbol}
	}
	conn := f.conn
	gen := f.gen
	f.mu.Unlock()

	f.log.WithField("symbol", symbol).Info("Subscribed to symbol")

	if conn != nil {
		if err := f.send(conn, subscribeMessage(symbol)); err != nil {
			f.log.WithError(err).WithField("symbol", symbol).Warn("Failed to send subscribe")
		}
		f.requestSnapshot(symbol, gen)
	}
	return nil
}

// SubscribeSymbols subscribes to each symbol, stopping at the first invalid one
func (f *Feed) SubscribeSymbols(symbols []string) error {
	for _, s := range symbols {
		if err := f.SubscribeSymbol(s); err != nil {
			return fmt.Errorf("subscribe %q: %w", s, err)
		}
	}
	return nil
}

// UnsubscribeSymbol removes symbol from the active set. Its last snapshot stays readable.
func (f *Feed) UnsubscribeSymbol(symbol string) {
	symbol = normalizeSymbol(symbol)

	f.mu.Lock()
	if !f.active[symbol] {
		f.mu.Unlock()
		return
	}
	delete(f.active, symbol)
	conn := f.conn
	f.mu.Unlock()

	f.log.WithField("symbol", symbol).Info("Unsubscribed from symbol")

	if conn != nil {
		if err := f.send(conn, unsubscribeMessage(symbol)); err != nil {
			f.log.WithError(err).WithField("symbol", symbol).Warn("Failed to send unsubscribe")
		}
	}
}

// Snapshot returns a copy of the symbol's latest data
func (f *Feed) Snapshot(symbol string) (MarketData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	md, ok := f.data[normalizeSymbol(symbol)]
	if !ok {
		return MarketData{}, false
	}
	return *md, true
}

// Snapshots returns copies of every known symbol, sorted by symbol
func (f *Feed) Snapshots() []MarketData {
	f.mu.Lock()
	out := make([]MarketData, 0, len(f.data))
	for _, md := range f.data {
		out = append(out, *md)
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns the active subscriptions, sorted
func (f *Feed) Symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeSymbolsLocked()
}

// IsSubscribed reports whether symbol is in the active set
func (f *Feed) IsSubscribed(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[normalizeSymbol(symbol)]
}

// LastPrice returns the last traded price of symbol, if any
func (f *Feed) LastPrice(symbol string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	md, ok := f.data[normalizeSymbol(symbol)]
	if !ok || md.Last <= 0 {
		return 0, false
	}
	return md.Last, true
}

// Status returns the connection state
func (f *Feed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// IsConnected reports whether data is flowing, live or simulated
func (f *Feed) IsConnected() bool {
	return f.Status() == StatusConnected
}

// Simulating reports whether the simulator is the data source
func (f *Feed) Simulating() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.simulating
}

// Stats returns live transport counters
func (f *Feed) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// State returns status, mode, subscriptions and counters together
func (f *Feed) State() FeedStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FeedStatus{
		Status:     f.status,
		Simulating: f.simulating,
		Symbols:    f.activeSymbolsLocked(),
		Stats:      f.stats,
	}
}

// dial opens the live connection for session gen
func (f *Feed) dial(ctx context.Context, gen uint64) {
	f.log.WithField("url", f.cfg.WebSocketURL).Debug("Connecting to market data source")

	dctx, cancel := context.WithTimeout(ctx, f.cfg.DialTimeout)
	conn, _, err := f.dialer.DialContext(dctx, f.cfg.WebSocketURL, nil)
	cancel()
	if err != nil {
		f.transportFailed(gen, nil, fmt.Errorf("dial failed: %w", err))
		return
	}

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.conn = conn
	events := f.setStatusLocked(StatusConnected)
	events = append(events, Event{Type: EventConnected, Status: StatusConnected, Timestamp: time.Now()})
	symbols := f.activeSymbolsLocked()
	f.wg.Add(2)
	f.mu.Unlock()

	f.log.Info("Connected to market data source")
	f.listeners.publish(events)

	done := make(chan struct{})
	go f.readLoop(conn, gen, done)
	go f.heartbeatLoop(conn, done)

	for _, symbol := range symbols {
		if err := f.send(conn, subscribeMessage(symbol)); err != nil {
			f.log.WithError(err).WithField("symbol", symbol).Warn("Failed to send subscribe")
			continue
		}
		f.requestSnapshot(symbol, gen)
	}
}

// readLoop reads records until the connection fails
func (f *Feed) readLoop(conn *websocket.Conn, gen uint64, done chan struct{}) {
	defer f.wg.Done()
	defer close(done)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			f.connectionLost(conn, gen, err)
			return
		}

		f.mu.Lock()
		f.stats.MessagesReceived++
		f.stats.LastMessageAt = time.Now()
		f.mu.Unlock()

		if messageType != websocket.TextMessage {
			continue
		}
		f.handleMessage(message)
	}
}

// heartbeatLoop keeps the live session alive until done closes
func (f *Feed) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := f.send(conn, heartbeatMessage()); err != nil {
				f.log.WithError(err).Debug("Heartbeat failed")
			}
		}
	}
}

func (f *Feed) handleMessage(message []byte) {
	rec, err := ParseRecord(message)
	if err != nil {
		if errors.Is(err, ErrUnknownRecord) {
			f.log.WithError(err).Debug("Ignoring record")
		} else {
			f.log.WithError(err).Warn("Dropping malformed record")
		}
		return
	}

	f.mu.Lock()
	md, ok := f.data[rec.Symbol]
	if !ok || !f.active[rec.Symbol] {
		f.mu.Unlock()
		return
	}

	var eventType EventType
	switch rec.Type {
	case RecordTrade:
		md.ApplyTrade(rec.Price, rec.Volume)
		eventType = EventTrade
	case RecordQuote:
		md.ApplyQuote(rec.Bid, rec.BidSize, rec.Ask, rec.AskSize)
		eventType = EventQuote
	}
	md.Source = SourceLive
	f.stats.MessagesProcessed++
	snap := *md
	f.mu.Unlock()

	now := time.Now()
	f.listeners.publish([]Event{
		{Type: eventType, Symbol: snap.Symbol, Data: snap, Timestamp: now},
		{Type: EventTick, Symbol: snap.Symbol, Data: snap, Timestamp: now},
	})
}

// connectionLost handles a read failure. A close frame from the source
// schedules a reconnect; any other failure switches to simulation.
func (f *Feed) connectionLost(conn *websocket.Conn, gen uint64, err error) {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		f.transportFailed(gen, conn, err)
		return
	}

	f.mu.Lock()
	if gen != f.gen || f.conn != conn {
		f.mu.Unlock()
		return
	}
	f.conn = nil
	conn.Close()

	events := f.setStatusLocked(StatusDisconnected)
	events = append(events, Event{Type: EventDisconnected, Status: StatusDisconnected, Timestamp: time.Now()})
	events = append(events, f.setStatusLocked(StatusReconnecting)...)
	f.reconnect = time.AfterFunc(f.cfg.ReconnectDelay, func() { f.reconnectNow(gen) })
	f.mu.Unlock()

	f.log.WithField("code", closeErr.Code).
		WithField("delay", f.cfg.ReconnectDelay).
		Warn("Market data source closed the connection, reconnecting")
	f.listeners.publish(events)
}

func (f *Feed) reconnectNow(gen uint64) {
	f.mu.Lock()
	if gen != f.gen || f.status != StatusReconnecting {
		f.mu.Unlock()
		return
	}
	f.reconnect = nil
	events := f.setStatusLocked(StatusConnecting)
	f.mu.Unlock()

	f.listeners.publish(events)
	f.dial(f.ctx, gen)
}

// transportFailed reports err and moves the session to simulation.
// conn is the failed connection, nil when dialing failed.
func (f *Feed) transportFailed(gen uint64, conn *websocket.Conn, err error) {
	f.mu.Lock()
	if gen != f.gen || f.conn != conn {
		f.mu.Unlock()
		return
	}
	if conn != nil {
		f.conn = nil
		conn.Close()
	}
	events := []Event{{Type: EventError, Status: StatusError, Error: err.Error(), Timestamp: time.Now()}}
	events = append(events, f.setStatusLocked(StatusError)...)
	f.mu.Unlock()

	f.log.WithError(err).Error("Market data source failed, falling back to simulation")
	f.listeners.publish(events)
	f.startSimulation(gen)
}

// startSimulation starts the tick loop for session gen and marks the feed connected
func (f *Feed) startSimulation(gen uint64) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.simulating = true
	if f.simStop == nil {
		stop := make(chan struct{})
		f.simStop = stop
		f.wg.Add(1)
		go f.simulationLoop(stop)
	}
	events := f.setStatusLocked(StatusConnected)
	events = append(events, Event{Type: EventConnected, Status: StatusConnected, Timestamp: time.Now()})
	f.mu.Unlock()

	f.listeners.publish(events)
}

func (f *Feed) simulationLoop(stop chan struct{}) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.simulateTick(stop)
		}
	}
}

// simulateTick advances every active symbol by one simulated step.
// Ticks of a stopped simulation are dropped.
func (f *Feed) simulateTick(stop chan struct{}) {
	f.mu.Lock()
	if f.simStop != stop {
		f.mu.Unlock()
		return
	}
	symbols := f.activeSymbolsLocked()
	snaps := make([]MarketData, 0, len(symbols))
	for _, symbol := range symbols {
		md := f.data[symbol]
		f.sim.Step(md)
		snaps = append(snaps, *md)
	}
	f.mu.Unlock()

	now := time.Now()
	events := make([]Event, 0, 3*len(snaps))
	for _, snap := range snaps {
		events = append(events,
			Event{Type: EventTrade, Symbol: snap.Symbol, Data: snap, Timestamp: now},
			Event{Type: EventQuote, Symbol: snap.Symbol, Data: snap, Timestamp: now},
			Event{Type: EventTick, Symbol: snap.Symbol, Data: snap, Timestamp: now},
		)
	}
	f.listeners.publish(events)
}

// requestSnapshot seeds symbol from REST in the background
func (f *Feed) requestSnapshot(symbol string, gen uint64) {
	if f.snapshots == nil {
		return
	}

	f.mu.Lock()
	if f.closed || gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()

		snap, err := f.snapshots.Fetch(f.ctx, symbol)
		if err != nil {
			f.log.WithError(err).WithField("symbol", symbol).Warn("Snapshot request failed")
			return
		}

		f.mu.Lock()
		md, ok := f.data[symbol]
		if !ok {
			f.mu.Unlock()
			return
		}
		snap.applyTo(md)
		data := *md
		f.mu.Unlock()

		f.listeners.publish([]Event{{Type: EventTick, Symbol: symbol, Data: data, Timestamp: time.Now()}})
	}()
}

func (f *Feed) send(conn *websocket.Conn, msg controlMessage) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// setStatusLocked returns the status change event, if any
func (f *Feed) setStatusLocked(s Status) []Event {
	if f.status == s {
		return nil
	}
	f.status = s
	return []Event{{Type: EventStatusChanged, Status: s, Timestamp: time.Now()}}
}

func (f *Feed) activeSymbolsLocked() []string {
	out := make([]string, 0, len(f.active))
	for s := range f.active {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
