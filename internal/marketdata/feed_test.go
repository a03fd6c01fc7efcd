package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradedesk/pkg/logger"
)

type feedRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *feedRecorder) OnFeedEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *feedRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *feedRecorder) statuses() []Status {
	var out []Status
	for _, e := range r.ofType(EventStatusChanged) {
		out = append(out, e.Status)
	}
	return out
}

// wsServer is a scripted market data source
type wsServer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan controlMessage
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()

	s := &wsServer{
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan controlMessage, 256),
	}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		go func() {
			for {
				var msg controlMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				select {
				case s.received <- msg:
				default:
				}
			}
		}()
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection from feed")
		return nil
	}
}

// expect waits for the next control message of the given type
func (s *wsServer) expect(t *testing.T, typ string) controlMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-s.received:
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("no %q message received", typ)
			return controlMessage{}
		}
	}
}

func simConfig() Config {
	return Config{
		TickInterval:      5 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		ReconnectDelay:    20 * time.Millisecond,
		DialTimeout:       time.Second,
	}
}

func liveConfig(url string) Config {
	cfg := simConfig()
	cfg.Live = true
	cfg.WebSocketURL = url
	return cfg
}

func newTestFeed(t *testing.T, cfg Config, opts ...Option) (*Feed, *feedRecorder) {
	t.Helper()
	f := NewFeed(cfg, NewSimulator(testUniverse(t), 99), logger.Nop(), opts...)
	rec := &feedRecorder{}
	f.Subscribe(rec)
	t.Cleanup(f.Close)
	return f, rec
}

func writeText(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func TestFeed_Simulation(t *testing.T) {
	f, rec := newTestFeed(t, simConfig())
	require.NoError(t, f.SubscribeSymbols([]string{"aapl", "MSFT"}))

	require.NoError(t, f.Connect(context.Background()))
	assert.Equal(t, StatusConnected, f.Status())
	assert.True(t, f.IsConnected())
	assert.True(t, f.Simulating())
	assert.Equal(t, []Status{StatusConnecting, StatusConnected}, rec.statuses())

	require.Eventually(t, func() bool {
		md, ok := f.Snapshot("MSFT")
		return ok && md.TotalVolume > 0
	}, 2*time.Second, 5*time.Millisecond)

	md, ok := f.Snapshot("AAPL")
	require.True(t, ok)
	assert.Equal(t, 182.50, md.Open)
	assert.True(t, md.Low <= md.Last && md.Last <= md.High)
	assert.Equal(t, SourceSimulated, md.Source)

	price, ok := f.LastPrice("aapl")
	assert.True(t, ok)
	assert.Greater(t, price, 0.0)
	assert.NotEmpty(t, rec.ofType(EventTick))
	assert.NotEmpty(t, rec.ofType(EventTrade))
	assert.NotEmpty(t, rec.ofType(EventQuote))
}

func TestFeed_ConnectTwiceIsNoop(t *testing.T) {
	f, rec := newTestFeed(t, simConfig())

	require.NoError(t, f.Connect(context.Background()))
	require.NoError(t, f.Connect(context.Background()))

	assert.Len(t, rec.ofType(EventConnected), 1)
}

func TestFeed_Subscriptions(t *testing.T) {
	f, _ := newTestFeed(t, simConfig())

	require.NoError(t, f.SubscribeSymbol("AAPL"))
	require.NoError(t, f.SubscribeSymbol(" aapl "))
	require.NoError(t, f.SubscribeSymbol("TSLA"))
	assert.ErrorIs(t, f.SubscribeSymbol("  "), ErrEmptySymbol)
	assert.Equal(t, []string{"AAPL", "TSLA"}, f.Symbols())

	require.NoError(t, f.Connect(context.Background()))
	require.Eventually(t, func() bool {
		_, ok := f.LastPrice("TSLA")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	f.UnsubscribeSymbol("tsla")
	assert.Equal(t, []string{"AAPL"}, f.Symbols())
	assert.False(t, f.IsSubscribed("TSLA"))

	// data outlives the subscription
	md, ok := f.Snapshot("TSLA")
	require.True(t, ok)
	volume := md.TotalVolume

	time.Sleep(30 * time.Millisecond)
	md, _ = f.Snapshot("TSLA")
	assert.Equal(t, volume, md.TotalVolume)

	_, ok = f.Snapshot("NFLX")
	assert.False(t, ok)
	_, ok = f.LastPrice("NFLX")
	assert.False(t, ok)
}

func TestFeed_DisconnectStopsTicks(t *testing.T) {
	f, rec := newTestFeed(t, simConfig())
	require.NoError(t, f.SubscribeSymbol("AAPL"))
	require.NoError(t, f.Connect(context.Background()))

	require.Eventually(t, func() bool {
		_, ok := f.LastPrice("AAPL")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	f.Disconnect()
	assert.Equal(t, StatusDisconnected, f.Status())
	assert.Len(t, rec.ofType(EventDisconnected), 1)

	md, ok := f.Snapshot("AAPL")
	require.True(t, ok)
	time.Sleep(30 * time.Millisecond)
	after, _ := f.Snapshot("AAPL")
	assert.Equal(t, md.TotalVolume, after.TotalVolume)

	f.Disconnect()
	assert.Len(t, rec.ofType(EventDisconnected), 1)
}

func TestFeed_LiveRecords(t *testing.T) {
	srv := newWSServer(t)
	f, rec := newTestFeed(t, liveConfig(srv.url()))
	require.NoError(t, f.SubscribeSymbol("aapl"))

	require.NoError(t, f.Connect(context.Background()))
	assert.Equal(t, StatusConnected, f.Status())
	assert.False(t, f.Simulating())

	conn := srv.accept(t)
	assert.Equal(t, "AAPL", srv.expect(t, "subscribe").Symbol)

	writeText(t, conn, `{"type":"trade","symbol":"AAPL","price":181.5,"volume":200}`)
	writeText(t, conn, `{"type":"quote","symbol":"AAPL","bid":181.4,"ask":181.6,"bidSize":300,"askSize":400}`)
	writeText(t, conn, `{"type":"news","symbol":"AAPL"}`)
	writeText(t, conn, `{"type":`)
	writeText(t, conn, `{"type":"trade","symbol":"MSFT","price":400,"volume":1}`)

	require.Eventually(t, func() bool {
		return f.Stats().MessagesReceived == 5
	}, 2*time.Second, 5*time.Millisecond)

	md, ok := f.Snapshot("AAPL")
	require.True(t, ok)
	assert.Equal(t, 181.5, md.Last)
	assert.Equal(t, 181.4, md.Bid)
	assert.Equal(t, 181.6, md.Ask)
	assert.Equal(t, 300.0, md.BidVolume)
	assert.Equal(t, 400.0, md.AskVolume)
	assert.Equal(t, 200.0, md.TotalVolume)
	assert.Equal(t, SourceLive, md.Source)

	_, ok = f.Snapshot("MSFT")
	assert.False(t, ok, "records for unsubscribed symbols are dropped")

	stats := f.Stats()
	assert.EqualValues(t, 2, stats.MessagesProcessed)
	assert.False(t, stats.LastMessageAt.IsZero())
	assert.Len(t, rec.ofType(EventTrade), 1)
	assert.Len(t, rec.ofType(EventQuote), 1)
	assert.Len(t, rec.ofType(EventTick), 2)
	assert.Equal(t, StatusConnected, f.Status())
}

func TestFeed_LiveSubscriptionMessages(t *testing.T) {
	srv := newWSServer(t)
	f, _ := newTestFeed(t, liveConfig(srv.url()))

	require.NoError(t, f.Connect(context.Background()))
	srv.accept(t)

	require.NoError(t, f.SubscribeSymbol("msft"))
	assert.Equal(t, "MSFT", srv.expect(t, "subscribe").Symbol)

	f.UnsubscribeSymbol("MSFT")
	assert.Equal(t, "MSFT", srv.expect(t, "unsubscribe").Symbol)
}

func TestFeed_Heartbeat(t *testing.T) {
	srv := newWSServer(t)
	cfg := liveConfig(srv.url())
	cfg.HeartbeatInterval = 10 * time.Millisecond
	f, _ := newTestFeed(t, cfg)

	require.NoError(t, f.Connect(context.Background()))
	srv.accept(t)

	srv.expect(t, "heartbeat")
}

func TestFeed_DialFailureFallsBackToSimulation(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(dead.URL, "http")
	dead.Close()

	f, rec := newTestFeed(t, liveConfig(url))
	require.NoError(t, f.SubscribeSymbol("AAPL"))

	require.NoError(t, f.Connect(context.Background()))

	assert.Equal(t, StatusConnected, f.Status())
	assert.True(t, f.Simulating())
	assert.Equal(t, []Status{StatusConnecting, StatusError, StatusConnected}, rec.statuses())
	require.Len(t, rec.ofType(EventError), 1)
	assert.Contains(t, rec.ofType(EventError)[0].Error, "dial failed")

	require.Eventually(t, func() bool {
		md, ok := f.Snapshot("AAPL")
		return ok && md.Source == SourceSimulated
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFeed_RemoteCloseReconnects(t *testing.T) {
	srv := newWSServer(t)
	f, rec := newTestFeed(t, liveConfig(srv.url()))
	require.NoError(t, f.SubscribeSymbol("AAPL"))
	require.NoError(t, f.Connect(context.Background()))

	conn := srv.accept(t)
	srv.expect(t, "subscribe")

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart")))

	srv.accept(t)
	assert.Equal(t, "AAPL", srv.expect(t, "subscribe").Symbol, "subscriptions are replayed")

	require.Eventually(t, func() bool {
		return len(rec.ofType(EventConnected)) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Len(t, rec.ofType(EventDisconnected), 1)
	assert.Empty(t, rec.ofType(EventError))
	assert.Equal(t, []Status{
		StatusConnecting, StatusConnected,
		StatusDisconnected, StatusReconnecting,
		StatusConnecting, StatusConnected,
	}, rec.statuses())
	assert.False(t, f.Simulating())
}

func TestFeed_SnapshotSeedsNewSymbols(t *testing.T) {
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshot/AAPL" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"AAPL","last":190.25,"bid":190.2,"ask":190.3,"open":188,"volume":1000}`))
	}))
	t.Cleanup(rest.Close)

	srv := newWSServer(t)
	fetcher := NewSnapshotFetcher(rest.URL, 100, logger.Nop())
	f, _ := newTestFeed(t, liveConfig(srv.url()), WithSnapshotFetcher(fetcher))

	require.NoError(t, f.Connect(context.Background()))
	srv.accept(t)
	require.NoError(t, f.SubscribeSymbol("AAPL"))

	require.Eventually(t, func() bool {
		md, ok := f.Snapshot("AAPL")
		return ok && md.Last == 190.25
	}, 2*time.Second, 5*time.Millisecond)

	md, _ := f.Snapshot("AAPL")
	assert.Equal(t, SourceSnapshot, md.Source)
	assert.Equal(t, 188.0, md.Open)
	assert.Equal(t, 1000.0, md.TotalVolume)
}

func TestSnapshotFetcher_Errors(t *testing.T) {
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/snapshot/MSFT":
			_, _ = w.Write([]byte(`{"symbol":"AAPL","last":1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(rest.Close)

	fetcher := NewSnapshotFetcher(rest.URL+"/", 100, logger.Nop())

	_, err := fetcher.Fetch(context.Background(), "NFLX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = fetcher.Fetch(context.Background(), "MSFT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response is for AAPL")
}
