package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wonny/tradedesk/internal/account"
	"github.com/wonny/tradedesk/internal/journal"
	"github.com/wonny/tradedesk/internal/marketdata"
	"github.com/wonny/tradedesk/internal/order"
	"github.com/wonny/tradedesk/internal/scheduler"
	"github.com/wonny/tradedesk/internal/scheduler/jobs"
	"github.com/wonny/tradedesk/pkg/config"
	"github.com/wonny/tradedesk/pkg/logger"
	"github.com/wonny/tradedesk/pkg/redis"
)

// ErrInsufficientPosition is returned when selling more than is held
var ErrInsufficientPosition = errors.New("insufficient position")

// quoteMaxAge is how long a quote may go without updates before it is evicted
const quoteMaxAge = 15 * time.Minute

// Config holds desk settings
type Config struct {
	AccountID       string
	Owner           account.Profile
	InitialCash     decimal.Decimal
	DefaultSymbols  []string
	Orders          order.Config
	MarketCloseCron string
	QuoteTTL        time.Duration
}

// ConfigFrom maps application config onto desk settings
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		AccountID:      cfg.Desk.AccountID,
		Owner:          account.Profile{Username: cfg.Desk.Owner},
		InitialCash:    decimal.NewFromFloat(cfg.Desk.InitialCash),
		DefaultSymbols: cfg.Desk.DefaultSymbols,
		Orders: order.Config{
			AcceptDelay: cfg.Desk.AcceptDelay,
			FillDelay:   cfg.Desk.FillDelay,
			CancelDelay: cfg.Desk.CancelDelay,
		},
		MarketCloseCron: cfg.Desk.MarketCloseCron,
		QuoteTTL:        cfg.Redis.QuoteTTL,
	}
}

// Option configures a Desk
type Option func(*Desk)

// WithJournal records order events and transactions to store
func WithJournal(store journal.Store) Option {
	return func(d *Desk) { d.journalStore = store }
}

// WithQuoteStore mirrors quotes to Redis
func WithQuoteStore(store *redis.Cache) Option {
	return func(d *Desk) { d.quoteStore = store }
}

// Desk connects the order manager, account and market data feed: fills are
// booked into the account and ticks mark open positions.
type Desk struct {
	cfg    Config
	logger *logger.Logger

	orders    *order.Manager
	account   *account.Account
	feed      *marketdata.Feed
	quotes    *marketdata.QuoteCache
	scheduler *scheduler.Scheduler
	journal   *journal.Recorder

	journalStore journal.Store
	quoteStore   *redis.Cache

	// bookMu keeps fill booking, position marking and reservations from
	// interleaving. It may be taken under the order manager's lock, never the
	// other way round.
	bookMu       sync.Mutex
	reservations map[string]reservation

	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds a desk around feed. The account is funded with the initial cash.
func New(cfg Config, feed *marketdata.Feed, log *logger.Logger, opts ...Option) (*Desk, error) {
	d := &Desk{
		cfg:          cfg,
		logger:       log.WithComponent("desk"),
		feed:         feed,
		reservations: make(map[string]reservation),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.account = account.New(cfg.AccountID, cfg.Owner, log)
	d.orders = order.NewManager(cfg.Orders, log,
		order.WithPriceSource(feed),
		order.WithAcceptGate(d.checkOrder),
		order.WithModifyGate(d.checkOrder),
	)
	d.quotes = marketdata.NewQuoteCache(d.quoteStore, cfg.QuoteTTL, log)
	d.scheduler = scheduler.New(log)

	if d.journalStore != nil {
		d.journal = journal.NewRecorder(d.journalStore, 0, log)
		d.orders.Subscribe(d.journal)
		d.account.OnTransaction(d.journal.OnTransaction)
	}

	d.orders.Subscribe(order.ListenerFunc(d.onOrderEvent))
	feed.Subscribe(marketdata.ListenerFunc(d.onFeedEvent))
	feed.Subscribe(d.quotes)

	if cfg.InitialCash.IsPositive() {
		if err := d.account.Deposit(cfg.InitialCash, "Initial deposit"); err != nil {
			return nil, fmt.Errorf("fund account: %w", err)
		}
	}

	if err := d.scheduler.AddJob(jobs.NewExpireDayOrdersJob(d.orders, cfg.MarketCloseCron, log)); err != nil {
		return nil, err
	}
	if err := d.scheduler.AddJob(jobs.NewMarkPositionsJob(d, log)); err != nil {
		return nil, err
	}
	if err := d.scheduler.AddJob(jobs.NewQuoteCleanupJob(d.quotes, quoteMaxAge, log)); err != nil {
		return nil, err
	}
	if d.quoteStore != nil {
		if err := d.scheduler.AddJob(jobs.NewQuoteFlushJob(d.quotes, log)); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Start subscribes the default symbols, connects the feed and starts the scheduler
func (d *Desk) Start(ctx context.Context) error {
	var err error
	d.startOnce.Do(func() {
		if d.journal != nil {
			d.journal.Start()
		}
		if err = d.feed.SubscribeSymbols(d.cfg.DefaultSymbols); err != nil {
			return
		}
		if err = d.feed.Connect(ctx); err != nil {
			return
		}
		d.scheduler.Start()
		d.logger.WithFields(map[string]interface{}{
			"account_id": d.account.ID,
			"symbols":    len(d.cfg.DefaultSymbols),
		}).Info("Trading desk started")
	})
	return err
}

// Stop halts scheduled work, the exchange simulation and the feed
func (d *Desk) Stop() {
	d.stopOnce.Do(func() {
		d.scheduler.Stop()
		d.orders.Close()
		d.feed.Close()
		if d.journal != nil {
			d.journal.Stop()
		}
		if _, err := d.quotes.Flush(context.Background()); err != nil {
			d.logger.WithError(err).Warn("Final quote flush failed")
		}
		d.logger.Info("Trading desk stopped")
	})
}

// Orders returns the order manager
func (d *Desk) Orders() *order.Manager { return d.orders }

// Account returns the trading account
func (d *Desk) Account() *account.Account { return d.account }

// Feed returns the market data feed
func (d *Desk) Feed() *marketdata.Feed { return d.feed }

// Quotes returns the quote cache
func (d *Desk) Quotes() *marketdata.QuoteCache { return d.quotes }

// Scheduler returns the job scheduler
func (d *Desk) Scheduler() *scheduler.Scheduler { return d.scheduler }

// Journal returns the journal recorder, nil when journaling is off
func (d *Desk) Journal() *journal.Recorder { return d.journal }

// PlaceOrder checks funds or holdings, holds them for the order and submits it.
// Failed checks return an error before anything is registered.
func (d *Desk) PlaceOrder(req order.SubmitRequest) (string, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	d.bookMu.Lock()
	var err error
	if _, taken := d.reservations[req.ID]; taken {
		err = &order.ValidationError{Field: "id", Reason: "order id already in use"}
	} else {
		err = d.reserve(req.ID, req.Symbol, req.Side, req.Type, req.Quantity, req.Price)
	}
	d.bookMu.Unlock()
	if err != nil {
		d.logger.WithFields(map[string]interface{}{
			"symbol": req.Symbol,
			"side":   req.Side,
			"reason": err.Error(),
		}).Warn("Order refused")
		return "", err
	}

	id, err := d.orders.Submit(req)
	if err != nil {
		d.bookMu.Lock()
		delete(d.reservations, req.ID)
		d.bookMu.Unlock()
	}
	return id, err
}

// checkOrder re-checks an order's remaining quantity against what other open
// orders leave available. It runs on exchange acceptance and before a
// modification is applied; on success the order's hold is refreshed.
func (d *Desk) checkOrder(o order.Order) error {
	d.bookMu.Lock()
	defer d.bookMu.Unlock()
	return d.reserve(o.ID, o.Symbol, o.Side, o.Type, o.Remaining(), o.Price)
}

// referencePrice is the price a buy is expected to execute at
func (d *Desk) referencePrice(symbol string, typ order.Type, price decimal.Decimal) decimal.Decimal {
	if typ != order.TypeMarket && price.IsPositive() {
		return price
	}
	if last, ok := d.feed.LastPrice(symbol); ok {
		return decimal.NewFromFloat(last).Round(4)
	}
	return order.DefaultReferencePrice
}

// MarkPositions marks every open position to the feed's last price and
// returns how many were marked
func (d *Desk) MarkPositions() int {
	d.bookMu.Lock()
	defer d.bookMu.Unlock()

	marked := 0
	for _, p := range d.account.Positions() {
		last, ok := d.feed.LastPrice(p.Symbol)
		if !ok {
			continue
		}
		if d.account.UpdatePositionPrice(p.Symbol, decimal.NewFromFloat(last).Round(4)) {
			marked++
		}
	}
	return marked
}

// onOrderEvent books executions into the account and releases holds of
// orders that are done
func (d *Desk) onOrderEvent(e order.Event) {
	switch e.Type {
	case order.EventCancelled, order.EventRejected, order.EventExpired:
		d.bookMu.Lock()
		delete(d.reservations, e.OrderID)
		d.bookMu.Unlock()
		return
	}
	if !e.IsFill() {
		return
	}

	d.bookMu.Lock()
	defer d.bookMu.Unlock()

	log := d.logger.WithFields(map[string]interface{}{
		"order_id": e.OrderID,
		"symbol":   e.Order.Symbol,
		"qty":      e.FillQty.String(),
		"price":    e.FillPrice.String(),
	})

	switch e.Order.Side {
	case order.SideBuy:
		if err := d.account.AddPosition(e.Order.Symbol, e.FillQty, e.FillPrice); err != nil {
			log.WithError(err).Error("Failed to book buy fill")
		}
	case order.SideSell:
		d.account.UpdatePositionPrice(e.Order.Symbol, e.FillPrice)
		if _, err := d.account.ReducePosition(e.Order.Symbol, e.FillQty); err != nil {
			log.WithError(err).Error("Failed to book sell fill")
		}
	}
	d.consume(e.OrderID, e.FillQty, e.Order.Status == order.StatusFilled)
}

// onFeedEvent marks open positions to the last traded price
func (d *Desk) onFeedEvent(e marketdata.Event) {
	if e.Type != marketdata.EventTick || e.Data.Last <= 0 {
		return
	}

	d.bookMu.Lock()
	d.account.UpdatePositionPrice(e.Symbol, decimal.NewFromFloat(e.Data.Last).Round(4))
	d.bookMu.Unlock()
}
