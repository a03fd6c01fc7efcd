package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/tradedesk/pkg/logger"
	"github.com/wonny/tradedesk/pkg/redis"
)

// CachedQuote is a cached snapshot with its staleness
type CachedQuote struct {
	MarketData
	Stale bool `json:"stale"`
}

// QuoteCache keeps the newest snapshot per symbol and mirrors changed
// entries to Redis on Flush. It is fed by subscribing it to a Feed.
type QuoteCache struct {
	mu     sync.Mutex
	quotes map[string]MarketData
	dirty  map[string]bool
	ttl    time.Duration

	store  *redis.Cache // nil keeps the cache in memory only
	logger *logger.Logger
}

// NewQuoteCache creates a quote cache. store may be nil.
func NewQuoteCache(store *redis.Cache, ttl time.Duration, log *logger.Logger) *QuoteCache {
	if ttl <= 0 {
		ttl = redis.TTLQuote
	}
	return &QuoteCache{
		quotes: make(map[string]MarketData),
		dirty:  make(map[string]bool),
		ttl:    ttl,
		store:  store,
		logger: log.WithComponent("quote_cache"),
	}
}

// OnFeedEvent records tick snapshots
func (c *QuoteCache) OnFeedEvent(e Event) {
	if e.Type != EventTick {
		return
	}
	c.Update(e.Data)
}

// Update stores md unless the cache already holds newer data for the symbol
func (c *QuoteCache) Update(md MarketData) bool {
	if md.Symbol == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.quotes[md.Symbol]; ok && md.Timestamp.Before(existing.Timestamp) {
		return false
	}
	c.quotes[md.Symbol] = md
	c.dirty[md.Symbol] = true
	return true
}

// Get returns the cached snapshot of symbol
func (c *QuoteCache) Get(symbol string) (CachedQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	md, ok := c.quotes[normalizeSymbol(symbol)]
	if !ok {
		return CachedQuote{}, false
	}
	return CachedQuote{MarketData: md, Stale: time.Since(md.Timestamp) > c.ttl}, true
}

// Len returns the number of cached symbols
func (c *QuoteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.quotes)
}

// Flush writes every entry changed since the last flush to Redis.
// Entries that fail to write stay dirty.
func (c *QuoteCache) Flush(ctx context.Context) (int, error) {
	c.mu.Lock()
	pending := make([]MarketData, 0, len(c.dirty))
	for symbol := range c.dirty {
		pending = append(pending, c.quotes[symbol])
	}
	c.dirty = make(map[string]bool)
	c.mu.Unlock()

	if c.store == nil {
		return 0, nil
	}

	written := 0
	var firstErr error
	for _, md := range pending {
		if err := c.store.Set(ctx, redis.QuoteKey(md.Symbol), md, c.ttl); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("flush quote %s: %w", md.Symbol, err)
			}
			c.mu.Lock()
			c.dirty[md.Symbol] = true
			c.mu.Unlock()
			continue
		}
		written++
	}

	if written > 0 {
		c.logger.WithField("count", written).Debug("Flushed quotes")
	}
	return written, firstErr
}

// CleanStale drops entries older than maxAge and returns how many were removed
func (c *QuoteCache) CleanStale(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for symbol, md := range c.quotes {
		if time.Since(md.Timestamp) > maxAge {
			delete(c.quotes, symbol)
			delete(c.dirty, symbol)
			removed++
		}
	}
	return removed
}
