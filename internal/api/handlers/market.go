package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/tradedesk/internal/marketdata"
	"github.com/wonny/tradedesk/pkg/logger"
)

// MarketHandler serves feed snapshots and subscriptions
type MarketHandler struct {
	feed   *marketdata.Feed
	quotes *marketdata.QuoteCache
	logger *logger.Logger
}

// NewMarketHandler creates a new market handler. quotes may be nil.
func NewMarketHandler(feed *marketdata.Feed, quotes *marketdata.QuoteCache, log *logger.Logger) *MarketHandler {
	return &MarketHandler{
		feed:   feed,
		quotes: quotes,
		logger: log,
	}
}

// ListSnapshots returns every known symbol
// GET /api/market
func (h *MarketHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots := h.feed.Snapshots()
	views := make([]marketdata.View, 0, len(snapshots))
	for _, md := range snapshots {
		views = append(views, md.View())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": views,
		"count":   len(views),
	})
}

// GetSnapshot returns one symbol, falling back to the quote cache
// GET /api/market/{symbol}
func (h *MarketHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if md, ok := h.feed.Snapshot(symbol); ok {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"data":       md.View(),
			"subscribed": h.feed.IsSubscribed(symbol),
		})
		return
	}

	if h.quotes != nil {
		if q, ok := h.quotes.Get(symbol); ok {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"data":       q.View(),
				"subscribed": false,
				"stale":      q.Stale,
			})
			return
		}
	}

	respondError(w, http.StatusNotFound, "symbol not found")
}

// Subscribe adds a symbol to the feed
// POST /api/market/{symbol}/subscribe
func (h *MarketHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if err := h.feed.SubscribeSymbol(symbol); err != nil {
		if errors.Is(err, marketdata.ErrEmptySymbol) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": h.feed.Symbols(),
	})
}

// Unsubscribe removes a symbol from the feed
// POST /api/market/{symbol}/unsubscribe
func (h *MarketHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.feed.UnsubscribeSymbol(mux.Vars(r)["symbol"])
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": h.feed.Symbols(),
	})
}

// GetFeedStatus returns connection state and traffic counters
// GET /api/market/status
func (h *MarketHandler) GetFeedStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.feed.State())
}
