package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/wonny/tradedesk/internal/account"
	"github.com/wonny/tradedesk/internal/desk"
	"github.com/wonny/tradedesk/internal/order"
	"github.com/wonny/tradedesk/pkg/logger"
	"github.com/wonny/tradedesk/pkg/redis"
)

// DefaultOrdersPerSecond is the per-account entry limit when a throttle is configured
const DefaultOrdersPerSecond = 10

// OrderHandler serves order entry and queries
type OrderHandler struct {
	desk            *desk.Desk
	throttle        *redis.Throttle
	ordersPerSecond int
	logger          *logger.Logger
}

// NewOrderHandler creates a new order handler. throttle may be nil.
func NewOrderHandler(d *desk.Desk, throttle *redis.Throttle, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		desk:            d,
		throttle:        throttle,
		ordersPerSecond: DefaultOrdersPerSecond,
		logger:          log,
	}
}

// PlaceOrderRequest is the body of POST /api/orders
type PlaceOrderRequest struct {
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Type        string          `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TimeInForce string          `json:"time_in_force"`
}

// ModifyOrderRequest is the body of POST /api/orders/{id}/modify.
// Zero leaves a field unchanged.
type ModifyOrderRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// PlaceOrder submits a new order
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	side, err := order.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	typ, err := order.ParseType(req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tif, err := order.ParseTimeInForce(req.TimeInForce)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.throttle != nil {
		limit := redis.OrdersPerSecond(h.desk.Account().ID, h.ordersPerSecond)
		allowed, _, err := h.throttle.Admit(r.Context(), limit)
		if err != nil {
			h.logger.WithError(err).Warn("Order throttle unavailable, allowing order")
		} else if !allowed {
			respondError(w, http.StatusTooManyRequests, "order rate limit exceeded")
			return
		}
	}

	id, err := h.desk.PlaceOrder(order.SubmitRequest{
		Symbol:      req.Symbol,
		Side:        side,
		Type:        typ,
		Quantity:    req.Quantity,
		Price:       req.Price,
		TimeInForce: tif,
	})
	switch {
	case err == nil:
	case order.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, account.ErrInsufficientFunds), errors.Is(err, desk.ErrInsufficientPosition):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, order.ErrManagerClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		h.logger.WithError(err).Error("Failed to place order")
		respondError(w, http.StatusInternalServerError, "Failed to place order")
		return
	}

	o, _ := h.desk.Orders().Get(id)
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"order_id": id,
		"order":    o,
	})
}

// ListOrders returns orders filtered by symbol, status or activity
// GET /api/orders?symbol=&status=&active=
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders := h.desk.Orders()

	var list []order.Order
	switch {
	case q.Get("status") != "":
		status, err := order.ParseStatus(q.Get("status"))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		list = orders.ByStatus(status)
	case q.Get("symbol") != "":
		list = orders.BySymbol(q.Get("symbol"))
	default:
		active, _ := strconv.ParseBool(q.Get("active"))
		if active {
			list = orders.Active()
		} else {
			list = orders.All()
		}
	}

	if symbol := q.Get("symbol"); symbol != "" && q.Get("status") != "" {
		list = filterSymbol(list, strings.ToUpper(strings.TrimSpace(symbol)))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"orders": list,
		"count":  len(list),
	})
}

func filterSymbol(list []order.Order, symbol string) []order.Order {
	out := list[:0:0]
	for _, o := range list {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

// GetOrder returns one order
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.desk.Orders().Get(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, order.ErrOrderNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// CancelOrder requests cancellation
// POST /api/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.desk.Orders().Cancel(id); err != nil {
		respondOrderError(w, err)
		return
	}

	o, _ := h.desk.Orders().Get(id)
	respondJSON(w, http.StatusAccepted, o)
}

// ModifyOrder changes the quantity or price of an active order
// POST /api/orders/{id}/modify
func (h *OrderHandler) ModifyOrder(w http.ResponseWriter, r *http.Request) {
	var req ModifyOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.desk.Orders().Modify(id, req.Quantity, req.Price); err != nil {
		respondOrderError(w, err)
		return
	}

	o, _ := h.desk.Orders().Get(id)
	respondJSON(w, http.StatusOK, o)
}

// GetStats returns registry aggregates
// GET /api/orders/stats
func (h *OrderHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.desk.Orders().Stats())
}

func respondOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrOrderNotActive), errors.Is(err, order.ErrCancelPending):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrInvalidModify):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrInsufficientFunds), errors.Is(err, desk.ErrInsufficientPosition):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
