package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wonny/tradedesk/internal/api/handlers"
	"github.com/wonny/tradedesk/internal/desk"
	"github.com/wonny/tradedesk/pkg/logger"
	"github.com/wonny/tradedesk/pkg/redis"
)

const requestIDHeader = "X-Request-ID"

// NewRouter creates and configures the HTTP router.
// hub and throttle may be nil.
func NewRouter(d *desk.Desk, hub *handlers.StreamHub, throttle *redis.Throttle, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	orderHandler := handlers.NewOrderHandler(d, throttle, log)
	accountHandler := handlers.NewAccountHandler(d.Account(), d, log)
	marketHandler := handlers.NewMarketHandler(d.Feed(), d.Quotes(), log)
	systemHandler := handlers.NewSystemHandler(d, hub, log)

	// Health check
	r.HandleFunc("/health", systemHandler.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Orders
	api.HandleFunc("/orders", orderHandler.PlaceOrder).Methods("POST")
	api.HandleFunc("/orders", orderHandler.ListOrders).Methods("GET")
	api.HandleFunc("/orders/stats", orderHandler.GetStats).Methods("GET")
	api.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", orderHandler.CancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/modify", orderHandler.ModifyOrder).Methods("POST")

	// Account
	api.HandleFunc("/account", accountHandler.GetSummary).Methods("GET")
	api.HandleFunc("/account/positions", accountHandler.GetPositions).Methods("GET")
	api.HandleFunc("/account/transactions", accountHandler.GetTransactions).Methods("GET")
	api.HandleFunc("/account/deposit", accountHandler.Deposit).Methods("POST")
	api.HandleFunc("/account/withdraw", accountHandler.Withdraw).Methods("POST")

	// Market data
	api.HandleFunc("/market", marketHandler.ListSnapshots).Methods("GET")
	api.HandleFunc("/market/status", marketHandler.GetFeedStatus).Methods("GET")
	api.HandleFunc("/market/{symbol}", marketHandler.GetSnapshot).Methods("GET")
	api.HandleFunc("/market/{symbol}/subscribe", marketHandler.Subscribe).Methods("POST")
	api.HandleFunc("/market/{symbol}/unsubscribe", marketHandler.Unsubscribe).Methods("POST")

	// Scheduler
	api.HandleFunc("/jobs", systemHandler.GetJobs).Methods("GET")
	api.HandleFunc("/jobs/{name}/run", systemHandler.RunJob).Methods("POST")

	// Event stream
	if hub != nil {
		api.HandleFunc("/stream", hub.ServeWS).Methods("GET")
	}

	// Apply middleware
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// requestIDMiddleware tags every response with a request id, reusing the caller's if present
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"request_id": r.Header.Get(requestIDHeader),
				"duration":   time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
