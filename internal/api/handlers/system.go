package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/tradedesk/internal/desk"
	"github.com/wonny/tradedesk/pkg/logger"
)

// SystemHandler serves health and scheduler endpoints
type SystemHandler struct {
	desk    *desk.Desk
	hub     *StreamHub
	started time.Time
	logger  *logger.Logger
}

// NewSystemHandler creates a new system handler. hub may be nil.
func NewSystemHandler(d *desk.Desk, hub *StreamHub, log *logger.Logger) *SystemHandler {
	return &SystemHandler{
		desk:    d,
		hub:     hub,
		started: time.Now(),
		logger:  log,
	}
}

// Health reports liveness and the state of each component
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	feed := h.desk.Feed().State()

	body := map[string]interface{}{
		"status":        "ok",
		"uptime":        time.Since(h.started).Round(time.Second).String(),
		"feed":          feed.Status,
		"simulating":    feed.Simulating,
		"active_orders": h.desk.Orders().ActiveCount(),
	}
	if h.hub != nil {
		body["stream_clients"] = h.hub.ClientCount()
	}
	if j := h.desk.Journal(); j != nil {
		body["journal"] = j.Stats()
	}

	respondJSON(w, http.StatusOK, body)
}

// GetJobs returns scheduler statistics
// GET /api/jobs
func (h *SystemHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.desk.Scheduler().GetJobStats())
}

// RunJob runs a scheduled job immediately
// POST /api/jobs/{name}/run
func (h *SystemHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	known := false
	for _, n := range h.desk.Scheduler().GetAllJobs() {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	if err := h.desk.Scheduler().RunJob(name); err != nil {
		h.logger.WithError(err).WithField("job", name).Warn("Manual job run failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"job":    name,
		"status": "completed",
	})
}
