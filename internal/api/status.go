package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/curvelaunch/botworker/internal/bot"
)

// Registry exposes the reloader's view of loaded bots.
type Registry interface {
	Loaded() []bot.LoadedBot
	ReconcileCount() int64
}

// StatusResponse describes the worker's current state for ops tooling.
type StatusResponse struct {
	Service       string          `json:"service"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Reconciles    int64           `json:"reconciles"`
	Bots          []bot.LoadedBot `json:"bots"`
}

// StatusHandler serves a snapshot of the loaded bot set.
type StatusHandler struct {
	registry Registry
	started  time.Time
}

// NewStatusHandler creates a status handler. started is the process
// start time used for uptime reporting.
func NewStatusHandler(registry Registry, started time.Time) *StatusHandler {
	return &StatusHandler{registry: registry, started: started}
}

// Status returns the loaded bots and reconciliation progress.
func (h *StatusHandler) Status(w http.ResponseWriter, _ *http.Request) {
	bots := h.registry.Loaded()
	if bots == nil {
		bots = []bot.LoadedBot{}
	}
	JSON(w, http.StatusOK, StatusResponse{
		Service:       ServiceName,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Reconciles:    h.registry.ReconcileCount(),
		Bots:          bots,
	})
}

// RegisterRoutes registers the status route.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.Status)
}
