package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/curvelaunch/botworker/internal/inference"
	"github.com/curvelaunch/botworker/internal/store"
)

// Overall health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusInternal  = "error"
)

// Prober checks reachability of the inference endpoint.
type Prober interface {
	Probe(ctx context.Context) error
}

// Check is one dependency's health probe result.
type Check struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // ok | loading | error
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthResponse is the aggregate health record.
type HealthResponse struct {
	Status    string    `json:"status"`
	Checks    []Check   `json:"checks"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// HealthHandler answers "is this process healthy" for external monitoring:
// a store round trip plus a bounded inference reachability probe.
type HealthHandler struct {
	repo         store.Repository
	prober       Prober
	probeTimeout time.Duration
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(repo store.Repository, prober Prober, probeTimeout time.Duration) *HealthHandler {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &HealthHandler{repo: repo, prober: prober, probeTimeout: probeTimeout}
}

// Health runs both checks and merges the results. It never panics: any
// internal failure becomes a top-level error status.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Health check panicked", "panic", rec)
			JSON(w, http.StatusInternalServerError, HealthResponse{
				Status:    StatusInternal,
				Checks:    []Check{},
				Timestamp: time.Now().UTC(),
				Service:   ServiceName,
			})
		}
	}()

	dbCheck := h.checkDatabase(r.Context())
	infCheck := h.checkInference(r.Context())

	status := StatusHealthy
	statusCode := http.StatusOK
	switch {
	case dbCheck.Status == "error":
		status = StatusUnhealthy
		statusCode = http.StatusServiceUnavailable
	case infCheck.Status != "ok":
		status = StatusDegraded
	}

	JSON(w, statusCode, HealthResponse{
		Status:    status,
		Checks:    []Check{dbCheck, infCheck},
		Timestamp: time.Now().UTC(),
		Service:   ServiceName,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	start := time.Now()
	err := h.repo.Ping(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		slog.Error("Database health check failed", "error", err)
		return Check{Name: "database", Status: "error", Message: err.Error(), LatencyMs: latency}
	}
	return Check{Name: "database", Status: "ok", LatencyMs: latency}
}

func (h *HealthHandler) checkInference(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	start := time.Now()
	err := h.prober.Probe(ctx)
	latency := time.Since(start).Milliseconds()

	switch {
	case err == nil:
		return Check{Name: "inference", Status: "ok", LatencyMs: latency}
	case errors.Is(err, inference.ErrModelLoading):
		// 503 means the endpoint is reachable but the model is cold.
		return Check{Name: "inference", Status: "loading", Message: err.Error(), LatencyMs: latency}
	default:
		slog.Warn("Inference health check failed", "error", err)
		return Check{Name: "inference", Status: "error", Message: err.Error(), LatencyMs: latency}
	}
}

// RegisterRoutes registers the health check route.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
}
