// Package httptransport exposes the dispatch core over HTTP: one endpoint per
// message kind plus health and metrics. The transport is a thin shell; every
// gate (auth, validation, caching) runs inside the dispatch pipeline.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relay/internal/dispatch/bus"
	"relay/internal/platform/metrics"
	"relay/internal/platform/middleware"
)

// Handler is the thin HTTP layer over the command and query buses.
type Handler struct {
	logger    *slog.Logger
	commands  *bus.CommandBus
	queries   *bus.QueryBus
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
	health    []HealthCheck
}

// HealthCheck reports the readiness of one dependency.
type HealthCheck struct {
	Name  string
	Check func() error
}

// New creates the HTTP handler.
func New(
	commands *bus.CommandBus,
	queries *bus.QueryBus,
	logger *slog.Logger,
	m *metrics.Metrics,
	validator middleware.TokenValidator,
	health ...HealthCheck,
) *Handler {
	return &Handler{
		logger:    logger,
		commands:  commands,
		queries:   queries,
		metrics:   m,
		validator: validator,
		health:    health,
	}
}

// Router wires all endpoints.
func (h *Handler) Router(reg prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.LatencyMiddleware(h.metrics))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	api := chi.NewRouter()
	api.Use(middleware.Timeout(30 * time.Second))
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.RequireAuth(h.validator, h.logger))
	api.Post("/commands/{name}", h.handleCommand)
	api.Post("/queries/{name}", h.handleQuery)

	r.Mount("/v1", api)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.health))
	for _, hc := range h.health {
		if err := hc.Check(); err != nil {
			status = http.StatusServiceUnavailable
			checks[hc.Name] = err.Error()
			continue
		}
		checks[hc.Name] = "ok"
	}
	writeJSON(w, status, map[string]any{
		"status": http.StatusText(status),
		"checks": checks,
	})
}
