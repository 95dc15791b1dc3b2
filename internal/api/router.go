// Package api exposes the takedown case workflow over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GSharvesh/Hac-KP/internal/audit"
	"github.com/GSharvesh/Hac-KP/internal/reporting"
	"github.com/GSharvesh/Hac-KP/internal/workflow"
	"github.com/GSharvesh/Hac-KP/pkg/metrics"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	Logger           *slog.Logger
	RateLimiter      RateLimiter
	Metrics          *metrics.ServiceMetrics
	HealthChecker    *HealthChecker
	MiddlewareConfig *MiddlewareConfig
}

// DefaultRouterConfig returns a default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		Logger:           slog.Default(),
		RateLimiter:      NewInMemoryRateLimiter(100, time.Minute),
		MiddlewareConfig: DefaultMiddlewareConfig(),
	}
}

// Services holds all service dependencies for the API.
type Services struct {
	Workflow  workflow.Service
	Audit     audit.Service
	Reporting reporting.Service
}

// NewRouter creates a new chi router with all middleware and routes.
func NewRouter(config *RouterConfig, services *Services) chi.Router {
	if config == nil {
		config = DefaultRouterConfig()
	}
	if config.MiddlewareConfig == nil {
		config.MiddlewareConfig = DefaultMiddlewareConfig()
	}

	r := chi.NewRouter()

	// Apply middleware stack
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(config.Logger))
	r.Use(LoggingMiddleware(config.Logger))
	r.Use(middleware.RealIP)
	r.Use(ContentTypeMiddleware)

	if config.Metrics != nil {
		r.Use(MetricsMiddleware(config.Metrics))
	}
	if config.RateLimiter != nil {
		r.Use(RateLimitMiddleware(config.RateLimiter, config.MiddlewareConfig))
	}
	r.Use(IdentityMiddleware(config.MiddlewareConfig))

	// Register routes
	registerHealthRoutes(r, config.HealthChecker)
	registerCaseRoutes(r, services)
	registerAuditRoutes(r, services)
	registerReportingRoutes(r, services)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// registerHealthRoutes registers health check endpoints.
func registerHealthRoutes(r chi.Router, checker *HealthChecker) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
			return
		}
		result := checker.Check(req.Context())
		status := http.StatusOK
		if result.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, result)
	})
	r.Get("/ready", handleReady)
	r.Get("/live", handleLive)
}

// handleReady returns readiness status.
func handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive returns liveness status.
func handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthResponse represents health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// registerCaseRoutes registers case workflow endpoints.
func registerCaseRoutes(r chi.Router, services *Services) {
	if services == nil || services.Workflow == nil {
		return
	}
	handler := NewCaseHandler(services.Workflow)
	r.Route("/api/v1/cases", func(r chi.Router) {
		r.Post("/", handler.Submit)
		r.Get("/", handler.List)
		r.Get("/{id}", handler.Get)
		r.Post("/{id}/transitions", handler.Transition)
		r.Get("/{id}/actions", handler.Actions)
		r.Get("/{id}/lineage", handler.Lineage)
		r.Get("/{id}/submissions", handler.Submissions)
	})
}

// registerAuditRoutes registers audit trail endpoints.
func registerAuditRoutes(r chi.Router, services *Services) {
	if services == nil || services.Audit == nil || services.Reporting == nil {
		return
	}
	handler := NewAuditHandler(services.Audit, services.Reporting)
	r.Route("/api/v1/cases/{id}/audit", func(r chi.Router) {
		r.Get("/", handler.Trail)
		r.Get("/export", handler.Export)
		r.Get("/verify", handler.Verify)
	})
	r.Get("/api/v1/audit/{id}", handler.Entry)
}

// registerReportingRoutes registers statistics endpoints.
func registerReportingRoutes(r chi.Router, services *Services) {
	if services == nil || services.Reporting == nil {
		return
	}
	handler := NewReportingHandler(services.Reporting)
	r.Get("/api/v1/stats", handler.Stats)
}
