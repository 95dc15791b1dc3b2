// Package api exposes the takedown case workflow over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GSharvesh/Hac-KP/pkg/metrics"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ContextKeyActor holds the authenticated actor in context.
	ContextKeyActor contextKey = "actor"
	// ContextKeyRequestID holds the request ID in context.
	ContextKeyRequestID contextKey = "request_id"
)

// identity headers set by the fronting auth layer.
const (
	HeaderActorID      = "X-Actor-ID"
	HeaderActorRole    = "X-Actor-Role"
	HeaderActorPurpose = "X-Actor-Purpose"
)

// MiddlewareConfig holds middleware configuration.
type MiddlewareConfig struct {
	RateLimit       int
	RateLimitWindow time.Duration
	SkipPaths       []string
	Logger          *slog.Logger
}

// DefaultMiddlewareConfig returns a sensible default configuration.
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		RateLimit:       100,
		RateLimitWindow: time.Minute,
		SkipPaths:       []string{"/health", "/ready", "/live", "/metrics"},
		Logger:          slog.Default(),
	}
}

func skipped(config *MiddlewareConfig, path string) bool {
	for _, p := range config.SkipPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RequestIDMiddleware adds a unique request ID to each request.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), ContextKeyRequestID, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs HTTP requests with timing.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			//nolint:contextcheck // We're using r.Context() inside the defer
			defer func() {
				requestID, _ := r.Context().Value(ContextKeyRequestID).(string)
				logger.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", wrapped.statusCode,
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", requestID,
					"remote_addr", r.RemoteAddr,
				)
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// IdentityMiddleware extracts the pre-validated actor identity from the
// request headers. Authentication itself happens upstream; this service
// only trusts and records who is acting.
func IdentityMiddleware(config *MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped(config, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			actorID := r.Header.Get(HeaderActorID)
			role := models.Role(r.Header.Get(HeaderActorRole))
			if actorID == "" || role == "" {
				writeJSONError(w, http.StatusUnauthorized, "IDENTITY_REQUIRED",
					"X-Actor-ID and X-Actor-Role headers are required")
				return
			}

			switch role {
			case models.RoleVictim, models.RoleOfficer, models.RoleAdmin, models.RoleSystem:
			default:
				writeJSONError(w, http.StatusUnauthorized, "UNKNOWN_ROLE",
					"unrecognized actor role "+strconv.Quote(string(role)))
				return
			}

			actor := models.Actor{
				ID:      actorID,
				Role:    role,
				Purpose: r.Header.Get(HeaderActorPurpose),
			}
			ctx := context.WithValue(r.Context(), ContextKeyActor, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the actor attached by IdentityMiddleware.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(models.Actor)
	return actor, ok
}

// MetricsMiddleware records request counts and latency.
func MetricsMiddleware(m *metrics.ServiceMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.ActiveRequests.Inc()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			defer func() {
				m.ActiveRequests.Dec()
				path := metrics.SanitizePath(r.URL.Path)
				m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
				m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// RateLimitMiddleware limits request rates per actor, falling back to the
// remote address for anonymous paths.
func RateLimitMiddleware(limiter RateLimiter, config *MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped(config, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.RemoteAddr
			if actorID := r.Header.Get(HeaderActorID); actorID != "" {
				key = actorID
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "RATE_LIMIT_ERROR", "rate limit check failed")
				return
			}

			if !allowed {
				remaining, _ := limiter.GetRemaining(r.Context(), key)
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
				w.Header().Set("Retry-After", "60")
				writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RecoveryMiddleware recovers from panics and returns 500.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			//nolint:contextcheck // We're using r.Context() inside the defer
			defer func() {
				if err := recover(); err != nil {
					requestID, _ := r.Context().Value(ContextKeyRequestID).(string)
					logger.ErrorContext(r.Context(), "panic recovered",
						"error", err,
						"request_id", requestID,
						"path", r.URL.Path,
					)
					writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeMiddleware ensures JSON content type for API requests.
func ContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// InMemoryRateLimiter is a simple in-memory rate limiter.
type InMemoryRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
}

// NewInMemoryRateLimiter creates a new in-memory rate limiter.
func NewInMemoryRateLimiter(limit int, window time.Duration) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

func (r *InMemoryRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	now := time.Now()
	if !ok || now.After(b.resetAt) {
		r.buckets[key] = &bucket{count: 1, resetAt: now.Add(r.window)}
		return true, nil
	}

	if b.count >= r.limit {
		return false, nil
	}
	b.count++
	return true, nil
}

func (r *InMemoryRateLimiter) Reset(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, key)
	return nil
}

func (r *InMemoryRateLimiter) GetRemaining(ctx context.Context, key string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok || time.Now().After(b.resetAt) {
		return r.limit, nil
	}
	return r.limit - b.count, nil
}
