// Package metrics provides Prometheus metrics instrumentation for the
// takedown services. Metric labels never carry case or submitter IDs.
package metrics

import (
	"net/http"
	"runtime"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
	registryMu   sync.Mutex
)

// GetRegistry returns the shared metrics registry.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	return registry
}

// ResetRegistry resets the registry for testing purposes.
// This should only be used in tests.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registryOnce = sync.Once{}
}

// ServiceMetrics contains metrics for one takedown service.
type ServiceMetrics struct {
	ServiceName string

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	// Service info
	ServiceInfo *prometheus.GaugeVec

	// Workflow metrics
	TransitionsTotal   *prometheus.CounterVec
	CasesSubmitted     *prometheus.CounterVec
	EscalationsTotal   *prometheus.CounterVec
	SLAWarningsTotal   prometheus.Counter
	IntegrityFailures  prometheus.Counter
	SchedulerTickSecs  prometheus.Histogram
	PoisonCasesFlagged prometheus.Counter

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// NewServiceMetrics creates metrics for a service.
func NewServiceMetrics(serviceName, version string) *ServiceMetrics {
	reg := GetRegistry()

	m := &ServiceMetrics{
		ServiceName: serviceName,

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "http_active_requests",
				Help:      "Number of active HTTP requests",
			},
		),

		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "info",
				Help:      "Service information",
			},
			[]string{"version", "go_version"},
		),

		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "transitions_total",
				Help:      "Total case state transitions",
			},
			[]string{"action", "from", "to", "result"},
		),

		CasesSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "cases_submitted_total",
				Help:      "Total submitted cases",
			},
			[]string{"priority", "classification"},
		),

		EscalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "escalations_total",
				Help:      "Total SLA escalations",
			},
			[]string{"trigger"},
		),

		SLAWarningsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "sla_warnings_total",
				Help:      "Total SLA warnings issued",
			},
		),

		IntegrityFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "audit_integrity_failures_total",
				Help:      "Total failed audit trail verifications",
			},
		),

		SchedulerTickSecs: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "scheduler_tick_duration_seconds",
				Help:      "Duration of scheduler passes",
				Buckets:   prometheus.DefBuckets,
			},
		),

		PoisonCasesFlagged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "poison_cases_flagged_total",
				Help:      "Cases flagged after repeated scheduler failures",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "takedown",
				Subsystem: serviceName,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.ServiceInfo,
		m.TransitionsTotal,
		m.CasesSubmitted,
		m.EscalationsTotal,
		m.SLAWarningsTotal,
		m.IntegrityFailures,
		m.SchedulerTickSecs,
		m.PoisonCasesFlagged,
		m.ErrorsTotal,
	)

	m.ServiceInfo.WithLabelValues(version, runtime.Version()).Set(1)

	return m
}

// SanitizePath converts a path with IDs to a template so metric labels
// stay low-cardinality. Example: /api/v1/cases/abc123 -> /api/v1/cases/{case_id}.
func SanitizePath(path string) string {
	patterns := map[string]string{
		"cases": "{case_id}",
		"audit": "{entry_id}",
	}

	segments := strings.Split(path, "/")
	for i := 0; i < len(segments)-1; i++ {
		replacement, ok := patterns[segments[i]]
		if !ok || segments[i+1] == "" {
			continue
		}
		// Fixed subresources under /audit are not IDs.
		if segments[i+1] == "export" || segments[i+1] == "verify" {
			continue
		}
		segments[i+1] = replacement
	}
	return strings.Join(segments, "/")
}

// Handler returns an HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
