package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomledger/loomledger/internal/shared"
)

// Metrics collects the Prometheus metrics of the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	exportFailures  *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loomledger_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loomledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loomledger_ledger_mutations_total",
		Help: "Committed ledger mutations by entity and action.",
	}, []string{"entity", "action"})
	exportFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loomledger_export_failures_total",
		Help: "Spreadsheet export failures by stage.",
	}, []string{"stage"})
	registry.MustRegister(requests, duration, mutations, exportFailures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		mutations:       mutations,
		exportFailures:  exportFailures,
	}
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Committed counts a committed ledger mutation.
func (m *Metrics) Committed(_ context.Context, evt shared.CommitEvent) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(evt.Entity, evt.Action).Inc()
}

// ExportFailed counts a failed export at the given stage.
func (m *Metrics) ExportFailed(stage string) {
	if m == nil {
		return
	}
	m.exportFailures.WithLabelValues(stage).Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
