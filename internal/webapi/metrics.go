package webapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus counters this server exposes at /metrics.
// Scaled to what a single-project orchestrator surface actually emits, not
// the full metrics catalog a multi-tenant service would carry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	agentsStarted  *prometheus.CounterVec
	agentsKilled   prometheus.Counter
	agentsRestarted prometheus.Counter
}

// NewMetrics registers a fresh, process-local Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ixado",
			Subsystem: "webapi",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the web API.",
		},
		[]string{"method", "path", "status"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ixado",
			Subsystem: "webapi",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	m.agentsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ixado",
			Subsystem: "agents",
			Name:      "started_total",
			Help:      "Total number of adapter spawns requested via the web API.",
		},
		[]string{"adapter"},
	)
	m.agentsKilled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ixado",
		Subsystem: "agents",
		Name:      "killed_total",
		Help:      "Total number of agents killed via the web API.",
	})
	m.agentsRestarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ixado",
		Subsystem: "agents",
		Name:      "restarted_total",
		Help:      "Total number of agents restarted via the web API.",
	})

	m.registry.MustRegister(m.httpRequests, m.httpDuration, m.agentsStarted, m.agentsKilled, m.agentsRestarted)
	return m
}

// Handler returns the Prometheus scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) recordRequest(method, path string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// instrument wraps next, recording request counts and latency labelled by
// method and raw request path (r.URL.Path), so routes carrying an agent or
// task ID get one label set per ID.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.recordRequest(r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
