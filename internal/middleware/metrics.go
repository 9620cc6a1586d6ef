package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
)

// Metrics stores application metrics in its own registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	requestsInProgress prometheus.Gauge

	runsSubmitted prometheus.Counter
	runsRunning   prometheus.Gauge
	runsFinished  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "essay_gateway",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "essay_gateway",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		requestsInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "essay_gateway",
			Name:      "http_requests_in_progress",
			Help:      "HTTP requests currently served.",
		}),
		runsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "essay_gateway",
			Name:      "runs_submitted_total",
			Help:      "Workflow runs accepted by the engine.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "essay_gateway",
			Name:      "runs_running",
			Help:      "Workflow runs currently being polled.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "essay_gateway",
			Name:      "runs_finished_total",
			Help:      "Workflow runs that reached a terminal state.",
		}, []string{"status", "kind"}),
	}
	reg.MustRegister(
		m.requestsTotal, m.requestDuration, m.requestsInProgress,
		m.runsSubmitted, m.runsRunning, m.runsFinished,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RunSubmitted implementasi grading.Metrics
func (m *Metrics) RunSubmitted() {
	m.runsSubmitted.Inc()
	m.runsRunning.Inc()
}

// RunFinished; submission failures never counted as running.
func (m *Metrics) RunFinished(status domain.Status, kind domain.FailureKind) {
	if kind != domain.FailureSubmission {
		m.runsRunning.Dec()
	}
	m.runsFinished.WithLabelValues(string(status), string(kind)).Inc()
}

// RunCancelled; the run leaves the running gauge with status "cancelled".
func (m *Metrics) RunCancelled() {
	m.runsRunning.Dec()
	m.runsFinished.WithLabelValues("cancelled", "").Inc()
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsInProgress.Inc()
		defer m.requestsInProgress.Dec()

		start := time.Now()
		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		m.requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
