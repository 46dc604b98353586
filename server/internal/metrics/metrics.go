package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cardiosense/cardiosense/pkg/risk"
)

// Metrics bundles the server's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	Assessments        *prometheus.CounterVec
	Emergencies        prometheus.Counter
	AssessDuration     prometheus.Histogram
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	RuleSetReloads     *prometheus.CounterVec
	RateLimitDropped   prometheus.Counter
	AuthFailures       prometheus.Counter
	AlertsFired        prometheus.Counter
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardiosense_assessments_total",
			Help: "Total number of scored readings by risk level.",
		}, []string{"level"}),
		Emergencies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardiosense_emergencies_total",
			Help: "Total number of readings flagged as emergencies.",
		}),
		AssessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardiosense_assess_duration_seconds",
			Help:    "Time spent scoring one reading.",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardiosense_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardiosense_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		RuleSetReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardiosense_ruleset_reloads_total",
			Help: "Rule set reload attempts by result.",
		}, []string{"result"}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardiosense_ratelimit_dropped_total",
			Help: "Total number of requests rejected by the rate limiter.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardiosense_auth_failures_total",
			Help: "Total number of requests rejected for a missing or wrong API key.",
		}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardiosense_alerts_fired_total",
			Help: "Total number of emergency alerts fired.",
		}),
	}

	registry.MustRegister(
		m.Assessments,
		m.Emergencies,
		m.AssessDuration,
		m.RequestsTotal,
		m.RequestDurationSec,
		m.RuleSetReloads,
		m.RateLimitDropped,
		m.AuthFailures,
		m.AlertsFired,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAssessment records one scored reading.
func (m *Metrics) ObserveAssessment(a risk.RiskAssessment, took time.Duration) {
	m.Assessments.WithLabelValues(a.Level.String()).Inc()
	if a.Emergency {
		m.Emergencies.Inc()
	}
	m.AssessDuration.Observe(took.Seconds())
}

// ObserveReload records a rule set reload outcome.
func (m *Metrics) ObserveReload(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.RuleSetReloads.WithLabelValues(result).Inc()
}

// Middleware records request counts and durations per normalized route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute collapses path parameters so label cardinality stays bounded.
func normalizeRoute(path string) string {
	switch {
	case path == "/ws/stream" || path == "/metrics":
		return path
	case strings.HasPrefix(path, "/api/v1/history/"):
		return "/api/v1/history/{id}"
	case strings.HasPrefix(path, "/api/v1/rules/"):
		return "/api/v1/rules/{name}"
	case strings.HasPrefix(path, "/api/v1/"):
		switch path {
		case "/api/v1/analyze", "/api/v1/history", "/api/v1/report",
			"/api/v1/rules", "/api/v1/alerts", "/api/v1/health":
			return path
		}
		return "/api/v1/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through the wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Flush keeps streaming behavior for handlers that require it.
func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
