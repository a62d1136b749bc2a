package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "backoffice").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request and upstream duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "backoffice",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Login outcomes recorded by RecordLogin.
const (
	LoginSuccess       = "success"
	LoginBadRequest    = "bad_request"
	LoginConfigError   = "config_error"
	LoginUpstreamError = "upstream_error"
	LoginProtocolError = "protocol_error"
)

// Metrics holds the gateway collectors. A nil *Metrics records nothing, so
// components can take one optionally.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	upstreamTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	guardDecisions   *prometheus.CounterVec
	loginsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers the gateway metrics.
//
// Metrics collected:
//   - backoffice_http_requests_total: requests by method, route and status
//   - backoffice_http_request_duration_seconds: request duration by method and route
//   - backoffice_upstream_requests_total: upstream calls by target and outcome
//   - backoffice_upstream_request_duration_seconds: upstream call duration by target
//   - backoffice_guard_decisions_total: edge guard decisions by state
//   - backoffice_logins_total: login attempts by outcome
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests served",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method", "route"}),

		upstreamTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "upstream_requests_total",
			Help:        "Total number of calls to the upstream API",
			ConstLabels: config.ConstLabels,
		}, []string{"target", "outcome"}),

		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "upstream_request_duration_seconds",
			Help:        "Upstream call duration until response headers, in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"target"}),

		guardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "guard_decisions_total",
			Help:        "Edge guard decisions by state",
			ConstLabels: config.ConstLabels,
		}, []string{"state"}),

		loginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "logins_total",
			Help:        "Login attempts by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),
	}
}

// Handler records request count and duration.
// The route label is the chi route pattern, so IDs in paths do not create
// new series; requests that match no route are labelled "unmatched".
func (m *Metrics) Handler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// ObserveUpstream records one upstream round trip.
func (m *Metrics) ObserveUpstream(target string, status int, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(target).Observe(d.Seconds())
	m.upstreamTotal.WithLabelValues(target, upstreamOutcome(status, err)).Inc()
}

// RecordGuard records an edge guard decision.
func (m *Metrics) RecordGuard(state string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(state).Inc()
}

// RecordLogin records a login attempt outcome.
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(outcome).Inc()
}

// upstreamOutcome keeps the outcome label low-cardinality.
func upstreamOutcome(status int, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case err != nil:
		return "error"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}
