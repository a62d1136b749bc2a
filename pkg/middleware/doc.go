// Package middleware provides the observability middleware of the gateway.
//
// This package includes:
//   - Request ID assignment and propagation (X-Request-ID)
//   - OpenTelemetry server spans for every inbound request
//   - Prometheus metrics for requests, upstream calls, guard decisions and logins
//   - Structured access logging with log/slog
//
// Every middleware has the standard func(http.Handler) http.Handler shape and
// plugs into a chi router:
//
//	m := middleware.NewMetrics(middleware.WithNamespace("backoffice"))
//	r := chi.NewRouter()
//	r.Use(
//	    middleware.RequestID,
//	    middleware.Tracing(),
//	    m.Handler,
//	    middleware.AccessLog(logger, nil),
//	)
//
// Expose metrics on a separate listener:
//
//	go http.ListenAndServe(":9090", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Context Propagation
//
// RequestID and Tracing store their values in the request context. Upstream
// calls made with that context carry both the X-Request-ID header and the W3C
// trace context (see pkg/upstream).
package middleware
