package upstream

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/backoffice/pkg/middleware"
)

const tracerName = "backoffice/upstream"

// Transport is an http.RoundTripper for upstream calls.
//
// For every request it:
//   - starts a client span as a child of the request context
//   - injects the trace context into the outgoing headers
//   - forwards the request ID as X-Request-ID
//   - records the call in the upstream metrics
type Transport struct {
	base       http.RoundTripper
	target     string
	metrics    *middleware.Metrics
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTarget sets the target label (default: "backend").
func WithTarget(target string) TransportOption {
	return func(t *Transport) {
		t.target = target
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *middleware.Metrics) TransportOption {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithTracerProvider sets the tracer provider (default: global).
func WithTracerProvider(tp trace.TracerProvider) TransportOption {
	return func(t *Transport) {
		t.tracer = tp.Tracer(tracerName)
	}
}

// WithPropagator sets the propagator (default: global).
func WithPropagator(p propagation.TextMapPropagator) TransportOption {
	return func(t *Transport) {
		t.propagator = p
	}
}

// NewTransport wraps base. A nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, opts ...TransportOption) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{base: base, target: TargetBackend}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(tracerName)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), fmt.Sprintf("upstream %s %s", t.target, req.Method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.Redacted()),
			attribute.String("upstream.target", t.target),
		),
	)
	defer span.End()

	// RoundTrippers must not modify the caller's request.
	out := req.Clone(ctx)
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		out.Header.Set(middleware.RequestIDHeader, id)
	}
	propagator := t.propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	propagator.Inject(ctx, propagation.HeaderCarrier(out.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(out)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream call failed")
		t.metrics.ObserveUpstream(t.target, 0, err, elapsed)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	t.metrics.ObserveUpstream(t.target, resp.StatusCode, nil, elapsed)
	return resp, nil
}
