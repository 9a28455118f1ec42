package tracing

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartProbeRoundSpan creates a span covering one speed-test round.
func StartProbeRoundSpan(ctx context.Context, app string, urls int, timeout time.Duration) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "speedtest.round",
		trace.WithAttributes(
			attribute.String("speedtest.app", app),
			attribute.Int("speedtest.urls", urls),
			attribute.Int64("speedtest.timeout_ms", timeout.Milliseconds()),
		),
	)
}

// StartProbeSpan creates a client span for probing a single URL.
func StartProbeSpan(ctx context.Context, url string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "speedtest.probe",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("probe.url", url)),
	)
}

// EndProbeSpan records the probe outcome on span and ends it.
func EndProbeSpan(span trace.Span, status int, latency *int64, errMsg string) {
	if status != 0 {
		span.SetAttributes(attribute.Int("probe.http_status", status))
	}
	if latency != nil {
		span.SetAttributes(attribute.Int64("probe.latency_ms", *latency))
	}
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}

// StartCommitSpan creates a span for committing an edit session.
func StartCommitSpan(ctx context.Context, providerID string, added, removed int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "session.commit",
		trace.WithAttributes(
			attribute.String("provider.id", providerID),
			attribute.Int("endpoints.added", added),
			attribute.Int("endpoints.removed", removed),
		),
	)
}

// InjectHeaders injects the current trace context (traceparent, tracestate)
// into the given HTTP request headers.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
