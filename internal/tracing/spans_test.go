package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})
	return exporter
}

func attrs(s tracetest.SpanStub) map[string]interface{} {
	m := map[string]interface{}{}
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.AsInterface()
	}
	return m
}

func TestProbeRoundAndProbeSpans(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, round := StartProbeRoundSpan(context.Background(), "codex", 2, 12*time.Second)
	_, probe := StartProbeSpan(ctx, "https://a.example")
	ms := int64(42)
	EndProbeSpan(probe, 200, &ms, "")
	_, failed := StartProbeSpan(ctx, "https://b.example")
	EndProbeSpan(failed, 503, nil, "HTTP 503")
	round.End()

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}

	ok := spans[0]
	if ok.Name != "speedtest.probe" {
		t.Errorf("span name: got %q, want %q", ok.Name, "speedtest.probe")
	}
	if ok.SpanKind != trace.SpanKindClient {
		t.Errorf("expected SpanKindClient, got %v", ok.SpanKind)
	}
	if a := attrs(ok); a["probe.latency_ms"] != int64(42) || a["probe.url"] != "https://a.example" {
		t.Errorf("probe attrs: got %v", a)
	}
	if ok.Parent.SpanID() != spans[2].SpanContext.SpanID() {
		t.Error("probe span is not a child of the round span")
	}

	if spans[1].Status.Code != codes.Error {
		t.Errorf("failed probe status: got %v, want Error", spans[1].Status.Code)
	}

	if a := attrs(spans[2]); a["speedtest.app"] != "codex" || a["speedtest.timeout_ms"] != int64(12000) {
		t.Errorf("round attrs: got %v", a)
	}
}

func TestStartCommitSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartCommitSpan(context.Background(), "p1", 2, 1)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	a := attrs(spans[0])
	if a["provider.id"] != "p1" || a["endpoints.added"] != int64(2) || a["endpoints.removed"] != int64(1) {
		t.Errorf("commit attrs: got %v", a)
	}
}

func TestInjectHeaders(t *testing.T) {
	setupTestTracer(t)

	ctx, span := Tracer().Start(context.Background(), "parent")
	defer span.End()

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	InjectHeaders(ctx, req)

	traceparent := req.Header.Get("traceparent")
	if len(traceparent) < 55 {
		t.Fatalf("traceparent too short: %q", traceparent)
	}
	if got, want := traceparent[3:35], span.SpanContext().TraceID().String(); got != want {
		t.Errorf("trace ID: got %s, want %s", got, want)
	}
}

func TestRecordError(t *testing.T) {
	exporter := setupTestTracer(t)

	RecordError(context.Background(), nil)

	ctx, span := Tracer().Start(context.Background(), "test")
	RecordError(ctx, errors.New("boom"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status: got %v, want Error", spans[0].Status.Code)
	}
}
