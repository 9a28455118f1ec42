package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func resetGlobal(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})
}

func TestInit_Stdout(t *testing.T) {
	resetGlobal(t)

	shutdown, err := Init(context.Background(), Options{
		ServiceName: "provswitch-test",
		Version:     "1.0.0",
		Exporter:    "stdout",
		SampleRate:  1.0,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	found := false
	for _, f := range otel.GetTextMapPropagator().Fields() {
		if f == "traceparent" {
			found = true
		}
	}
	if !found {
		t.Error("expected W3C propagator to be registered")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	resetGlobal(t)

	if _, err := Init(context.Background(), Options{Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestExporters_OTLP(t *testing.T) {
	for _, name := range []string{"otlp-grpc", "otlp-http"} {
		exp, err := exporters[name](context.Background(), Options{Endpoint: "localhost:4317", Insecure: true})
		if err != nil {
			t.Fatalf("%s exporter: %v", name, err)
		}
		if exp == nil {
			t.Fatalf("%s exporter: nil", name)
		}
		exp.Shutdown(context.Background())
	}
}

func TestSampler(t *testing.T) {
	tests := map[float64]string{
		1.5:  "AlwaysOnSampler",
		1:    "AlwaysOnSampler",
		0:    "AlwaysOffSampler",
		-1:   "AlwaysOffSampler",
		0.25: "TraceIDRatioBased{0.25}",
	}
	for rate, want := range tests {
		if got := sampler(rate).Description(); got != want {
			t.Errorf("sampler(%v): got %q, want %q", rate, got, want)
		}
	}
}
