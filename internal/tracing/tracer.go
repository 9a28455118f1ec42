package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/allaspectsdev/provswitch"

// Tracer returns the global tracer for provswitch instrumentation.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Options configures the global tracer provider.
type Options struct {
	ServiceName string
	Version     string
	// Exporter is one of "stdout", "otlp-grpc", "otlp-http".
	Exporter   string
	Endpoint   string
	SampleRate float64
	Insecure   bool
}

// Init registers a global TracerProvider built from opts and returns its
// shutdown function, which flushes pending spans.
func Init(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	newExp, ok := exporters[opts.Exporter]
	if !ok {
		return nil, fmt.Errorf("tracing: unknown exporter %q (supported: stdout, otlp-grpc, otlp-http)", opts.Exporter)
	}
	exp, err := newExp(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("tracing: %s exporter: %w", opts.Exporter, err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(opts.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

type exporterFunc func(ctx context.Context, opts Options) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFunc{
	"stdout": func(context.Context, Options) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	},
	"otlp-grpc": func(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
		var o []otlptracegrpc.Option
		if opts.Endpoint != "" {
			o = append(o, otlptracegrpc.WithEndpoint(opts.Endpoint))
		}
		if opts.Insecure {
			o = append(o, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, o...)
	},
	"otlp-http": func(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
		var o []otlptracehttp.Option
		if opts.Endpoint != "" {
			o = append(o, otlptracehttp.WithEndpoint(opts.Endpoint))
		}
		if opts.Insecure {
			o = append(o, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, o...)
	},
}
