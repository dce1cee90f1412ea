// Package telemetry wires OpenTelemetry tracing for gridflow runs.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the service.name resource attribute of every rank.
const ServiceName = "gridflow"

// Options configures Setup.
type Options struct {
	// Endpoint is the OTLP/HTTP collector URL. Empty disables tracing.
	Endpoint string
	// Rank is recorded as the gridflow.rank resource attribute.
	Rank int
	// Version is recorded as service.version.
	Version string
}

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

// Setup installs a global tracer provider exporting to opts.Endpoint.
//
// Tracing is opt-in: with no endpoint Setup registers nothing and returns a
// no-op Shutdown, so tracers obtained through Tracer are no-ops.
func Setup(ctx context.Context, opts Options) (Shutdown, error) {
	noop := func(context.Context) error { return nil }
	if opts.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(opts.Version),
		attribute.Int("gridflow.rank", opts.Rank),
	))
	if err != nil {
		return noop, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
