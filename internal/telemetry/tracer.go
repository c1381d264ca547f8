// Package telemetry wires the phase runner's dispatch/outcome spans into
// OpenTelemetry, exported through the stdout exporter. No other exporter
// (such as OTLP) is configured.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InitTracerProvider returns a TracerProvider writing spans to w (batched),
// or a no-op provider when enabled is false. The returned shutdown func
// flushes pending spans and must be called on process exit.
func InitTracerProvider(ctx context.Context, enabled bool, serviceName string, w io.Writer) (trace.TracerProvider, func(context.Context) error, error) {
	if !enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes("", attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// Tracer returns the named tracer off the global provider (spec.md's
// components call this rather than threading a TracerProvider through
// every constructor).
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
