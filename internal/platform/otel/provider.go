package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Options struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	// ParkID is attached to every span as service.instance.id.
	ParkID string
}

// Setup installs a global tracer provider exporting over OTLP/HTTP. When
// tracing is off or no endpoint is set it registers nothing, and the
// dispatcher's spans go to the no-op provider.
//
// The returned shutdown flushes pending spans.
func Setup(ctx context.Context, opt Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !opt.Enabled || opt.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opt.Endpoint))
	if err != nil {
		return noop, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opt.ServiceName),
			semconv.ServiceInstanceID(opt.ParkID),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
