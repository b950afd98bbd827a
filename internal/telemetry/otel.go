package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const ExporterOtlp = "otlp"
const ExporterStdout = "stdout"

var ErrUnknownExporter = errors.New("unknown otel exporter")

type Options struct {
	ServiceName string
	Exporter    string
	// Endpoint of the otlp collector. Empty falls back to OTEL_EXPORTER_OTLP_* variables.
	Endpoint string
}

// SetupOTelSDK bootstraps the OpenTelemetry pipeline.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func SetupOTelSDK(ctx context.Context, options Options) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(newPropagator())

	tracerProvider, err := newTracerProvider(ctx, options)
	if err != nil {
		return shutdown, errors.Join(err, shutdown(ctx))
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	return shutdown, nil
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newSpanExporter(ctx context.Context, options Options) (trace.SpanExporter, error) {
	switch options.Exporter {
	case ExporterOtlp:
		var otlpOptions []otlptracehttp.Option
		if options.Endpoint != "" {
			otlpOptions = append(otlpOptions, otlptracehttp.WithEndpoint(options.Endpoint), otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, otlpOptions...)
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, options.Exporter)
}

func newTracerProvider(ctx context.Context, options Options) (*trace.TracerProvider, error) {
	traceExporter, err := newSpanExporter(ctx, options)
	if err != nil {
		return nil, err
	}

	serviceName := options.ServiceName
	if serviceName == "" {
		serviceName = "fixity"
	}
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
		resource.WithFromEnv(),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		slog.Warn(fmt.Sprintf("Could not create complete resource for OpenTelemetry: %s", err))
	} else if err != nil {
		return nil, err
	}

	tracerProvider := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
	)
	return tracerProvider, nil
}
