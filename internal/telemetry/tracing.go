package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// EnvOTLPEndpoint: переменная, включающая экспорт трейсов.
const EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"

// ShutdownFunc сбрасывает накопленные спаны и закрывает экспортер.
type ShutdownFunc func(ctx context.Context) error

// SetupTracing устанавливает глобальный TracerProvider.
//
// Без OTEL_EXPORTER_OTLP_ENDPOINT остаётся no-op провайдер otel:
// спаны создаются, но никуда не уходят.
func SetupTracing(ctx context.Context, service string) (ShutdownFunc, error) {
	if os.Getenv(EnvOTLPEndpoint) == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	// Endpoint и заголовки otlptracehttp читает из OTEL_* сам
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
