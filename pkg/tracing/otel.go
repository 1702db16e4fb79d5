package tracing

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-errors/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies this tool in trace backends.
const ServiceName = "clusterlog"

// Tracer returns the tracer used for scan spans. Without InitOTel it is
// backed by the global no-op provider.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/strrl/clusterlog")
}

// InitOTel installs an OTLP/HTTP tracer provider when
// OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_TRACES_ENDPOINT is set.
// The exporter reads the rest of its settings from the standard OTEL_*
// variables. The returned shutdown flushes pending spans.
func InitOTel(ctx context.Context) (shutdown func(context.Context) error, err error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, errors.Errorf("create otlp exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
		)),
	)
	otel.SetTracerProvider(provider)
	slog.Info("opentelemetry tracing enabled")

	return provider.Shutdown, nil
}
