package tracing

import (
	"context"
	"testing"
)

func TestInitOTelDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")

	shutdown, err := InitOTel(context.Background())
	if err != nil {
		t.Fatalf("InitOTel: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected no-op span without a provider")
	}
	span.End()
}

func TestInitLangfuseDisabledWithoutCredentials(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk")

	if _, ok := langfuseFromEnv(); ok {
		t.Fatal("expected langfuse to be disabled without a host")
	}
	InitLangfuse()()
}
