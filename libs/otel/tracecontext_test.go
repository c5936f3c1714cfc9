package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextCaptureRestore(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	tc := CaptureTraceContext(ctx)
	if tc.Parent == "" {
		t.Fatalf("expected traceparent")
	}

	restored := trace.SpanContextFromContext(tc.Restore(context.Background()))
	if restored.TraceID() != traceID || restored.SpanID() != spanID {
		t.Fatalf("unexpected restored span context: %v", restored)
	}
}

func TestRestoreEmptyTraceContext(t *testing.T) {
	ctx := context.Background()
	if got := (TraceContext{}).Restore(ctx); got != ctx {
		t.Fatalf("expected context to be returned unchanged")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	cfg := ConfigFromEnv("scheduling-service")
	if !cfg.Enabled || cfg.SampleRatio != 0.25 || cfg.OTLPEndpoint != "collector:4317" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	if cfg := ConfigFromEnv("x"); cfg.SampleRatio != 1 {
		t.Fatalf("out of range ratio should fall back to 1, got %v", cfg.SampleRatio)
	}
}
