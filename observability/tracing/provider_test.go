package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected default endpoint localhost:4318, got %s", cfg.Endpoint)
	}
	if cfg.ServiceName != "tradestore" {
		t.Errorf("expected default service name tradestore, got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected default sample rate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected default insecure to be true")
	}
}

func TestSetup_NoEndpoint(t *testing.T) {
	before := otel.GetTracerProvider()
	p, err := Setup(context.Background(), "", "tradestore")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if p.Enabled() {
		t.Error("provider without endpoint should not be enabled")
	}
	if otel.GetTracerProvider() != before {
		t.Error("global provider must not change without an endpoint")
	}
	if p.Tracer() == nil {
		t.Error("expected a fallback tracer")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of disabled provider should not error: %v", err)
	}
}

func TestProvider_Tracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	p := &Provider{
		tp:     tp,
		tracer: tp.Tracer("test"),
	}

	if !p.Enabled() {
		t.Error("expected provider to be enabled")
	}
	if p.TracerProvider() != tp {
		t.Error("TracerProvider() should return the underlying provider")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(0).Description(); got != sdktrace.AlwaysSample().Description() {
		t.Errorf("rate 0: got %s", got)
	}
	if got := sampler(1.5).Description(); got != sdktrace.AlwaysSample().Description() {
		t.Errorf("rate 1.5: got %s", got)
	}
	if got := sampler(0.25).Description(); got != sdktrace.TraceIDRatioBased(0.25).Description() {
		t.Errorf("rate 0.25: got %s", got)
	}
}

func TestStageTracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	st := NewStageTracer(tp.Tracer("test"))
	ctx, run := st.StartRun(context.Background(), "verify")
	_, ok := st.StartStage(ctx, "verify", "UPGRADED")
	st.End(ok, nil)
	_, bad := st.StartStage(ctx, "verify", "STRUCTURALLY_VERIFIED")
	st.End(bad, errors.New("missing index"))
	st.End(run, nil)

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[0].Name != "verify.UPGRADED" || spans[0].Status.Code != codes.Ok {
		t.Errorf("unexpected first span: %s %v", spans[0].Name, spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || len(spans[1].Events) == 0 {
		t.Errorf("failed stage should carry an error status and event")
	}
	if spans[1].Parent.SpanID() != spans[2].SpanContext.SpanID() {
		t.Error("stage spans should be children of the run span")
	}
}
