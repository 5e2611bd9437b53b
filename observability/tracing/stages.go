package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StageTracer wraps a multi-stage run, such as schema verification, in a
// parent span with one child span per stage.
type StageTracer struct {
	tracer trace.Tracer
}

// NewStageTracer creates a StageTracer. If tracer is nil, the global
// tracer provider is used.
func NewStageTracer(tracer trace.Tracer) *StageTracer {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer("tradestore.verify")
	}
	return &StageTracer{tracer: tracer}
}

// StartRun begins the parent span.
func (s *StageTracer) StartRun(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}

// StartStage begins a child span for one stage.
func (s *StageTracer) StartStage(ctx context.Context, run, stage string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, run+"."+stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("stage.name", stage)),
	)
}

// End finishes span, recording err when it is not nil.
func (s *StageTracer) End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
