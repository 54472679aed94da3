package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager starts and ends workflow spans.
type SpanManager interface {
	StartRunSpan(ctx context.Context, workflowID, runID string) (context.Context, trace.Span)
	StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span)
	EndSpan(span trace.Span, err error)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager using the global tracer provider.
func NewSpanManager() SpanManager {
	return &otelSpanManager{tracer: otel.Tracer(instrumentationName)}
}

func (m *otelSpanManager) StartRunSpan(ctx context.Context, workflowID, runID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "workflow.node."+nodeID,
		trace.WithAttributes(attribute.String("node.id", nodeID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
