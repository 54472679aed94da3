package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics discards all measurements.
type NoopMetrics struct{}

func (NoopMetrics) RecordNode(context.Context, string, time.Duration, error) {}
func (NoopMetrics) RecordRun(context.Context, bool, time.Duration, int)     {}

// NoopSpanManager creates non-recording spans.
type NoopSpanManager struct{}

var noopTracer = noop.NewTracerProvider().Tracer("")

func (NoopSpanManager) StartRunSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return noopTracer.Start(ctx, "workflow.run")
}

func (NoopSpanManager) StartNodeSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return noopTracer.Start(ctx, "workflow.node")
}

func (NoopSpanManager) EndSpan(span trace.Span, _ error) {
	span.End()
}
