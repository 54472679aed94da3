package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "prompt-chaining/workflow"

// MetricsRecorder records workflow metrics.
type MetricsRecorder interface {
	// RecordNode records one node execution.
	RecordNode(ctx context.Context, nodeID string, duration time.Duration, err error)
	// RecordRun records a finished run and how many nodes it executed.
	RecordRun(ctx context.Context, success bool, duration time.Duration, nodes int)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeErrors     metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	runNodes       metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// NewMetricsRecorder returns a recorder backed by the global meter provider.
// It falls back to NoopMetrics when the instruments cannot be created.
func NewMetricsRecorder() MetricsRecorder {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	if defaultMetricsErr != nil {
		return NoopMetrics{}
	}
	return defaultMetrics
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(instrumentationName)

	nodeExecutions, err := meter.Int64Counter("workflow.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}
	nodeErrors, err := meter.Int64Counter("workflow.node.errors",
		metric.WithDescription("Number of failed node executions"),
	)
	if err != nil {
		return nil, err
	}
	nodeLatency, err := meter.Float64Histogram("workflow.node.latency_ms",
		metric.WithDescription("Node execution latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	runs, err := meter.Int64Counter("workflow.runs",
		metric.WithDescription("Number of workflow runs"),
	)
	if err != nil {
		return nil, err
	}
	runLatency, err := meter.Float64Histogram("workflow.run.latency_ms",
		metric.WithDescription("Workflow run latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	runNodes, err := meter.Int64Histogram("workflow.run.nodes",
		metric.WithDescription("Nodes executed per run"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeErrors:     nodeErrors,
		nodeLatency:    nodeLatency,
		runs:           runs,
		runLatency:     runLatency,
		runNodes:       runNodes,
	}, nil
}

func (m *otelMetrics) RecordNode(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, success bool, duration time.Duration, nodes int) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.runNodes.Record(ctx, int64(nodes), attrs)
}
