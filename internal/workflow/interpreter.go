package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"prompt-chaining/backend/internal/observability"
	"prompt-chaining/backend/pkg/models"
)

// DefaultSystemPrompt is sent with every completion unless overridden.
const DefaultSystemPrompt = "You are a helpful assistant."

// Completer produces text for a prompt. Implementations own any retry
// policy; the interpreter calls each node exactly once.
type Completer interface {
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Logger is the subset of the application logger the interpreter uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Interpreter walks a workflow definition from its start node to a
// terminal node, calling the completer once per visited node.
// An Interpreter holds no per-run state and may be shared.
type Interpreter struct {
	completer    Completer
	systemPrompt string
	logger       Logger
	metrics      observability.MetricsRecorder
	spans        observability.SpanManager
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithSystemPrompt sets the system instruction sent with each completion.
func WithSystemPrompt(prompt string) Option {
	return func(i *Interpreter) {
		if prompt != "" {
			i.systemPrompt = prompt
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(i *Interpreter) {
		i.metrics = m
	}
}

// WithSpanManager sets the span manager.
func WithSpanManager(s observability.SpanManager) Option {
	return func(i *Interpreter) {
		i.spans = s
	}
}

// NewInterpreter creates an Interpreter that uses completer for every node.
func NewInterpreter(completer Completer, opts ...Option) *Interpreter {
	i := &Interpreter{
		completer:    completer,
		systemPrompt: DefaultSystemPrompt,
		logger:       nopLogger{},
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run executes def with the given input and returns the output of the last
// node. Any failure aborts the run and no partial output is returned.
func (i *Interpreter) Run(ctx context.Context, def *models.Workflow, input string) (result string, err error) {
	if def == nil {
		return "", &Error{Kind: KindNoWorkflowDefined}
	}

	index := def.NodeIndex()
	start, ok := index[models.EntryNodeID]
	if !ok || !strings.Contains(start.Prompt, placeholderInput) {
		return "", &Error{Kind: KindInvalidStartNode}
	}

	runID := uuid.New().String()
	began := time.Now()
	ctx, span := i.spans.StartRunSpan(ctx, def.ID, runID)
	visited := make(map[string]bool, len(index))
	current := &start

	i.logger.Info("workflow run starting", "run_id", runID, "workflow_id", def.ID)
	defer func() {
		i.metrics.RecordRun(ctx, err == nil, time.Since(began), len(visited))
		i.spans.EndSpan(span, err)
		if err != nil {
			i.logger.Error("workflow run failed", "run_id", runID, "nodes", len(visited), "error", err)
			return
		}
		i.logger.Info("workflow run completed", "run_id", runID, "nodes", len(visited),
			"duration_ms", time.Since(began).Milliseconds())
	}()

	lastOutput := ""
	for current != nil {
		node := *current
		if visited[node.ID] {
			return "", &Error{Kind: KindRuntimeCycleDetected, NodeID: node.ID}
		}
		visited[node.ID] = true

		if !IsPromptValid(node.Prompt) {
			return "", &Error{Kind: KindInvalidNodePrompt, NodeID: node.ID}
		}

		lastOutput, err = i.execute(ctx, node, Interpolate(node.Prompt, input, lastOutput))
		if err != nil {
			return "", err
		}

		current, err = next(index, node, lastOutput)
		if err != nil {
			return "", err
		}
	}

	return lastOutput, nil
}

// execute runs the completion for one node and returns the trimmed text.
func (i *Interpreter) execute(ctx context.Context, node models.WorkflowNode, prompt string) (string, error) {
	ctx, span := i.spans.StartNodeSpan(ctx, node.ID)
	began := time.Now()
	i.logger.Debug("node starting", "node_id", node.ID)

	text, err := i.completer.Complete(ctx, prompt, i.systemPrompt)
	if err != nil {
		err = &Error{Kind: KindCompletionFailed, NodeID: node.ID, Err: err}
	}
	i.metrics.RecordNode(ctx, node.ID, time.Since(began), err)
	i.spans.EndSpan(span, err)
	if err != nil {
		return "", err
	}

	i.logger.Debug("node completed", "node_id", node.ID, "duration_ms", time.Since(began).Milliseconds())
	return strings.TrimSpace(text), nil
}

// next resolves the node that follows node given its output. A nil node
// with a nil error means the run is finished.
func next(index map[string]models.WorkflowNode, node models.WorkflowNode, output string) (*models.WorkflowNode, error) {
	var target string
	switch {
	case node.HasCondition():
		var ok bool
		target, ok = node.Condition[strings.TrimSpace(output)]
		if !ok {
			return nil, &Error{Kind: KindUnexpectedConditionOutput, NodeID: node.ID, Output: output}
		}
	case node.HasNext():
		target = node.Next
	default:
		return nil, nil
	}

	resolved, ok := index[target]
	if !ok {
		return nil, &Error{Kind: KindUnknownNode, NodeID: node.ID, Target: target}
	}
	return &resolved, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
