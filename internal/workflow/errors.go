package workflow

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind identifies what went wrong while validating or running a workflow.
type Kind string

// Kinds raised when a definition is submitted.
const (
	KindMissingEntryPoint     Kind = "MissingEntryPoint"
	KindInvalidPromptVariable Kind = "InvalidPromptVariable"
	KindConflictingTransition Kind = "ConflictingTransition"
	KindDanglingNext          Kind = "DanglingNext"
	KindDanglingCondition     Kind = "DanglingCondition"
	KindCycleDetected         Kind = "CycleDetected"
)

// Kinds raised during a run.
const (
	KindNoWorkflowDefined         Kind = "NoWorkflowDefined"
	KindInvalidStartNode          Kind = "InvalidStartNode"
	KindRuntimeCycleDetected      Kind = "RuntimeCycleDetected"
	KindInvalidNodePrompt         Kind = "InvalidNodePrompt"
	KindUnexpectedConditionOutput Kind = "UnexpectedConditionOutput"
	KindUnknownNode               Kind = "UnknownNode"
	KindCompletionFailed          Kind = "CompletionFailed"
)

// Error is returned by Validate and Interpreter.Run. The populated fields
// depend on Kind.
type Error struct {
	Kind Kind
	// NodeID is the node being checked or executed.
	NodeID string
	// Target is the referenced node id for dangling or unknown references.
	Target string
	// Key is the condition key for DanglingCondition.
	Key string
	// Output is the completion text that matched no condition key.
	Output string
	// Variables are the unsupported placeholder names.
	Variables []string
	// Err is the completion client failure for CompletionFailed.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingEntryPoint:
		return "missing entry point: 'start' node"
	case KindInvalidPromptVariable:
		return fmt.Sprintf("invalid variable(s) in prompt of node '%s': %s", e.NodeID, strings.Join(e.Variables, ", "))
	case KindConflictingTransition:
		return fmt.Sprintf("node '%s' must not have both 'next' and 'condition'", e.NodeID)
	case KindDanglingNext:
		return fmt.Sprintf("node '%s' references unknown next node '%s'", e.NodeID, e.Target)
	case KindDanglingCondition:
		return fmt.Sprintf("node '%s' condition key '%s' references unknown node '%s'", e.NodeID, e.Key, e.Target)
	case KindCycleDetected:
		return "cycle detected in workflow graph"
	case KindNoWorkflowDefined:
		return "no workflow has been created yet"
	case KindInvalidStartNode:
		return "invalid or missing start node"
	case KindRuntimeCycleDetected:
		return fmt.Sprintf("cycle detected at node %q", e.NodeID)
	case KindInvalidNodePrompt:
		return fmt.Sprintf("invalid variables in prompt for node %s", e.NodeID)
	case KindUnexpectedConditionOutput:
		return fmt.Sprintf("unexpected condition output %q at node %s", e.Output, e.NodeID)
	case KindUnknownNode:
		return fmt.Sprintf("node with id %q not found", e.Target)
	case KindCompletionFailed:
		return fmt.Sprintf("completion failed at node %s: %v", e.NodeID, e.Err)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the completion failure, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status the error declares, or 0 when it declares
// none and the caller should fall back to a server error.
func (e *Error) Status() int {
	if e.Kind == KindCompletionFailed {
		return 0
	}
	return http.StatusBadRequest
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
