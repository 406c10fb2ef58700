package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrCycleDetected means a depth-first traversal found a back-edge.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrUnknownTask means an edge names a task or group not in the graph.
	ErrUnknownTask = errors.New("unknown task reference")
	// ErrDuplicateTask means a task id was added twice.
	ErrDuplicateTask = errors.New("duplicate task")
	// ErrDuplicateEdge means the same directed edge was added twice.
	ErrDuplicateEdge = errors.New("duplicate edge")
	// ErrSelfLoop means an edge references its own source.
	ErrSelfLoop = errors.New("self-referential edge")
)

// ValidationError wraps a graph construction or validation failure. It is
// fatal: no task of an invalid graph is ever executed.
type ValidationError struct {
	Kind   error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalidf(kind error, format string, args ...any) error {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
