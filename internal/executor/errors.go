package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks a task attempt that exceeded its configured timeout.
	// Timeouts count as execution failures: each retry attempt gets a
	// fresh timeout window.
	ErrTimeout = errors.New("task timed out")

	// ErrInvalidBranchTarget means a branch resolver chose an id that is
	// not among its declared successors. This is fatal for the whole run
	// and never retried.
	ErrInvalidBranchTarget = errors.New("invalid branch target")
)

// TaskError attributes a terminal task failure to its task id.
type TaskError struct {
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
