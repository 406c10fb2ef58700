// Package task defines the atomic unit of work scheduled by the engine: an
// identified action with a retry/timeout policy and a trigger rule deciding
// its eligibility from upstream outcomes.
package task

import (
	"context"
	"time"

	"github.com/operator13/spotify-datapipeline/internal/runctx"
)

// Output is what a completed action hands back to the engine: values to
// publish into the run context under the task's id, and, for branch tasks,
// the successor ids that survive pruning.
type Output struct {
	Values map[string]any
	Branch []string
}

// Action is the sole contract the engine imposes on external collaborators.
// The context carries the cancellation signal and, for tasks with a timeout,
// the per-attempt deadline; actions must honor it promptly.
type Action func(ctx context.Context, rc *runctx.Context) (*Output, error)

// Task is one vertex of the execution graph. The definition is immutable
// during a run; per-run status lives in the executor's status table.
type Task struct {
	// ID is unique within the graph. Group members carry their group path
	// as a dot-separated prefix, e.g. "load.load_to_postgres".
	ID string

	Action Action

	// Branch marks the task as a branch resolver. Only branch tasks may
	// return Output.Branch; their unchosen direct successors are skipped.
	Branch bool

	// Retries is the number of re-attempts after a failed execution.
	Retries int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// Timeout bounds each attempt; zero means unbounded.
	Timeout time.Duration

	Rule TriggerRule
}
