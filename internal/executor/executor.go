// Package executor runs a validated graph: it admits tasks as their
// predecessors reach terminal states, evaluates trigger rules, executes
// actions on a fixed-size worker pool with retry and timeout policy, and
// propagates branch-pruning and upstream-failure decisions downstream.
package executor

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/graph"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

const defaultWorkers = 4

// Options tune a single run.
type Options struct {
	// Workers is the size of the execution pool; zero means the default.
	Workers int
	// RunID overrides the generated run identifier, mainly for tests.
	RunID string
}

// RunStatus is the overall outcome of a run.
type RunStatus int

const (
	RunSuccess RunStatus = iota
	RunFailed
	RunCanceled
)

func (s RunStatus) String() string {
	switch s {
	case RunSuccess:
		return "success"
	case RunFailed:
		return "failed"
	case RunCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// RunResult is the terminal summary of a run: one status per task plus the
// errors of the tasks that failed.
type RunResult struct {
	RunID      string
	Status     RunStatus
	TaskStatus map[string]task.Status
	Errors     []error
}

// RunHandle is the caller's view of an in-flight run.
type RunHandle struct {
	runID  string
	cancel context.CancelFunc
	done   chan struct{}
	result RunResult
}

// RunID returns the unique identifier of this run.
func (h *RunHandle) RunID() string { return h.runID }

// Wait blocks until every task has reached a terminal state and returns
// the run's result.
func (h *RunHandle) Wait() RunResult {
	<-h.done
	return h.result
}

// Cancel signals in-flight actions to stop and resolves all not-yet-started
// tasks as Skipped. Retries in progress are abandoned.
func (h *RunHandle) Cancel() { h.cancel() }

// StartRun validates the graph and launches one execution instance against
// a fresh status table. The graph itself is shared read-only; concurrent
// runs of the same graph are safe.
func StartRun(ctx context.Context, g *graph.Graph, rc *runctx.Context, opts Options) (*RunHandle, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	logger := ctxlog.FromContext(ctx).With("run_id", runID)
	runCtx, cancel := context.WithCancel(ctxlog.WithLogger(ctx, logger))

	ids := g.TaskIDs()
	r := &run{
		id:     runID,
		g:      g,
		rc:     rc,
		cancel: cancel,
		states: make(map[string]*taskState, len(ids)),
		ready:  make(chan *taskState, len(ids)),
	}
	for _, id := range ids {
		st := &taskState{t: g.Task(id)}
		st.depCount.Store(int32(len(g.Predecessors(id))))
		r.states[id] = st
	}

	handle := &RunHandle{runID: runID, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer cancel()

		r.wg.Add(len(r.states))

		roots := 0
		for _, id := range ids {
			st := r.states[id]
			if st.depCount.Load() == 0 {
				r.ready <- st
				roots++
			}
		}
		logger.Debug("Run seeded.", "tasks", len(ids), "roots", roots, "workers", workers)

		for i := 0; i < workers; i++ {
			go r.worker(runCtx, i)
		}

		r.wg.Wait()
		close(r.ready)

		handle.result = r.collectResult(runCtx)
		logger.Info("Run finished.", "status", handle.result.Status.String())
		close(handle.done)
	}()

	return handle, nil
}

// collectResult builds the terminal summary once every task is terminal.
func (r *run) collectResult(ctx context.Context) RunResult {
	result := RunResult{
		RunID:      r.id,
		Status:     RunSuccess,
		TaskStatus: make(map[string]task.Status, len(r.states)),
	}

	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	failed := false
	for _, id := range ids {
		st := r.states[id]
		status := st.Status()
		result.TaskStatus[id] = status

		// Skip reasons (cancellation, pruning) are symptoms, not causes;
		// only genuine task failures surface as run errors.
		if status == task.Failed && st.err != nil {
			result.Errors = append(result.Errors, &TaskError{TaskID: id, Err: st.err})
			// A bad branch decision fails the run no matter where it sits.
			if errors.Is(st.err, ErrInvalidBranchTarget) {
				failed = true
			}
		}

		// The run outcome follows its sinks: an interior failure routed
		// into an absorbing sink (all_done, none_failed_min_one_success)
		// does not fail the run.
		if len(r.g.Successors(id)) == 0 && (status == task.Failed || status == task.UpstreamFailed) {
			failed = true
		}
	}

	switch {
	case failed:
		result.Status = RunFailed
	case ctx.Err() != nil:
		result.Status = RunCanceled
	}
	return result
}
