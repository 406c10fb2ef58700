package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/graph"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

// run is the mutable state of one execution instance. The graph is shared
// read-only; everything else here is owned by this run.
type run struct {
	id     string
	g      *graph.Graph
	rc     *runctx.Context
	cancel context.CancelFunc

	states map[string]*taskState
	ready  chan *taskState
	wg     sync.WaitGroup
}

// taskState is the per-run record for one task.
type taskState struct {
	t *task.Task

	status atomic.Int32
	// err is written once, inside finishOnce, and read only after the run
	// completes.
	err error

	// depCount tracks predecessors that have not yet reached a terminal
	// state; the task enters the ready channel when it hits zero.
	depCount atomic.Int32

	// finishOnce guarantees the terminal status is assigned exactly once
	// per run, no matter which path (execution, pruning, cancellation)
	// resolves the task first.
	finishOnce sync.Once
}

func (st *taskState) Status() task.Status {
	return task.Status(st.status.Load())
}

// finish assigns the task's terminal status exactly once and unlocks
// successors whose predecessors are now all terminal.
func (r *run) finish(ctx context.Context, st *taskState, status task.Status, err error) {
	st.finishOnce.Do(func() {
		st.err = err
		st.status.Store(int32(status))

		logger := ctxlog.FromContext(ctx)
		if err != nil && status == task.Failed {
			logger.Error("Task failed.", "task", st.t.ID, "error", err)
		} else {
			logger.Debug("Task reached terminal state.", "task", st.t.ID, "status", status.String())
		}

		// Successor notification must complete before wg.Done: the run
		// goroutine closes the ready channel as soon as the last Done
		// lands, and a send pending behind it would hit a closed channel.
		for _, succID := range r.g.Successors(st.t.ID) {
			if succ := r.states[succID]; succ.depCount.Add(-1) == 0 {
				r.ready <- succ
			}
		}
		r.wg.Done()
	})
}

// worker is the processing loop of one pool member. Eligibility bookkeeping
// happens here, never inside an action: a blocked action occupies only its
// own worker.
func (r *run) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx).With("worker", workerID)
	logger.Debug("Worker started.")

	for st := range r.ready {
		// Branch-pruned tasks arrive already terminal.
		if st.Status().Terminal() {
			continue
		}

		if ctx.Err() != nil {
			r.finish(ctx, st, task.Skipped, ctx.Err())
			continue
		}

		switch decision, upstream := r.evalTrigger(st); decision {
		case decideUpstreamFailed:
			r.finish(ctx, st, task.UpstreamFailed, fmt.Errorf("upstream failed: %s", strings.Join(upstream, ", ")))
		case decideSkip:
			r.finish(ctx, st, task.Skipped, nil)
		case decideRun:
			r.runTask(ctx, st, logger.With("task", st.t.ID))
		}
	}
	logger.Debug("Worker finished.")
}

// runTask executes one eligible task end to end: action with retry and
// timeout, value publication, and branch pruning.
func (r *run) runTask(ctx context.Context, st *taskState, logger *slog.Logger) {
	t := st.t
	st.status.Store(int32(task.Running))
	logger.Debug("Task starting.")

	out, err := r.execute(ctx, st)
	if err != nil {
		// A run-level cancellation is not the task's failure: whatever was
		// in flight ends Skipped, same as the tasks that never started.
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			r.finish(ctx, st, task.Skipped, err)
			return
		}
		r.finish(ctx, st, task.Failed, err)
		return
	}
	if out == nil {
		out = &task.Output{}
	}

	if out.Branch != nil && !t.Branch {
		r.finish(ctx, st, task.Failed, fmt.Errorf("task %q returned branch targets but is not a branch resolver", t.ID))
		return
	}
	if t.Branch {
		if err := r.pruneBranches(ctx, st, out.Branch); err != nil {
			// An invalid branch decision poisons the whole run.
			r.finish(ctx, st, task.Failed, err)
			r.cancel()
			return
		}
	}

	for key, value := range out.Values {
		if err := r.rc.Publish(t.ID, key, value); err != nil {
			r.finish(ctx, st, task.Failed, err)
			return
		}
	}

	r.finish(ctx, st, task.Success, nil)
}

// execute invokes the task's action, retrying up to t.Retries times with a
// fixed delay. Each attempt gets its own timeout window; an attempt that
// outlives it is abandoned, not forcibly terminated.
func (r *run) execute(ctx context.Context, st *taskState) (*task.Output, error) {
	t := st.t
	logger := ctxlog.FromContext(ctx)

	attempt := 0
	var out *task.Output
	operation := func() error {
		attempt++
		attemptCtx := ctx
		if t.Timeout > 0 {
			var cancelAttempt context.CancelFunc
			attemptCtx, cancelAttempt = context.WithTimeout(ctx, t.Timeout)
			defer cancelAttempt()
		}

		o, err := r.invoke(attemptCtx, t)
		if err != nil {
			if ctx.Err() != nil {
				// The whole run is going down; stop retrying.
				return backoff.Permanent(ctx.Err())
			}
			if attemptCtx.Err() == context.DeadlineExceeded {
				err = fmt.Errorf("%w after %s: %v", ErrTimeout, t.Timeout, err)
			}
			logger.Warn("Task attempt failed.", "task", t.ID, "attempt", attempt, "error", err)
			return err
		}
		out = o
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.RetryDelay), uint64(t.Retries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return out, nil
}

type actionResult struct {
	out *task.Output
	err error
}

// invoke calls the action in its own goroutine and stops waiting once the
// attempt context ends. Actions are expected to honor cancellation; one
// that does not is abandoned and its eventual return discarded.
func (r *run) invoke(ctx context.Context, t *task.Task) (*task.Output, error) {
	ch := make(chan actionResult, 1)
	go func() {
		out, err := t.Action(ctx, r.rc)
		ch <- actionResult{out: out, err: err}
	}()

	select {
	case res := <-ch:
		return res.out, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pruneBranches resolves a branch decision: every direct successor not in
// the chosen set becomes Skipped immediately. Choosing an id outside the
// declared successor set is ErrInvalidBranchTarget.
func (r *run) pruneBranches(ctx context.Context, st *taskState, chosen []string) error {
	if len(chosen) == 0 {
		return fmt.Errorf("branch resolver %q returned no targets", st.t.ID)
	}

	successors := r.g.Successors(st.t.ID)
	succSet := make(map[string]struct{}, len(successors))
	for _, id := range successors {
		succSet[id] = struct{}{}
	}

	chosenSet := make(map[string]struct{}, len(chosen))
	for _, id := range chosen {
		if _, ok := succSet[id]; !ok {
			return fmt.Errorf("%w: %q is not a successor of %q", ErrInvalidBranchTarget, id, st.t.ID)
		}
		chosenSet[id] = struct{}{}
	}

	logger := ctxlog.FromContext(ctx)
	for _, succID := range successors {
		if _, ok := chosenSet[succID]; ok {
			continue
		}
		logger.Debug("Pruning unchosen branch.", "branch", st.t.ID, "skipped", succID)
		r.finish(ctx, r.states[succID], task.Skipped, nil)
	}
	return nil
}
