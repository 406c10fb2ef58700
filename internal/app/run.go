package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/executor"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

// Run executes the loaded pipeline to completion. It returns nil when every
// task finished green, and an error wrapping ErrTasksFailed when the run
// ended Failed or Canceled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	g, err := a.buildGraph(ctx)
	if err != nil {
		return fmt.Errorf("building execution graph: %w", err)
	}

	a.logger.Info("🚀 Starting pipeline run.",
		"pipeline", a.model.Pipeline.Name,
		"tasks", len(g.TaskIDs()),
		"workers", a.cfg.WorkerCount,
	)

	handle, err := executor.StartRun(ctx, g, runctx.New(), executor.Options{
		Workers: a.cfg.WorkerCount,
	})
	if err != nil {
		return fmt.Errorf("starting run: %w", err)
	}

	result := handle.Wait()
	a.logTaskSummary(result)

	switch result.Status {
	case executor.RunSuccess:
		a.logger.Info("🏁 Pipeline run finished.", "run_id", result.RunID, "status", result.Status.String())
		return nil
	case executor.RunCanceled:
		a.logger.Warn("🏁 Pipeline run canceled.", "run_id", result.RunID)
		return fmt.Errorf("%w: run canceled", ErrTasksFailed)
	default:
		a.logger.Error("🏁 Pipeline run failed.", "run_id", result.RunID, "failed_tasks", len(result.Errors))
		return fmt.Errorf("%w: %d task(s) failed", ErrTasksFailed, len(result.Errors))
	}
}

// logTaskSummary emits one line per task, then one per failure with its
// error, so the text log reads as a run report.
func (a *App) logTaskSummary(result executor.RunResult) {
	ids := make([]string, 0, len(result.TaskStatus))
	for id := range result.TaskStatus {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		st := result.TaskStatus[id]
		switch st {
		case task.Success:
			a.logger.Info("Task finished.", "task", id, "status", st.String())
		case task.Skipped:
			a.logger.Info("Task skipped.", "task", id)
		default:
			a.logger.Warn("Task did not succeed.", "task", id, "status", st.String())
		}
	}
	for _, err := range result.Errors {
		var te *executor.TaskError
		if errors.As(err, &te) {
			a.logger.Error("Task error.", "task", te.TaskID, "error", te.Err)
		} else {
			a.logger.Error("Task error.", "error", err)
		}
	}
}
