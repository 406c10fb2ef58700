package executor

import "github.com/operator13/spotify-datapipeline/internal/task"

// decision is the outcome of evaluating a trigger rule against the
// terminal statuses of a task's direct predecessors.
type decision int

const (
	decideRun decision = iota
	decideSkip
	decideUpstreamFailed
)

// evalRule applies a trigger rule to predecessor terminal statuses. It must
// only be called once every predecessor is terminal; with the dep-count
// admission that holds by construction. A task with no predecessors always
// runs.
func evalRule(rule task.TriggerRule, preds []task.Status) decision {
	var successes, skips, failures int
	for _, s := range preds {
		switch s {
		case task.Success:
			successes++
		case task.Skipped:
			skips++
		case task.Failed, task.UpstreamFailed:
			failures++
		}
	}

	switch rule {
	case task.AllDone:
		return decideRun

	case task.OneSuccess:
		if len(preds) == 0 || successes > 0 {
			return decideRun
		}
		return decideSkip

	case task.NoneFailedMinOneSuccess:
		if failures > 0 {
			return decideUpstreamFailed
		}
		if len(preds) == 0 || successes > 0 {
			return decideRun
		}
		return decideSkip

	default: // AllSuccess
		if failures > 0 {
			return decideUpstreamFailed
		}
		if skips > 0 {
			return decideSkip
		}
		return decideRun
	}
}

// evalTrigger evaluates st's rule against its predecessors and, for the
// upstream-failed decision, names the predecessors that caused it.
func (r *run) evalTrigger(st *taskState) (decision, []string) {
	predIDs := r.g.Predecessors(st.t.ID)

	statuses := make([]task.Status, len(predIDs))
	var failedIDs []string
	for i, predID := range predIDs {
		statuses[i] = r.states[predID].Status()
		if statuses[i] == task.Failed || statuses[i] == task.UpstreamFailed {
			failedIDs = append(failedIDs, predID)
		}
	}

	d := evalRule(st.t.Rule, statuses)
	if d != decideUpstreamFailed {
		failedIDs = nil
	}
	return d, failedIDs
}
