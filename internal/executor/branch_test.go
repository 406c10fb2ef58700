package executor

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operator13/spotify-datapipeline/internal/graph"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

func chooseAction(targets ...string) task.Action {
	return func(ctx context.Context, rc *runctx.Context) (*task.Output, error) {
		return &task.Output{Branch: targets}, nil
	}
}

func TestBranchPruning(t *testing.T) {
	var ranA, ranB, ranAfterB atomic.Bool
	mark := func(flag *atomic.Bool) task.Action {
		return func(ctx context.Context, rc *runctx.Context) (*task.Output, error) {
			flag.Store(true)
			return nil, nil
		}
	}

	g := graph.New()
	require.NoError(t, g.AddTask(&task.Task{ID: "resolver", Action: chooseAction("a"), Branch: true}))
	require.NoError(t, g.AddTask(&task.Task{ID: "a", Action: mark(&ranA)}))
	require.NoError(t, g.AddTask(&task.Task{ID: "b", Action: mark(&ranB)}))
	require.NoError(t, g.AddTask(&task.Task{ID: "after_b", Action: mark(&ranAfterB)}))
	require.NoError(t, g.AddEdge("resolver", "a"))
	require.NoError(t, g.AddEdge("resolver", "b"))
	require.NoError(t, g.AddEdge("b", "after_b"))

	res := runGraph(t, g)

	assert.Equal(t, RunSuccess, res.Status)
	assert.Equal(t, task.Success, res.TaskStatus["resolver"])
	assert.Equal(t, task.Success, res.TaskStatus["a"])
	assert.Equal(t, task.Skipped, res.TaskStatus["b"])
	// Pruning cascades: everything reachable only through b is skipped too.
	assert.Equal(t, task.Skipped, res.TaskStatus["after_b"])

	assert.True(t, ranA.Load())
	assert.False(t, ranB.Load())
	assert.False(t, ranAfterB.Load())
}

func TestBranchChoosingMultipleTargets(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddTask(&task.Task{ID: "resolver", Action: chooseAction("a", "b"), Branch: true}))
	addTask(t, g, "a", okAction)
	addTask(t, g, "b", okAction)
	addTask(t, g, "c", okAction)
	require.NoError(t, g.AddEdge("resolver", "a"))
	require.NoError(t, g.AddEdge("resolver", "b"))
	require.NoError(t, g.AddEdge("resolver", "c"))

	res := runGraph(t, g)

	assert.Equal(t, task.Success, res.TaskStatus["a"])
	assert.Equal(t, task.Success, res.TaskStatus["b"])
	assert.Equal(t, task.Skipped, res.TaskStatus["c"])
}

func TestInvalidBranchTargetIsFatal(t *testing.T) {
	var invocations atomic.Int32
	badResolver := func(ctx context.Context, rc *runctx.Context) (*task.Output, error) {
		invocations.Add(1)
		return &task.Output{Branch: []string{"nowhere"}}, nil
	}

	g := graph.New()
	require.NoError(t, g.AddTask(&task.Task{
		ID:      "resolver",
		Action:  badResolver,
		Branch:  true,
		Retries: 3, // must not be consumed: invalid targets are fatal
	}))
	addTask(t, g, "a", okAction)
	require.NoError(t, g.AddEdge("resolver", "a"))

	res := runGraph(t, g)

	assert.Equal(t, RunFailed, res.Status)
	assert.Equal(t, task.Failed, res.TaskStatus["resolver"])
	assert.Equal(t, int32(1), invocations.Load())

	require.NotEmpty(t, res.Errors)
	assert.ErrorIs(t, res.Errors[0], ErrInvalidBranchTarget)
}

func TestBranchResolverMustChooseSomething(t *testing.T) {
	empty := func(ctx context.Context, rc *runctx.Context) (*task.Output, error) {
		return &task.Output{}, nil
	}

	g := graph.New()
	require.NoError(t, g.AddTask(&task.Task{ID: "resolver", Action: empty, Branch: true}))
	addTask(t, g, "a", okAction)
	require.NoError(t, g.AddEdge("resolver", "a"))

	res := runGraph(t, g)
	assert.Equal(t, task.Failed, res.TaskStatus["resolver"])
}

// TestQualityGateScenario mirrors the etl pipeline shape: a gate downstream
// of a failing upstream resolves upstream_failed without running, both of
// its landing pads skip, and the terminal report still turns green off the
// healthy path.
func TestQualityGateScenario(t *testing.T) {
	var gateRan atomic.Bool
	gate := func(ctx context.Context, rc *runctx.Context) (*task.Output, error) {
		gateRan.Store(true)
		return &task.Output{Branch: []string{"passed"}}, nil
	}

	g := graph.New()
	addTask(t, g, "start", okAction)
	addTask(t, g, "t1", okAction)
	addTask(t, g, "t2", failAction)
	require.NoError(t, g.AddTask(&task.Task{ID: "gate", Action: gate, Branch: true}))
	require.NoError(t, g.AddTask(&task.Task{ID: "passed", Action: okAction, Rule: task.OneSuccess}))
	require.NoError(t, g.AddTask(&task.Task{ID: "failed", Action: okAction, Rule: task.OneSuccess}))
	require.NoError(t, g.AddTask(&task.Task{ID: "end", Action: okAction, Rule: task.NoneFailedMinOneSuccess}))

	require.NoError(t, g.AddEdge("start", "t1"))
	require.NoError(t, g.AddEdge("start", "t2"))
	require.NoError(t, g.AddEdge("t1", "gate"))
	require.NoError(t, g.AddEdge("t2", "gate"))
	require.NoError(t, g.AddEdge("gate", "passed"))
	require.NoError(t, g.AddEdge("gate", "failed"))
	require.NoError(t, g.AddEdge("passed", "end"))
	require.NoError(t, g.AddEdge("failed", "end"))
	require.NoError(t, g.AddEdge("t1", "end"))

	res := runGraph(t, g)

	assert.Equal(t, task.Failed, res.TaskStatus["t2"])
	assert.Equal(t, task.UpstreamFailed, res.TaskStatus["gate"])
	assert.False(t, gateRan.Load(), "gate must not run under all_success with a failed upstream")

	// No success among the gate's landing pads' predecessors, so they skip.
	assert.Equal(t, task.Skipped, res.TaskStatus["passed"])
	assert.Equal(t, task.Skipped, res.TaskStatus["failed"])

	// end: no failed predecessor (t1 succeeded, pads skipped) and at least
	// one success, so the run still completes green.
	assert.Equal(t, task.Success, res.TaskStatus["end"])
	assert.Equal(t, RunSuccess, res.Status)
}

func TestBranchFollowedByHealthyPath(t *testing.T) {
	gate := func(ctx context.Context, rc *runctx.Context) (*task.Output, error) {
		passed, err := rc.ReadString("test", "verdict")
		if err != nil {
			return nil, err
		}
		if passed == "ok" {
			return &task.Output{Branch: []string{"report"}}, nil
		}
		return &task.Output{Branch: []string{"alert"}}, nil
	}
	verdict := func(ctx context.Context, rc *runctx.Context) (*task.Output, error) {
		return &task.Output{Values: map[string]any{"verdict": "ok"}}, nil
	}

	g := graph.New()
	require.NoError(t, g.AddTask(&task.Task{ID: "test", Action: verdict}))
	require.NoError(t, g.AddTask(&task.Task{ID: "gate", Action: gate, Branch: true}))
	addTask(t, g, "report", okAction)
	addTask(t, g, "alert", okAction)
	require.NoError(t, g.AddTask(&task.Task{ID: "end", Action: okAction, Rule: task.NoneFailedMinOneSuccess}))
	require.NoError(t, g.AddEdge("test", "gate"))
	require.NoError(t, g.AddEdge("gate", "report"))
	require.NoError(t, g.AddEdge("gate", "alert"))
	require.NoError(t, g.AddEdge("report", "end"))
	require.NoError(t, g.AddEdge("alert", "end"))

	res := runGraph(t, g)

	assert.Equal(t, RunSuccess, res.Status)
	assert.Equal(t, task.Success, res.TaskStatus["report"])
	assert.Equal(t, task.Skipped, res.TaskStatus["alert"])
	assert.Equal(t, task.Success, res.TaskStatus["end"])
}

// A pruned task whose other predecessor finishes last exercises the
// shutdown ordering: that predecessor drives the pruned task's
// dependency count to zero and pushes it onto the ready channel while
// the run goroutine may already be tearing the channel down. Repeated
// runs make the interleaving likely enough for the race detector.
func TestPrunedTaskWithSlowPredecessorShutsDownCleanly(t *testing.T) {
	for i := 0; i < 200; i++ {
		slow := func(ctx context.Context, rc *runctx.Context) (*task.Output, error) {
			runtime.Gosched()
			return &task.Output{}, nil
		}

		g := graph.New()
		require.NoError(t, g.AddTask(&task.Task{ID: "resolver", Action: chooseAction("a"), Branch: true}))
		addTask(t, g, "a", okAction)
		require.NoError(t, g.AddTask(&task.Task{ID: "b", Action: okAction, Rule: task.AllDone}))
		addTask(t, g, "t", slow)

		require.NoError(t, g.AddEdge("resolver", "a"))
		require.NoError(t, g.AddEdge("resolver", "b"))
		require.NoError(t, g.AddEdge("t", "b"))

		res := runGraph(t, g)

		assert.Equal(t, RunSuccess, res.Status)
		assert.Equal(t, task.Skipped, res.TaskStatus["b"])
		assert.Equal(t, task.Success, res.TaskStatus["t"])
	}
}

func TestCascadeOfSkipsReachesDeepDescendants(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddTask(&task.Task{ID: "resolver", Action: chooseAction("keep"), Branch: true}))
	addTask(t, g, "keep", okAction)
	addTask(t, g, "drop", okAction)
	addTask(t, g, "drop_child", okAction)
	addTask(t, g, "drop_grandchild", okAction)
	require.NoError(t, g.AddTask(&task.Task{ID: "merge", Action: okAction, Rule: task.OneSuccess}))

	require.NoError(t, g.AddEdge("resolver", "keep"))
	require.NoError(t, g.AddEdge("resolver", "drop"))
	require.NoError(t, g.AddEdge("drop", "drop_child"))
	require.NoError(t, g.AddEdge("drop_child", "drop_grandchild"))
	require.NoError(t, g.AddEdge("drop_grandchild", "merge"))
	require.NoError(t, g.AddEdge("keep", "merge"))

	res := runGraph(t, g)

	assert.Equal(t, RunSuccess, res.Status)
	assert.Equal(t, task.Skipped, res.TaskStatus["drop"])
	assert.Equal(t, task.Skipped, res.TaskStatus["drop_child"])
	assert.Equal(t, task.Skipped, res.TaskStatus["drop_grandchild"])
	// merge still runs: one of its upstream paths succeeded.
	assert.Equal(t, task.Success, res.TaskStatus["merge"])
}
