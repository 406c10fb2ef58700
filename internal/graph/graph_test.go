package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operator13/spotify-datapipeline/internal/task"
)

func newTask(id string) *task.Task {
	return &task.Task{ID: id}
}

func TestAddTask(t *testing.T) {
	g := New()

	require.NoError(t, g.AddTask(newTask("a")))
	assert.NotNil(t, g.Task("a"))

	err := g.AddTask(newTask("a"))
	require.ErrorIs(t, err, ErrDuplicateTask)

	err = g.AddTask(newTask(""))
	assert.Error(t, err)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddTask(newTask("a")))
		require.NoError(t, g.AddTask(newTask("b")))

		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.Validate())

		assert.Equal(t, []string{"a"}, g.Predecessors("b"))
		assert.Equal(t, []string{"b"}, g.Successors("a"))
	})

	t.Run("self loop rejected", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddTask(newTask("a")))
		err := g.AddEdge("a", "a")
		require.ErrorIs(t, err, ErrSelfLoop)
	})

	t.Run("duplicate edge rejected", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddTask(newTask("a")))
		require.NoError(t, g.AddTask(newTask("b")))
		require.NoError(t, g.AddEdge("a", "b"))
		err := g.AddEdge("a", "b")
		require.ErrorIs(t, err, ErrDuplicateEdge)
	})
}

func TestValidateUnknownReference(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(newTask("a")))
	require.NoError(t, g.AddEdge("a", "ghost"))

	err := g.Validate()
	require.ErrorIs(t, err, ErrUnknownTask)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "ghost")
}

func TestValidateCycleDetected(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.AddTask(newTask(id)))
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("c", "a"))

	err := g.Validate()
	require.ErrorIs(t, err, ErrCycleDetected)
}

func TestValidateAcyclicDiamond(t *testing.T) {
	g := New()
	for _, id := range []string{"start", "left", "right", "end"} {
		require.NoError(t, g.AddTask(newTask(id)))
	}
	require.NoError(t, g.AddEdge("start", "left"))
	require.NoError(t, g.AddEdge("start", "right"))
	require.NoError(t, g.AddEdge("left", "end"))
	require.NoError(t, g.AddEdge("right", "end"))

	require.NoError(t, g.Validate())
	assert.True(t, g.Validated())
	assert.ElementsMatch(t, []string{"left", "right"}, g.Predecessors("end"))
	assert.ElementsMatch(t, []string{"left", "right"}, g.Successors("start"))
}

func TestValidateIsIdempotent(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(newTask("a")))
	require.NoError(t, g.Validate())
	require.NoError(t, g.Validate())
}

func TestGroupFlattening(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(newTask("start")))
	require.NoError(t, g.AddTask(newTask("end")))

	load := g.Group("load")
	require.NoError(t, load.AddTask(newTask("ensure_schema")))
	require.NoError(t, load.AddTask(newTask("load_data")))
	require.NoError(t, load.AddEdge("ensure_schema", "load_data"))

	require.NoError(t, g.AddEdge("start", "load"))
	require.NoError(t, g.AddEdge("load", "end"))
	require.NoError(t, g.Validate())

	// Edge into the group lands on its entry task, edge out leaves from
	// its exit task.
	assert.Equal(t, []string{"load.ensure_schema"}, g.Successors("start"))
	assert.Equal(t, []string{"load.load_data"}, g.Predecessors("end"))
	assert.Equal(t, []string{"load.load_data"}, g.Successors("load.ensure_schema"))
}

func TestEdgeToEmptyGroupIsRejected(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(newTask("start")))
	g.Group("empty")
	require.NoError(t, g.AddEdge("start", "empty"))

	err := g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.Contains(t, err.Error(), "empty")
}

func TestGroupWithParallelMembers(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(newTask("gate")))
	require.NoError(t, g.AddTask(newTask("end")))

	reporting := g.Group("reporting")
	require.NoError(t, reporting.AddTask(newTask("dq_report")))
	require.NoError(t, reporting.AddTask(newTask("docs")))

	require.NoError(t, g.AddEdge("gate", "reporting"))
	require.NoError(t, g.AddEdge("reporting", "end"))
	require.NoError(t, g.Validate())

	// No interior edges: every member is both entry and exit.
	assert.ElementsMatch(t, []string{"reporting.dq_report", "reporting.docs"}, g.Successors("gate"))
	assert.ElementsMatch(t, []string{"reporting.dq_report", "reporting.docs"}, g.Predecessors("end"))
}

func TestNestedGroups(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTask(newTask("start")))

	outer := g.Group("transform")
	inner := outer.Group("staging")
	require.NoError(t, inner.AddTask(newTask("run")))

	require.NoError(t, g.AddEdge("start", "transform"))
	require.NoError(t, g.Validate())

	assert.Equal(t, []string{"transform.staging.run"}, g.Successors("start"))
}

func TestCycleThroughGroups(t *testing.T) {
	g := New()
	grp := g.Group("grp")
	require.NoError(t, grp.AddTask(newTask("a")))
	require.NoError(t, g.AddTask(newTask("b")))

	require.NoError(t, g.AddEdge("grp", "b"))
	require.NoError(t, g.AddEdge("b", "grp"))

	err := g.Validate()
	require.ErrorIs(t, err, ErrCycleDetected)
}
