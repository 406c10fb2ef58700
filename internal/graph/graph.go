// Package graph holds the static definition of a pipeline: its tasks,
// groups, and directed dependency edges. A Graph is built once, validated
// once, and is then immutable and safely shared by concurrent runs.
package graph

import (
	"sort"
	"sync"

	"github.com/operator13/spotify-datapipeline/internal/task"
)

type edge struct {
	from, to string
}

// Graph is a collection of tasks and their dependencies, forming a DAG.
// Construction is concurrency-safe; after Validate succeeds the graph must
// not be mutated.
type Graph struct {
	mu     sync.RWMutex
	tasks  map[string]*task.Task
	groups map[string]*Group

	// edges are kept symbolic until Validate: an endpoint may name a task
	// or a group, and group endpoints fan out to entry/exit tasks.
	edges   []edge
	edgeSet map[edge]struct{}

	preds     map[string][]string
	succs     map[string][]string
	validated bool
}

// New creates an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		tasks:   make(map[string]*task.Task),
		groups:  make(map[string]*Group),
		edgeSet: make(map[edge]struct{}),
	}
}

// AddTask registers a task under its ID. Adding an empty or duplicate id,
// or an id colliding with a group name, is an error.
func (g *Graph) AddTask(t *task.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addTaskLocked(t)
}

func (g *Graph) addTaskLocked(t *task.Task) error {
	if t == nil || t.ID == "" {
		return invalidf(ErrUnknownTask, "task with empty id")
	}
	if _, ok := g.tasks[t.ID]; ok {
		return invalidf(ErrDuplicateTask, "%s", t.ID)
	}
	if _, ok := g.groups[t.ID]; ok {
		return invalidf(ErrDuplicateTask, "%s collides with a group name", t.ID)
	}
	g.tasks[t.ID] = t
	return nil
}

// AddEdge records a directed dependency from one endpoint to another. An
// endpoint may name a task or a group; group endpoints are flattened during
// Validate. Self-loops and duplicate edges are rejected immediately.
func (g *Graph) AddEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEdgeLocked(from, to)
}

func (g *Graph) addEdgeLocked(from, to string) error {
	if from == to {
		return invalidf(ErrSelfLoop, "%s -> %s", from, to)
	}
	e := edge{from: from, to: to}
	if _, ok := g.edgeSet[e]; ok {
		return invalidf(ErrDuplicateEdge, "%s -> %s", from, to)
	}
	g.edgeSet[e] = struct{}{}
	g.edges = append(g.edges, e)
	return nil
}

// Task returns the task registered under id, or nil.
func (g *Graph) Task(id string) *task.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tasks[id]
}

// TaskIDs returns all task ids in deterministic order.
func (g *Graph) TaskIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Predecessors returns the direct upstream task ids of id. Valid only
// after Validate.
func (g *Graph) Predecessors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.preds[id]
}

// Successors returns the direct downstream task ids of id. Valid only
// after Validate.
func (g *Graph) Successors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.succs[id]
}

// Validated reports whether Validate has succeeded on this graph.
func (g *Graph) Validated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validated
}
