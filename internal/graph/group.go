package graph

import "github.com/operator13/spotify-datapipeline/internal/task"

// Group is a named sub-graph used purely for composition: member tasks get
// the group path as an id prefix, and edges touching the group boundary fan
// into its entry tasks or out of its exit tasks. At execution time a group
// is fully flattened; the engine never schedules it as a unit.
type Group struct {
	g    *Graph
	path string
	// children holds the ids of direct members: full task ids and nested
	// group paths.
	children []string
}

// Group creates (or returns) a top-level group with the given name.
func (g *Graph) Group(name string) *Group {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.groupLocked(nil, name)
}

// Group creates (or returns) a nested group inside gr.
func (gr *Group) Group(name string) *Group {
	gr.g.mu.Lock()
	defer gr.g.mu.Unlock()
	return gr.g.groupLocked(gr, name)
}

func (g *Graph) groupLocked(parent *Group, name string) *Group {
	path := name
	if parent != nil {
		path = parent.path + "." + name
	}
	if existing, ok := g.groups[path]; ok {
		return existing
	}
	gr := &Group{g: g, path: path}
	g.groups[path] = gr
	if parent != nil {
		parent.children = append(parent.children, path)
	}
	return gr
}

// AddTask registers a task as a member of the group. The task's ID is
// rewritten to carry the group path prefix.
func (gr *Group) AddTask(t *task.Task) error {
	gr.g.mu.Lock()
	defer gr.g.mu.Unlock()

	t.ID = gr.path + "." + t.ID
	if err := gr.g.addTaskLocked(t); err != nil {
		return err
	}
	gr.children = append(gr.children, t.ID)
	return nil
}

// AddEdge records a dependency between two direct members of the group,
// named without the group prefix.
func (gr *Group) AddEdge(from, to string) error {
	gr.g.mu.Lock()
	defer gr.g.mu.Unlock()
	return gr.g.addEdgeLocked(gr.path+"."+from, gr.path+"."+to)
}

// Path returns the full dot-separated group path.
func (gr *Group) Path() string {
	return gr.path
}

// entryMembers are direct children with no incoming edge from a sibling;
// exitMembers are those with no outgoing edge to a sibling.
func (gr *Group) entryMembers() []string {
	return gr.boundaryMembers(func(e edge, child string) bool { return e.to == child })
}

func (gr *Group) exitMembers() []string {
	return gr.boundaryMembers(func(e edge, child string) bool { return e.from == child })
}

func (gr *Group) boundaryMembers(touches func(edge, string) bool) []string {
	siblings := make(map[string]struct{}, len(gr.children))
	for _, c := range gr.children {
		siblings[c] = struct{}{}
	}
	var out []string
	for _, child := range gr.children {
		interior := false
		for e := range gr.g.edgeSet {
			_, fromSib := siblings[e.from]
			_, toSib := siblings[e.to]
			if fromSib && toSib && touches(e, child) {
				interior = true
				break
			}
		}
		if !interior {
			out = append(out, child)
		}
	}
	return out
}
