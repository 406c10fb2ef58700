package graph

import "sort"

// Validate flattens groups into concrete task-to-task edges, checks every
// edge endpoint resolves to a known task or group, and rejects cycles. It
// must succeed once before any run starts; it is idempotent.
func (g *Graph) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.validated {
		return nil
	}

	predSet := make(map[string]map[string]struct{}, len(g.tasks))
	succSet := make(map[string]map[string]struct{}, len(g.tasks))

	for _, e := range g.edges {
		sources, err := g.expandEndpoint(e.from, true)
		if err != nil {
			return err
		}
		targets, err := g.expandEndpoint(e.to, false)
		if err != nil {
			return err
		}
		for _, s := range sources {
			for _, t := range targets {
				if s == t {
					return invalidf(ErrSelfLoop, "group edge %s -> %s collapses onto task %s", e.from, e.to, s)
				}
				addEdge(succSet, s, t)
				addEdge(predSet, t, s)
			}
		}
	}

	if err := g.detectCycles(succSet); err != nil {
		return err
	}

	g.preds = sortedAdjacency(predSet)
	g.succs = sortedAdjacency(succSet)
	g.validated = true
	return nil
}

// expandEndpoint resolves an edge endpoint to concrete task ids. A task
// resolves to itself; a group resolves to its exit tasks when used as a
// source and its entry tasks when used as a target.
func (g *Graph) expandEndpoint(id string, asSource bool) ([]string, error) {
	if _, ok := g.tasks[id]; ok {
		return []string{id}, nil
	}
	gr, ok := g.groups[id]
	if !ok {
		return nil, invalidf(ErrUnknownTask, "%s", id)
	}

	var members []string
	if asSource {
		members = gr.exitMembers()
	} else {
		members = gr.entryMembers()
	}
	var out []string
	for _, m := range members {
		expanded, err := g.expandEndpoint(m, asSource)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	if len(out) == 0 {
		// An edge touching an empty group would silently vanish.
		return nil, invalidf(ErrUnknownTask, "group %q has no member tasks to anchor an edge", id)
	}
	return out, nil
}

// detectCycles runs the classic three-color depth-first search over the
// flattened successor relation.
func (g *Graph) detectCycles(succSet map[string]map[string]struct{}) error {
	permanent := make(map[string]bool, len(g.tasks))
	temporary := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			// Already in the recursion stack: a back-edge.
			return invalidf(ErrCycleDetected, "involving task %q", id)
		}
		temporary[id] = true
		for _, succ := range sortedKeys(succSet[id]) {
			if err := visit(succ); err != nil {
				return err
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for _, id := range sortedKeys(asSet(g.tasks)) {
		if !permanent[id] {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func addEdge(adj map[string]map[string]struct{}, from, to string) {
	if adj[from] == nil {
		adj[from] = make(map[string]struct{})
	}
	adj[from][to] = struct{}{}
}

func sortedAdjacency(adj map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(adj))
	for id, set := range adj {
		out[id] = sortedKeys(set)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asSet[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
