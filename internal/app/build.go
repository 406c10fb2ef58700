package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/operator13/spotify-datapipeline/internal/config"
	"github.com/operator13/spotify-datapipeline/internal/graph"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

type pendingEdge struct {
	from, to string
}

// buildGraph turns the loaded pipeline definition into a validated
// execution graph: tasks bound to their registered action handlers, groups
// flattened, depends_on references turned into edges.
func (a *App) buildGraph(ctx context.Context) (*graph.Graph, error) {
	g := graph.New()
	var edges []pendingEdge

	p := a.model.Pipeline
	if err := a.addTasks(g, nil, p.Tasks, &edges); err != nil {
		return nil, err
	}
	for _, grp := range p.Groups {
		if err := a.addGroup(g, nil, grp, &edges); err != nil {
			return nil, err
		}
	}

	for _, e := range edges {
		if err := g.AddEdge(e.from, e.to); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (a *App) addTasks(g *graph.Graph, parent *graph.Group, tasks []*config.Task, edges *[]pendingEdge) error {
	for _, ct := range tasks {
		t, err := a.buildTask(ct)
		if err != nil {
			return err
		}
		if parent == nil {
			err = g.AddTask(t)
		} else {
			// Group membership rewrites t.ID with the group path prefix.
			err = parent.AddTask(t)
		}
		if err != nil {
			return err
		}
		// depends_on names are absolute: full task ids or group paths.
		for _, dep := range ct.DependsOn {
			*edges = append(*edges, pendingEdge{from: dep, to: t.ID})
		}
	}
	return nil
}

func (a *App) addGroup(g *graph.Graph, parent *graph.Group, cg *config.Group, edges *[]pendingEdge) error {
	var grp *graph.Group
	if parent == nil {
		grp = g.Group(cg.Name)
	} else {
		grp = parent.Group(cg.Name)
	}
	if err := a.addTasks(g, grp, cg.Tasks, edges); err != nil {
		return err
	}
	for _, nested := range cg.Groups {
		if err := a.addGroup(g, grp, nested, edges); err != nil {
			return err
		}
	}
	return nil
}

// buildTask binds one configured task to its action handler, decoding the
// task's arguments and resolving its policy against the pipeline defaults.
func (a *App) buildTask(ct *config.Task) (*task.Task, error) {
	handler, ok := a.registry.Handler(ct.Action)
	if !ok {
		return nil, fmt.Errorf("task %q: unknown action %q", ct.Name, ct.Action)
	}

	var input any
	if handler.NewInput != nil {
		input = handler.NewInput()
		if diags := gohcl.DecodeBody(ct.Args, a.model.EvalContext, input); diags.HasErrors() {
			return nil, fmt.Errorf("task %q arguments: %w", ct.Name, diags)
		}
	}

	rule, err := task.ParseTriggerRule(ct.TriggerRule)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", ct.Name, err)
	}

	defaults := a.model.Pipeline.Defaults
	retries := defaults.Retries
	if ct.Retries != nil {
		retries = *ct.Retries
	}
	retryDelay := defaults.RetryDelay
	if ct.RetryDelay != nil {
		retryDelay = *ct.RetryDelay
	}
	timeout := defaults.Timeout
	if ct.Timeout != nil {
		timeout = *ct.Timeout
	}
	if retries < 0 {
		return nil, fmt.Errorf("task %q: retries must be non-negative", ct.Name)
	}
	if retryDelay < 0 || timeout < time.Duration(0) {
		return nil, fmt.Errorf("task %q: durations must be non-negative", ct.Name)
	}

	run := handler.Run
	return &task.Task{
		ID: ct.Name,
		Action: func(ctx context.Context, rc *runctx.Context) (*task.Output, error) {
			return run(ctx, rc, input)
		},
		Branch:     handler.Branch,
		Retries:    retries,
		RetryDelay: retryDelay,
		Timeout:    timeout,
		Rule:       rule,
	}, nil
}
