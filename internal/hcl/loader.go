// Package hcl implements the HCL loader for pipeline definitions. It
// parses `pipeline` blocks into the format-agnostic config model, leaving
// action-specific arguments as raw bodies for the registry to decode.
package hcl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/operator13/spotify-datapipeline/internal/config"
	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
)

// Loader reads pipeline definitions from .hcl files.
type Loader struct{}

// NewLoader returns a concrete HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

type fileSchema struct {
	Pipelines []*pipelineSchema `hcl:"pipeline,block"`
}

type pipelineSchema struct {
	Name     string          `hcl:"name,label"`
	Defaults *defaultsSchema `hcl:"defaults,block"`
	Tasks    []*taskSchema   `hcl:"task,block"`
	Groups   []*groupSchema  `hcl:"group,block"`
}

type defaultsSchema struct {
	Retries    *int    `hcl:"retries,optional"`
	RetryDelay *string `hcl:"retry_delay,optional"`
	Timeout    *string `hcl:"timeout,optional"`
}

type taskSchema struct {
	Name        string   `hcl:"name,label"`
	Action      string   `hcl:"action"`
	DependsOn   []string `hcl:"depends_on,optional"`
	TriggerRule *string  `hcl:"trigger_rule,optional"`
	Retries     *int     `hcl:"retries,optional"`
	RetryDelay  *string  `hcl:"retry_delay,optional"`
	Timeout     *string  `hcl:"timeout,optional"`
	Args        hcl.Body `hcl:",remain"`
}

type groupSchema struct {
	Name   string         `hcl:"name,label"`
	Tasks  []*taskSchema  `hcl:"task,block"`
	Groups []*groupSchema `hcl:"group,block"`
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}
	return l.translate(ctx, file)
}

// LoadBytes parses an in-memory definition; the filename only labels
// diagnostics.
func (l *Loader) LoadBytes(ctx context.Context, src []byte, filename string) (*config.Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", filename, diags)
	}
	return l.translate(ctx, file)
}

func (l *Loader) translate(ctx context.Context, file *hcl.File) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	evalCtx := buildEvalContext()

	var root fileSchema
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decoding pipeline definition: %w", diags)
	}
	if len(root.Pipelines) != 1 {
		return nil, fmt.Errorf("expected exactly one pipeline block, found %d", len(root.Pipelines))
	}

	p := root.Pipelines[0]
	pipeline := &config.Pipeline{Name: p.Name}

	if p.Defaults != nil {
		if p.Defaults.Retries != nil {
			pipeline.Defaults.Retries = *p.Defaults.Retries
		}
		var err error
		if pipeline.Defaults.RetryDelay, err = parseDuration(p.Defaults.RetryDelay); err != nil {
			return nil, fmt.Errorf("defaults: %w", err)
		}
		if pipeline.Defaults.Timeout, err = parseDuration(p.Defaults.Timeout); err != nil {
			return nil, fmt.Errorf("defaults: %w", err)
		}
	}

	var err error
	if pipeline.Tasks, err = translateTasks(p.Tasks); err != nil {
		return nil, err
	}
	if pipeline.Groups, err = translateGroups(p.Groups); err != nil {
		return nil, err
	}

	logger.Debug("Pipeline definition translated.", "pipeline", p.Name,
		"tasks", len(pipeline.Tasks), "groups", len(pipeline.Groups))
	return &config.Model{Pipeline: pipeline, EvalContext: evalCtx}, nil
}

func translateTasks(in []*taskSchema) ([]*config.Task, error) {
	out := make([]*config.Task, 0, len(in))
	for _, t := range in {
		ct := &config.Task{
			Name:      t.Name,
			Action:    t.Action,
			DependsOn: t.DependsOn,
			Retries:   t.Retries,
			Args:      t.Args,
		}
		if t.TriggerRule != nil {
			ct.TriggerRule = *t.TriggerRule
		}
		for _, d := range []struct {
			src *string
			dst **time.Duration
		}{
			{t.RetryDelay, &ct.RetryDelay},
			{t.Timeout, &ct.Timeout},
		} {
			if d.src == nil {
				continue
			}
			parsed, err := parseDuration(d.src)
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", t.Name, err)
			}
			*d.dst = &parsed
		}
		out = append(out, ct)
	}
	return out, nil
}

func translateGroups(in []*groupSchema) ([]*config.Group, error) {
	out := make([]*config.Group, 0, len(in))
	for _, g := range in {
		tasks, err := translateTasks(g.Tasks)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
		nested, err := translateGroups(g.Groups)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
		out = append(out, &config.Group{Name: g.Name, Tasks: tasks, Groups: nested})
	}
	return out, nil
}

func parseDuration(s *string) (time.Duration, error) {
	if s == nil || *s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", *s, err)
	}
	return d, nil
}

// buildEvalContext exposes the process environment to pipeline expressions
// as `env.NAME`, so definitions can reference credentials and endpoints
// without hardcoding them.
func buildEvalContext() *hcl.EvalContext {
	envVals := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			envVals[k] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(envVals),
		},
	}
}
