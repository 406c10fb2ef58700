// Package config defines the format-agnostic pipeline definition model and
// the Loader interface for reading it from a configuration source. The
// model is what the app builds the execution graph from; the concrete HCL
// implementation lives in a separate package.
package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
)

// Model is the unified representation of one configuration source.
type Model struct {
	Pipeline *Pipeline
	// EvalContext is the expression evaluation scope (env vars etc.) that
	// action inputs are decoded against.
	EvalContext *hcl.EvalContext
}

// Pipeline is a full task-graph definition.
type Pipeline struct {
	Name     string
	Defaults Defaults
	Tasks    []*Task
	Groups   []*Group
}

// Defaults mirror the pipeline-wide policy applied to tasks that do not
// set their own.
type Defaults struct {
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Task is the format-agnostic representation of a `task` block. Policy
// fields are pointers so that unset values fall back to the defaults.
type Task struct {
	Name        string
	Action      string
	DependsOn   []string
	TriggerRule string
	Retries     *int
	RetryDelay  *time.Duration
	Timeout     *time.Duration
	// Args is the remainder of the task body, decoded later against the
	// registered action's input struct.
	Args hcl.Body
}

// Group is the format-agnostic representation of a `group` block.
type Group struct {
	Name   string
	Tasks  []*Task
	Groups []*Group
}
