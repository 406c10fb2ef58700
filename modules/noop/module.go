// Package noop provides the 'noop' action: a task that does nothing and
// succeeds. Useful as a join point or a placeholder while wiring a
// pipeline.
package noop

import (
	"context"

	"github.com/operator13/spotify-datapipeline/internal/registry"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// RunNoop is the handler for the 'noop' action.
func RunNoop(ctx context.Context, rc *runctx.Context, input any) (*task.Output, error) {
	return &task.Output{}, nil
}

// Register registers the handler with the app registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("noop", &registry.Handler{
		Run: RunNoop,
	})
}
