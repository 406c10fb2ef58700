// Package registry maps the action types named in pipeline definitions to
// the Go handlers that implement them. Collaborator modules register
// themselves at startup; the app resolves every configured task against
// the registry before any run begins.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

// Module is the interface collaborator modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Handler binds one action type to its implementation.
type Handler struct {
	// NewInput returns a fresh struct the task's configured arguments are
	// decoded into, or nil when the action takes none.
	NewInput func() any
	// Run executes the action. input is the decoded struct from NewInput.
	Run func(ctx context.Context, rc *runctx.Context, input any) (*task.Output, error)
	// Branch marks the action as a branch resolver.
	Branch bool
}

// Registry holds the registered action handlers for one app instance.
type Registry struct {
	handlers map[string]*Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]*Handler)}
}

// RegisterHandler adds a handler under its action type. Double
// registration is a programmer error.
func (r *Registry) RegisterHandler(actionType string, h *Handler) {
	if _, exists := r.handlers[actionType]; exists {
		panic(fmt.Sprintf("action handler %q already registered", actionType))
	}
	slog.Debug("Registering action handler.", "action", actionType)
	r.handlers[actionType] = h
}

// Handler returns the handler for an action type.
func (r *Registry) Handler(actionType string) (*Handler, bool) {
	h, ok := r.handlers[actionType]
	return h, ok
}

// ActionTypes returns the registered action type names.
func (r *Registry) ActionTypes() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
