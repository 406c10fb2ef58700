// Package app wires the pieces of the pipeline runner together: logger,
// definition loader, action registry, graph construction, and execution.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/operator13/spotify-datapipeline/internal/config"
	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/registry"
)

// ErrTasksFailed is returned by Run when the pipeline completed with one
// or more failed tasks (or was canceled). Callers map it to exit code 1.
var ErrTasksFailed = errors.New("pipeline run failed")

// Config holds everything an App instance needs to run.
type Config struct {
	PipelinePath string
	LogFormat    string
	LogLevel     string
	WorkerCount  int
	EnvFile      string
}

// NewConfig validates the raw configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}

// App encapsulates the runner's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	registry *registry.Registry
	model    *config.Model
}

// NewApp constructs a fully initialized App: isolated logger, populated
// registry, and the loaded pipeline definition. Any error here is a
// configuration problem, surfaced before a single task runs.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("Action modules registered.", "count", len(modules))

	model, err := loader.Load(ctx, cfg.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("loading pipeline definition: %w", err)
	}
	logger.Debug("Pipeline definition loaded.", "pipeline", model.Pipeline.Name)

	return &App{
		outW:     outW,
		logger:   logger,
		cfg:      cfg,
		registry: reg,
		model:    model,
	}, nil
}

// Registry returns the app's action registry. Primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
