// Package dbt provides the 'dbt_run' action, which shells out to the dbt
// CLI, and the 'quality_gate' branch resolver that routes the pipeline on
// the outcome of dbt test output.
package dbt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/registry"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// RunInput defines the arguments for a dbt_run task.
type RunInput struct {
	// Command is the dbt subcommand: "run", "test", "seed", "docs generate", ...
	Command string `hcl:"command"`
	// ProjectDir is passed as --project-dir and used as the working
	// directory.
	ProjectDir string `hcl:"project_dir"`
	// ProfilesDir is passed as --profiles-dir when set.
	ProfilesDir string `hcl:"profiles_dir,optional"`
	// Select is passed as --select when set.
	Select string `hcl:"select,optional"`
	// Env holds extra environment variables for the dbt process.
	Env map[string]string `hcl:"env,optional"`
	// IgnoreExitCode treats a non-zero dbt exit as success. Used for test
	// steps whose verdict is decided by a downstream quality_gate instead
	// of the exit code.
	IgnoreExitCode bool `hcl:"ignore_exit_code,optional"`
}

// Run executes the dbt CLI and publishes its combined output under
// "output". A non-zero exit is a task failure; the output is still
// published so a downstream gate can inspect it.
func (m *Module) Run(ctx context.Context, rc *runctx.Context, input any) (*task.Output, error) {
	in, ok := input.(*RunInput)
	if !ok {
		return nil, fmt.Errorf("dbt_run: unexpected input type %T", input)
	}
	logger := ctxlog.FromContext(ctx)

	args := append(strings.Fields(in.Command), "--project-dir", in.ProjectDir)
	if in.ProfilesDir != "" {
		args = append(args, "--profiles-dir", in.ProfilesDir)
	}
	if in.Select != "" {
		args = append(args, "--select", in.Select)
	}

	cmd := exec.CommandContext(ctx, "dbt", args...)
	cmd.Dir = in.ProjectDir
	cmd.Env = os.Environ()
	for k, v := range in.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	logger.Info("Running dbt.", "command", in.Command, "project_dir", in.ProjectDir)
	runErr := cmd.Run()
	output := buf.String()
	logger.Debug("dbt finished.", "command", in.Command, "bytes", len(output))

	out := &task.Output{
		Values: map[string]any{"output": output},
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if in.IgnoreExitCode && errors.As(runErr, &exitErr) {
			logger.Warn("dbt exited non-zero, continuing.", "command", in.Command, "exit_code", exitErr.ExitCode())
			return out, nil
		}
		return nil, fmt.Errorf("dbt %s: %w", in.Command, runErr)
	}
	return out, nil
}

// Register registers the dbt handlers with the app registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("dbt_run", &registry.Handler{
		NewInput: func() any { return new(RunInput) },
		Run:      m.Run,
	})
	r.RegisterHandler("quality_gate", &registry.Handler{
		NewInput: func() any { return new(GateInput) },
		Run:      RunGate,
		Branch:   true,
	})
}
