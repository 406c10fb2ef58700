package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/operator13/spotify-datapipeline/internal/app"
	"github.com/operator13/spotify-datapipeline/internal/cli"
	"github.com/operator13/spotify-datapipeline/internal/graph"
	"github.com/operator13/spotify-datapipeline/internal/hcl"
)

// main is the entrypoint for the pipeline runner.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit code: 2 for configuration
// and definition problems, 1 for runs that executed but did not succeed.
func exitCode(err error) int {
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var valErr *graph.ValidationError
	if errors.As(err, &valErr) {
		return 2
	}
	return 1
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	if appConfig.EnvFile != "" {
		if err := godotenv.Load(appConfig.EnvFile); err != nil {
			return &cli.ExitError{Code: 2, Message: fmt.Sprintf("loading env file: %v", err)}
		}
	}

	// A pipeline run stops cleanly on SIGINT/SIGTERM: in-flight tasks get
	// their contexts canceled, queued ones are skipped.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := hcl.NewLoader()
	pipelineApp, err := app.NewApp(outW, appConfig, loader)
	if err != nil {
		// Anything wrong before a single task runs is a definition problem.
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}

	return pipelineApp.Run(ctx)
}
