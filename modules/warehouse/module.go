// Package warehouse provides the Postgres-backed actions: ensuring the
// target schema exists and bulk-loading CSV files into staging tables.
package warehouse

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/registry"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// EnsureSchemaInput defines the arguments for a warehouse_ensure_schema task.
type EnsureSchemaInput struct {
	DSN string `hcl:"dsn"`
	// Statements run in order inside one transaction; typically CREATE
	// SCHEMA / CREATE TABLE IF NOT EXISTS.
	Statements []string `hcl:"statements"`
}

// LoadCSVInput defines the arguments for a warehouse_load_csv task.
type LoadCSVInput struct {
	DSN   string `hcl:"dsn"`
	Table string `hcl:"table"`
	// Path is the CSV file to load. Empty means read it from the run
	// context instead.
	Path string `hcl:"path,optional"`
	// PathFrom names a task and key in the run context holding the path,
	// as "task_id.key". The usual producer is a kaggle_download task.
	PathFrom string `hcl:"path_from,optional"`
	// Truncate empties the table before loading.
	Truncate bool `hcl:"truncate,optional"`
}

// RunEnsureSchema applies the configured DDL statements transactionally.
func (m *Module) RunEnsureSchema(ctx context.Context, rc *runctx.Context, input any) (*task.Output, error) {
	in, ok := input.(*EnsureSchemaInput)
	if !ok {
		return nil, fmt.Errorf("warehouse_ensure_schema: unexpected input type %T", input)
	}
	logger := ctxlog.FromContext(ctx)

	pool, err := pgxpool.New(ctx, in.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to warehouse: %w", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range in.Statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("applying schema statement: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing schema transaction: %w", err)
	}

	logger.Info("Warehouse schema ensured.", "statements", len(in.Statements))
	return &task.Output{}, nil
}

// RunLoadCSV bulk-loads a CSV file into the target table via COPY and
// publishes "row_count".
func (m *Module) RunLoadCSV(ctx context.Context, rc *runctx.Context, input any) (*task.Output, error) {
	in, ok := input.(*LoadCSVInput)
	if !ok {
		return nil, fmt.Errorf("warehouse_load_csv: unexpected input type %T", input)
	}
	logger := ctxlog.FromContext(ctx)

	path, err := resolvePath(rc, in)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header from %s: %w", path, err)
	}

	pool, err := pgxpool.New(ctx, in.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to warehouse: %w", err)
	}
	defer pool.Close()

	ident := tableIdent(in.Table)
	if in.Truncate {
		if _, err := pool.Exec(ctx, "TRUNCATE TABLE "+ident.Sanitize()); err != nil {
			return nil, fmt.Errorf("truncating %s: %w", in.Table, err)
		}
	}

	logger.Info("Loading CSV into warehouse.", "table", in.Table, "path", path)
	rows, err := pool.CopyFrom(ctx, ident, header, &csvSource{reader: reader})
	if err != nil {
		return nil, fmt.Errorf("copying into %s: %w", in.Table, err)
	}
	logger.Info("CSV loaded.", "table", in.Table, "rows", rows)

	return &task.Output{
		Values: map[string]any{"row_count": rows},
	}, nil
}

// resolvePath picks the CSV path from the literal argument or the run
// context reference, whichever is configured.
func resolvePath(rc *runctx.Context, in *LoadCSVInput) (string, error) {
	switch {
	case in.Path != "" && in.PathFrom != "":
		return "", fmt.Errorf("warehouse_load_csv: path and path_from are mutually exclusive")
	case in.Path != "":
		return in.Path, nil
	case in.PathFrom != "":
		taskID, key, ok := splitRef(in.PathFrom)
		if !ok {
			return "", fmt.Errorf("warehouse_load_csv: path_from %q is not of the form task_id.key", in.PathFrom)
		}
		return rc.ReadString(taskID, key)
	default:
		return "", fmt.Errorf("warehouse_load_csv: one of path or path_from is required")
	}
}

// tableIdent turns a possibly schema-qualified name like
// "raw.spotify_tracks_raw" into a pgx identifier, one part per name.
func tableIdent(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// splitRef splits "a.b.c" into task id "a.b" and key "c".
func splitRef(ref string) (taskID, key string, ok bool) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '.' {
			return ref[:i], ref[i+1:], i > 0 && i < len(ref)-1
		}
	}
	return "", "", false
}

// csvSource adapts an encoding/csv reader to the pgx CopyFromSource
// interface. Fields stream through as text and Postgres coerces them to
// the column types.
type csvSource struct {
	reader *csv.Reader
	row    []string
	err    error
}

func (s *csvSource) Next() bool {
	rec, err := s.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	s.row = rec
	return true
}

func (s *csvSource) Values() ([]any, error) {
	vals := make([]any, len(s.row))
	for i, field := range s.row {
		if field == "" {
			vals[i] = nil
			continue
		}
		vals[i] = field
	}
	return vals, nil
}

func (s *csvSource) Err() error { return s.err }

// Register registers both warehouse handlers with the app registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("warehouse_ensure_schema", &registry.Handler{
		NewInput: func() any { return new(EnsureSchemaInput) },
		Run:      m.RunEnsureSchema,
	})
	r.RegisterHandler("warehouse_load_csv", &registry.Handler{
		NewInput: func() any { return new(LoadCSVInput) },
		Run:      m.RunLoadCSV,
	})
	r.RegisterHandler("warehouse_query", &registry.Handler{
		NewInput: func() any { return new(QueryInput) },
		Run:      m.RunQuery,
	})
}
