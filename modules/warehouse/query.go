package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

// QueryInput defines the arguments for a warehouse_query task.
type QueryInput struct {
	DSN string `hcl:"dsn"`
	// Query is a single SELECT whose first row is published column by
	// column under this task's id.
	Query string `hcl:"query"`
}

// RunQuery executes the query and publishes the first result row, one
// value per column. Downstream tasks read them as "task_id.column".
func (m *Module) RunQuery(ctx context.Context, rc *runctx.Context, input any) (*task.Output, error) {
	in, ok := input.(*QueryInput)
	if !ok {
		return nil, fmt.Errorf("warehouse_query: unexpected input type %T", input)
	}
	logger := ctxlog.FromContext(ctx)

	pool, err := pgxpool.New(ctx, in.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to warehouse: %w", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, in.Query)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("running query: %w", err)
		}
		return nil, fmt.Errorf("query returned no rows")
	}
	vals, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("reading query result: %w", err)
	}

	values := make(map[string]any, len(vals))
	for i, fd := range rows.FieldDescriptions() {
		values[fd.Name] = vals[i]
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading query result: %w", err)
	}

	logger.Info("Query finished.", "columns", len(values))
	return &task.Output{Values: values}, nil
}
