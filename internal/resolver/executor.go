package resolver

import (
	"context"
	"database/sql"
	"iter"
	"time"

	"GistAPI/internal/apperr"
	"GistAPI/internal/logger"
	"GistAPI/internal/planner"
)

// Querier is the part of *sql.DB the executor needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Executor runs compiled statements.
type Executor struct {
	db Querier
}

func NewExecutor(db Querier) *Executor {
	return &Executor{db: db}
}

// Rows runs stmt and yields its rows. The sequence is lazy and single-use;
// breaking out of the loop closes the cursor.
func (e *Executor) Rows(ctx context.Context, stmt planner.Statement) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		start := time.Now()
		logger.Debug("gist_sql", logger.WithRequest(ctx, map[string]any{
			"sql":  stmt.SQL,
			"args": stmt.Args,
		}))

		rows, err := e.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			yield(nil, e.fail(ctx, stmt, err))
			return
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			yield(nil, e.fail(ctx, stmt, err))
			return
		}
		n := 0
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				yield(nil, e.fail(ctx, stmt, err))
				return
			}
			n++
			if !yield(values, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, e.fail(ctx, stmt, err))
			return
		}
		logger.Debug("gist_sql_done", logger.WithRequest(ctx, map[string]any{
			"rows":        n,
			"duration_ms": time.Since(start).Milliseconds(),
		}))
	}
}

// All collects every row of stmt.
func (e *Executor) All(ctx context.Context, stmt planner.Statement) ([][]any, error) {
	var out [][]any
	for row, err := range e.Rows(ctx, stmt) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Count runs a single-value COUNT statement.
func (e *Executor) Count(ctx context.Context, stmt planner.Statement) (int, error) {
	total := 0
	for row, err := range e.Rows(ctx, stmt) {
		if err != nil {
			return 0, err
		}
		n, ok := toInt(row[0])
		if !ok {
			return 0, apperr.ErrExecution(nil, "Unexpected count value %v", row[0])
		}
		total = n
	}
	return total, nil
}

func (e *Executor) fail(ctx context.Context, stmt planner.Statement, err error) error {
	logger.Error("gist_sql_error", logger.WithRequest(ctx, map[string]any{
		"sql":   stmt.SQL,
		"error": err.Error(),
	}))
	return apperr.ErrExecution(err, "Query execution failed")
}
