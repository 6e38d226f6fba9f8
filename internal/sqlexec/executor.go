package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"askdb/internal/domain/models/agent"
	svc "askdb/internal/domain/services/agent"
)

// Executor runs agent-generated SQL against the monitoring database. Every
// statement runs inside a read-only transaction under a hard timeout, as a
// second fence behind the safety guard.
type Executor struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an Executor. A non-positive timeout falls back to 30s.
func NewExecutor(pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{pool: pool, timeout: timeout, logger: logger}
}

// Execute runs the statement and returns its rows as column-name maps.
// Database-reported failures (bad SQL, missing relations, permission,
// timeout) come back as *agent.ExecError for classification; anything else
// is a transport failure.
func (e *Executor) Execute(ctx context.Context, sql string) ([]agent.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer tx.Rollback(context.Background())

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, e.wrapQueryError(ctx, err)
	}
	defer rows.Close()

	out, err := collectRows(rows)
	if err != nil {
		return nil, e.wrapQueryError(ctx, err)
	}

	e.logger.Debug("query executed", "rows", len(out))
	return out, nil
}

// wrapQueryError turns database-level failures into classifiable ExecErrors.
func (e *Executor) wrapQueryError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &svc.ExecError{Message: fmt.Sprintf("query timeout exceeded (%s)", e.timeout)}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		if pgErr.Hint != "" {
			msg += " (hint: " + pgErr.Hint + ")"
		}
		return &svc.ExecError{Message: msg}
	}

	return fmt.Errorf("execute query: %w", err)
}

func collectRows(rows pgx.Rows) ([]agent.Row, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []agent.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(agent.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// normalizeValue makes row values JSON-friendly. Timestamps render as
// RFC 3339 so the validator and report prompts see stable text.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339)
	case [16]byte: // uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	default:
		return v
	}
}
