// ABOUTME: Runs agent-generated SQL against a PostgreSQL warehouse inside a read-only transaction
// ABOUTME: Results are capped to a row limit and rendered as strings for display

package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Defaults for optional settings.
const (
	DefaultMaxRows = 100
	DefaultTimeout = 30 * time.Second
)

// Result is a rendered query result. Truncated is set when more rows existed
// than the cap allowed.
type Result struct {
	Columns   []string
	Rows      [][]string
	Truncated bool
}

// Runner executes generated queries. Implementations must not let a query
// modify data.
type Runner interface {
	Run(ctx context.Context, query string) (*Result, error)
}

// Options tunes a PgxRunner.
type Options struct {
	MaxRows int
	Timeout time.Duration
}

// PgxRunner is a Runner over a pgx pool.
type PgxRunner struct {
	pool   *pgxpool.Pool
	opts   Options
	logger *slog.Logger
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, opts Options, logger *slog.Logger) (*PgxRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening warehouse pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging warehouse: %w", err)
	}

	return &PgxRunner{pool: pool, opts: opts, logger: logger.With("component", "warehouse")}, nil
}

// Run executes query in a read-only transaction that is always rolled back.
func (p *PgxRunner) Run(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	res, err := collect(rows, p.opts.MaxRows)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("generated query ran", "rows", len(res.Rows), "truncated", res.Truncated)
	return res, nil
}

// Close releases the pool.
func (p *PgxRunner) Close() {
	p.pool.Close()
}

// collect renders up to maxRows rows and closes rows.
func collect(rows pgx.Rows, maxRows int) (*Result, error) {
	defer rows.Close()

	res := &Result{Columns: []string{}, Rows: [][]string{}}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}

	for rows.Next() {
		if len(res.Rows) == maxRows {
			res.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
