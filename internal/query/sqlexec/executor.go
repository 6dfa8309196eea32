package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querydesk/querydesk/internal/config"
	"github.com/querydesk/querydesk/internal/query"
)

const defaultTimeout = 30 * time.Second

// Open connects to the warehouse with the configured driver and pool limits.
func Open(ctx context.Context, cfg config.WarehouseConfig) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = config.DriverPostgres
	}
	if driver == config.DriverPostgres && cfg.Database.DSN == "" {
		return nil, fmt.Errorf("warehouse dsn is required")
	}

	db, err := sql.Open(driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open warehouse db: %w", err)
	}

	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping warehouse db: %w", err)
	}
	return db, nil
}

type Options struct {
	Timeout time.Duration
	Policy  query.Policy
}

// Executor runs query text verbatim on a connection scoped to one call.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	policy  query.Policy
}

func New(db *sql.DB, opts Options) *Executor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	policy := opts.Policy
	if policy == nil {
		policy = query.AllowAll
	}
	return &Executor{db: db, timeout: timeout, policy: policy}
}

func (e *Executor) Execute(ctx context.Context, queryText string) (query.Result, error) {
	if e == nil || e.db == nil {
		return query.Result{}, query.NewExecutionError("warehouse is not configured", nil)
	}
	if err := e.policy.Check(queryText); err != nil {
		return query.Result{}, query.NewExecutionError("", err)
	}

	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	conn, err := e.db.Conn(execCtx)
	if err != nil {
		return query.Result{}, executionError(execCtx, "acquire connection", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(execCtx, queryText)
	if err != nil {
		return query.Result{}, executionError(execCtx, "execute query", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, executionError(execCtx, "query columns", err)
	}
	typeNames := columnTypeNames(rows)

	resultRows := make([][]query.Value, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, executionError(execCtx, "scan row", err)
		}
		resultRows = append(resultRows, normalizeValues(values, typeNames))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, executionError(execCtx, "iterate rows", err)
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func columnTypeNames(rows *sql.Rows) []string {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil
	}
	names := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		names[i] = columnType.DatabaseTypeName()
	}
	return names
}

func (e *Executor) Ping(ctx context.Context) error {
	if e == nil || e.db == nil {
		return errors.New("warehouse is not configured")
	}
	return e.db.PingContext(ctx)
}

func executionError(ctx context.Context, step string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return query.NewExecutionError(fmt.Sprintf("%s: %v", step, err), err)
}
