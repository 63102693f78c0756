package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// RowScanner is the part of *sql.Rows a query callback reads from.
type RowScanner interface {
	Scan(dest ...any) error
}

// CommandRunner executes SQL against Postgres. Commands return a Postgres-style
// command tag, queries hand every row to scan.
type CommandRunner interface {
	Exec(ctx context.Context, dsn, password, sql string, args ...any) (string, error)
	Query(ctx context.Context, dsn, sql string, scan func(RowScanner) error, args ...any) error
	Close() error
}

type openFunc func(ctx context.Context, dsn string) (*sql.DB, error)

// SQLRunner keeps one pooled handle per DSN.
type SQLRunner struct {
	mu   sync.Mutex
	dbs  map[string]*sql.DB
	open openFunc
}

func NewSQLRunner() CommandRunner {
	return newSQLRunner(openPostgres)
}

func newSQLRunner(open openFunc) *SQLRunner {
	return &SQLRunner{dbs: make(map[string]*sql.DB), open: open}
}

func (r *SQLRunner) Exec(ctx context.Context, dsn, _ string, statement string, args ...any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	query := strings.TrimSpace(statement)
	if query == "" {
		return "", nil
	}

	db, err := r.dbFor(ctx, dsn)
	if err != nil {
		return "", err
	}

	return execCommand(ctx, db, query, args...)
}

// Query runs statement and calls scan once per returned row.
func (r *SQLRunner) Query(ctx context.Context, dsn, statement string, scan func(RowScanner) error, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db, err := r.dbFor(ctx, dsn)
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, statement, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *SQLRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for dsn, db := range r.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = fmt.Errorf("sql runner: close: %w", err)
		}
		delete(r.dbs, dsn)
	}
	return first
}

func (r *SQLRunner) dbFor(ctx context.Context, dsn string) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.dbs[dsn]; ok {
		return db, nil
	}

	db, err := r.open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	r.dbs[dsn] = db
	return db, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql runner: open: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sql runner: ping: %w", err)
	}

	return db, nil
}

func execCommand(ctx context.Context, db *sql.DB, query string, args ...any) (string, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", err
	}

	verb := strings.ToUpper(strings.Fields(query)[0])
	if verb == "INSERT" {
		return fmt.Sprintf("INSERT 0 %d", affected), nil
	}
	return fmt.Sprintf("%s %d", verb, affected), nil
}

var _ CommandRunner = (*SQLRunner)(nil)
