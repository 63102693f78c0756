package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
)

// Connect opens a SQL database handle and pings it before returning.
func Connect(cfg *Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, errors.New("db: config is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("db: DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := openPostgres(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	return db, nil
}

// ShouldCheckDatabase reports whether a Postgres database is configured at all.
func ShouldCheckDatabase(cfg infra.Config) bool {
	return cfg.DatabaseDSN != "" || cfg.DatabaseHost != ""
}

// WaitForDatabase probes the configured host/port until it becomes reachable or ctx is done.
func WaitForDatabase(ctx context.Context, cfg infra.Config, logger *infra.Logger) error {
	host := cfg.DatabaseHost
	port := cfg.DatabasePort

	if (host == "" || port == "") && cfg.DatabaseDSN != "" {
		parsed, err := url.Parse(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("invalid DB_DSN: %w", err)
		}
		if host == "" {
			host = parsed.Hostname()
		}
		if port == "" {
			port = parsed.Port()
		}
	}

	if host == "" {
		return nil
	}
	if port == "" {
		port = "5432"
	}

	address := net.JoinHostPort(host, port)
	dialer := &net.Dialer{Timeout: 3 * time.Second}

	const maxAttempts = 5
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		logger.Printf(ctx, "database check attempt %d/%d failed: %v", attempt, maxAttempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	return fmt.Errorf("database not reachable at %s", address)
}

// EstimateStore is the estimate history together with its shutdown hook.
type EstimateStore interface {
	domain.EstimateRepository
	Close() error
}

// SetupRepository migrates and opens the Postgres history when a database is
// configured, and falls back to an in-memory history otherwise.
func SetupRepository(ctx context.Context, cfg infra.Config, logger *infra.Logger) (EstimateStore, func(), error) {
	if !ShouldCheckDatabase(cfg) {
		logger.Println(ctx, "no database configured, keeping estimate history in memory")
		return NewMemoryRepository(DefaultMemoryRetention), func() {}, nil
	}

	dsn, err := BuildDatabaseDSN(cfg)
	if err != nil {
		return nil, nil, err
	}

	if parsed, parseErr := url.Parse(dsn); parseErr == nil {
		logger.Printf(ctx, "using database host=%s db=%s user=%s",
			parsed.Hostname(), strings.TrimPrefix(parsed.Path, "/"), parsed.User.Username())
	} else {
		logger.Printf(ctx, "failed to parse DSN for logging: %v", parseErr)
	}

	runner := NewSQLRunner()
	if err := ApplyMigrations(ctx, runner, dsn, ResolveMigrationsDir(), logger); err != nil {
		_ = runner.Close()
		return nil, nil, err
	}

	repo, err := New(ctx, Config{
		DSN:          dsn,
		Runner:       runner,
		Logger:       logger,
		BatchSize:    cfg.DatabaseBatchSize,
		BatchTimeout: time.Duration(cfg.DatabaseBatchTimeoutMS) * time.Millisecond,
		BufferSize:   cfg.DatabaseBatchBufferSize,
	})
	if err != nil {
		_ = runner.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := repo.Close(); err != nil {
			logger.Errorf(ctx, "failed to close repository: %v", err)
		}
	}

	return repo, cleanup, nil
}

// BuildDatabaseDSN constructs a DSN from discrete configuration values when not provided explicitly.
func BuildDatabaseDSN(cfg infra.Config) (string, error) {
	if cfg.DatabaseDSN != "" {
		return cfg.DatabaseDSN, nil
	}

	if cfg.DatabaseHost == "" {
		return "", errors.New("database host is required when DSN is not provided")
	}
	if cfg.DatabaseUser == "" {
		return "", errors.New("database user is required when DSN is not provided")
	}
	if cfg.DatabaseName == "" {
		return "", errors.New("database name is required when DSN is not provided")
	}

	port := cfg.DatabasePort
	if port == "" {
		port = "5432"
	}

	connectionURL := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.DatabaseHost, port),
		Path:   "/" + cfg.DatabaseName,
		User:   url.UserPassword(cfg.DatabaseUser, cfg.DatabasePassword),
	}

	query := connectionURL.Query()
	query.Set("sslmode", "disable")
	connectionURL.RawQuery = query.Encode()

	return connectionURL.String(), nil
}
