package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"airflow-service/app/src/infra"
)

const defaultMigrationsDir = "app/resources/db/migrations"

// ResolveMigrationsDir returns MIGRATIONS_DIR or the bundled migrations path.
func ResolveMigrationsDir() string {
	if dir := strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")); dir != "" {
		return dir
	}
	return defaultMigrationsDir
}

// ApplyMigrations executes every *.sql file of dir in lexical order. Each file
// runs as a single multi-statement command, so files must be idempotent.
func ApplyMigrations(ctx context.Context, runner CommandRunner, dsn, dir string, logger *infra.Logger) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("migrations directory is not specified")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read migrations directory %q: %w", dir, err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations in %q: %w", dir, err)
	}
	sort.Strings(files)

	if len(files) == 0 {
		logger.Printf(ctx, "no migrations found in %s", dir)
		return nil
	}

	for _, path := range files {
		name := filepath.Base(path)

		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read migration %q: %w", name, err)
		}

		statements := strings.TrimSpace(string(contents))
		if statements == "" {
			logger.Printf(ctx, "skipping empty migration %s", name)
			continue
		}

		logger.Printf(ctx, "applying migration %s", name)
		if _, err := runner.Exec(ctx, dsn, "", statements); err != nil {
			return fmt.Errorf("apply migration %q: %w", name, err)
		}
	}

	logger.Printf(ctx, "%d migrations applied", len(files))
	return nil
}
