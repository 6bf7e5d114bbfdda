// Package migrations runs the database schema migrations embedded in the
// binary.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Runner executes database migrations.
type Runner struct {
	db *sql.DB
}

// NewRunner creates a new migration runner.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// MigrationRecord represents a migration in the schema_migrations table.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// EnsureMigrationTable creates the schema_migrations table if it doesn't exist.
func (r *Runner) EnsureMigrationTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(14) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// GetAppliedMigrations returns all applied migration versions.
func (r *Runner) GetAppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	query := `SELECT version, applied_at FROM schema_migrations ORDER BY version`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		if err := rows.Scan(&rec.Version, &rec.AppliedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetPendingMigrations returns migrations that need to be applied.
func (r *Runner) GetPendingMigrations(ctx context.Context) ([]string, error) {
	available, err := availableVersions()
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}

	applied, err := r.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	appliedSet := make(map[string]bool)
	for _, rec := range applied {
		appliedSet[rec.Version] = true
	}

	var pending []string
	for _, v := range available {
		if !appliedSet[v] {
			pending = append(pending, v)
		}
	}

	sort.Strings(pending)
	return pending, nil
}

// Up runs all pending migrations.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}

	pending, err := r.GetPendingMigrations(ctx)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		fmt.Println("No pending migrations")
		return nil
	}

	fmt.Printf("Running %d migrations...\n", len(pending))

	for _, version := range pending {
		if err := r.runMigration(ctx, version, "up"); err != nil {
			return fmt.Errorf("migration %s failed: %w", version, err)
		}
		fmt.Printf("  Applied: %s\n", version)
	}

	return nil
}

// Down rolls back the last migration.
func (r *Runner) Down(ctx context.Context) error {
	applied, err := r.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	if len(applied) == 0 {
		fmt.Println("No migrations to rollback")
		return nil
	}

	last := applied[len(applied)-1]

	if err := r.runMigration(ctx, last.Version, "down"); err != nil {
		return fmt.Errorf("rollback %s failed: %w", last.Version, err)
	}

	_, err = r.db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", last.Version)
	if err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	fmt.Printf("Rolled back: %s\n", last.Version)
	return nil
}

// Status prints the migration status.
func (r *Runner) Status(ctx context.Context) error {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := r.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	available, err := availableVersions()
	if err != nil {
		return err
	}

	appliedSet := make(map[string]MigrationRecord)
	for _, rec := range applied {
		appliedSet[rec.Version] = rec
	}

	fmt.Println("Migration Status")
	fmt.Println("================")

	for _, v := range available {
		status := "pending"
		if rec, ok := appliedSet[v]; ok {
			status = fmt.Sprintf("applied (%s)", rec.AppliedAt.Format("2006-01-02"))
		}
		fmt.Printf("  %s: %s\n", v, status)
	}

	return nil
}

// runMigration executes a single migration.
func (r *Runner) runMigration(ctx context.Context, version, direction string) error {
	pattern := fmt.Sprintf("sql/%s_*.%s.sql", version, direction)
	matches, err := fs.Glob(migrationFiles, pattern)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("migration file not found: %s", pattern)
	}

	content, err := fs.ReadFile(migrationFiles, matches[0])
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}

	// Record migration (only for 'up')
	if direction == "up" {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)", version)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// availableVersions lists the embedded migration versions.
func availableVersions() ([]string, error) {
	matches, err := fs.Glob(migrationFiles, "sql/*.up.sql")
	if err != nil {
		return nil, err
	}

	versions := make(map[string]bool)
	for _, path := range matches {
		name := strings.TrimPrefix(path, "sql/")
		parts := strings.SplitN(name, "_", 2)
		if len(parts) >= 1 {
			versions[parts[0]] = true
		}
	}

	var result []string
	for v := range versions {
		result = append(result, v)
	}
	sort.Strings(result)
	return result, nil
}
