package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adscanio/api/pkg/logger"
)

// Runner applies migrations against a database, tracking applied
// versions in the schema_migrations table.
type Runner struct {
	db     *sql.DB
	dir    string
	target Target
	logger *logger.Logger
}

// NewRunner creates a migration runner.
func NewRunner(db *sql.DB, dir string, target Target, log *logger.Logger) *Runner {
	return &Runner{
		db:     db,
		dir:    dir,
		target: target,
		logger: log.With("component", "migrations"),
	}
}

// Record is one row of the schema_migrations table.
type Record struct {
	Version   string
	Scope     Scope
	AppliedAt time.Time
}

// StatusEntry pairs an available migration with its applied state.
type StatusEntry struct {
	Migration Migration
	Applied   bool
	AppliedAt time.Time
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(14) PRIMARY KEY,
			scope VARCHAR(20) NOT NULL DEFAULT 'core',
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	return nil
}

// Applied returns the applied migration records, oldest first.
func (r *Runner) Applied(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT version, scope, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Version, &rec.Scope, &rec.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan migration record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Up applies all pending migrations for the runner's target and
// returns how many were applied.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, err
	}

	available, err := Load(r.dir, r.target, "up")
	if err != nil {
		return 0, fmt.Errorf("load migrations: %w", err)
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return 0, err
	}
	done := make(map[string]bool, len(applied))
	for _, rec := range applied {
		done[rec.Version] = true
	}

	count := 0
	for _, m := range available {
		if done[m.Version] {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return count, fmt.Errorf("migration %s: %w", m, err)
		}
		r.logger.Info("migration applied", "version", m.Version, "name", m.Name, "scope", m.Scope)
		count++
	}
	return count, nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) (*Migration, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return nil, nil
	}
	last := applied[len(applied)-1]

	if !r.target.Includes(ScopeOf(last.Version)) {
		return nil, fmt.Errorf("migration %s is outside target %s", last.Version, r.target)
	}

	downs, err := Load(r.dir, r.target, "down")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	var m *Migration
	for i := range downs {
		if downs[i].Version == last.Version {
			m = &downs[i]
			break
		}
	}
	if m == nil {
		return nil, fmt.Errorf("no down migration for version %s", last.Version)
	}

	if err := r.apply(ctx, *m); err != nil {
		return nil, fmt.Errorf("rollback %s: %w", m, err)
	}
	r.logger.Info("migration rolled back", "version", m.Version, "name", m.Name)
	return m, nil
}

// Status reports every available migration with its applied state.
func (r *Runner) Status(ctx context.Context) ([]StatusEntry, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}

	available, err := Load(r.dir, r.target, "up")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]Record, len(applied))
	for _, rec := range applied {
		byVersion[rec.Version] = rec
	}

	entries := make([]StatusEntry, 0, len(available))
	for _, m := range available {
		entry := StatusEntry{Migration: m}
		if rec, ok := byVersion[m.Version]; ok {
			entry.Applied = true
			entry.AppliedAt = rec.AppliedAt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// apply executes one migration file and updates schema_migrations in
// the same transaction.
func (r *Runner) apply(ctx context.Context, m Migration) error {
	content, err := Content(m)
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

	if m.Direction == "up" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, scope) VALUES ($1, $2)`,
			m.Version, string(m.Scope))
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}
