package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
)

// RunRepository implements scanjob.RunRepository using PostgreSQL.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `
	id, scan_job_id, channel_id, platform, external_run_id,
	status, status_detail, input,
	items_processed, item_errors,
	started_at, finished_at, created_at, updated_at
`

// Create persists a new run.
func (r *RunRepository) Create(ctx context.Context, run *scanjob.Run) error {
	query := `
		INSERT INTO scan_job_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID.String(),
		run.JobID.String(),
		run.ChannelID.String(),
		run.Platform,
		nullString(run.ExternalRunID),
		string(run.Status),
		nullString(run.StatusDetail),
		nullBytes(run.Input),
		run.ItemsProcessed,
		run.ItemErrors,
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID.
func (r *RunRepository) GetByID(ctx context.Context, id shared.ID) (*scanjob.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scan_job_runs WHERE id = $1`
	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "run not found", shared.ErrNotFound)
	}
	return run, err
}

// ListByJobID lists all runs belonging to a scan job.
func (r *RunRepository) ListByJobID(ctx context.Context, jobID shared.ID) ([]*scanjob.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scan_job_runs WHERE scan_job_id = $1 ORDER BY created_at`
	return r.queryRuns(ctx, query, jobID.String())
}

// ListByStatus lists runs in the given status, oldest first.
func (r *RunRepository) ListByStatus(ctx context.Context, status scanjob.RunStatus, limit int) ([]*scanjob.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scan_job_runs WHERE status = $1 ORDER BY created_at LIMIT $2`
	return r.queryRuns(ctx, query, string(status), limit)
}

// Transition performs a conditional status write. Returns false when
// the run's current status did not match the guard, meaning a
// concurrent handler already owns the run.
func (r *RunRepository) Transition(ctx context.Context, id shared.ID, from []scanjob.RunStatus, to scanjob.RunStatus, detail string) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	finished := "NULL"
	if to.IsTerminal() {
		finished = "NOW()"
	}

	query := fmt.Sprintf(`
		UPDATE scan_job_runs SET
			status = $2,
			status_detail = $3,
			finished_at = %s,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, finished)

	result, err := r.db.ExecContext(ctx, query, id.String(), string(to), nullString(detail), pq.Array(fromStrs))
	if err != nil {
		return false, fmt.Errorf("failed to transition run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Finalize persists the terminal status, detail and counters of a run
// the caller owns (it previously won the Transition guard).
func (r *RunRepository) Finalize(ctx context.Context, run *scanjob.Run) error {
	query := `
		UPDATE scan_job_runs SET
			status = $2,
			status_detail = $3,
			items_processed = $4,
			item_errors = $5,
			finished_at = $6,
			updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		run.ID.String(),
		string(run.Status),
		nullString(run.StatusDetail),
		run.ItemsProcessed,
		run.ItemErrors,
		nullTime(run.FinishedAt),
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return shared.NewDomainError("NOT_FOUND", "run not found", shared.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *RunRepository) scanRun(row rowScanner) (*scanjob.Run, error) {
	var (
		run           scanjob.Run
		status        string
		externalRunID sql.NullString
		statusDetail  sql.NullString
		input         []byte
		startedAt     sql.NullTime
		finishedAt    sql.NullTime
	)

	err := row.Scan(
		&run.ID, &run.JobID, &run.ChannelID, &run.Platform, &externalRunID,
		&status, &statusDetail, &input,
		&run.ItemsProcessed, &run.ItemErrors,
		&startedAt, &finishedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = scanjob.RunStatus(status)
	run.ExternalRunID = nullStringValue(externalRunID)
	run.StatusDetail = nullStringValue(statusDetail)
	run.Input = json.RawMessage(input)
	run.StartedAt = nullTimeValue(startedAt)
	run.FinishedAt = nullTimeValue(finishedAt)

	return &run, nil
}

func (r *RunRepository) queryRuns(ctx context.Context, query string, args ...any) ([]*scanjob.Run, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*scanjob.Run
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
