package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
)

// ScanJobRepository implements scanjob.Repository using PostgreSQL.
type ScanJobRepository struct {
	db *DB
}

// NewScanJobRepository creates a new ScanJobRepository.
func NewScanJobRepository(db *DB) *ScanJobRepository {
	return &ScanJobRepository{db: db}
}

// Create persists a new scan job and its publisher/product links.
func (r *ScanJobRepository) Create(ctx context.Context, job *scanjob.ScanJob) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO scan_jobs (
				id, organization_id, advertiser_id, source, created_by,
				bypass_ai, status, status_detail,
				started_at, completed_at, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		_, err := tx.ExecContext(ctx, query,
			job.ID.String(),
			job.OrganizationID.String(),
			job.AdvertiserID.String(),
			job.Source,
			nullID(job.CreatedBy),
			job.BypassAI,
			string(job.Status),
			nullString(job.StatusDetail),
			nullTime(job.StartedAt),
			nullTime(job.CompletedAt),
			job.CreatedAt,
			job.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create scan job: %w", err)
		}

		for _, pubID := range job.PublisherIDs {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO scan_job_publishers (scan_job_id, publisher_id) VALUES ($1, $2)`,
				job.ID.String(), pubID.String())
			if err != nil {
				return fmt.Errorf("failed to link publisher: %w", err)
			}
		}
		for _, prodID := range job.ProductIDs {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO scan_job_products (scan_job_id, product_id) VALUES ($1, $2)`,
				job.ID.String(), prodID.String())
			if err != nil {
				return fmt.Errorf("failed to link product: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a scan job by ID, including its links.
func (r *ScanJobRepository) GetByID(ctx context.Context, id shared.ID) (*scanjob.ScanJob, error) {
	query := `
		SELECT j.id, j.organization_id, j.advertiser_id, j.source, j.created_by,
		       j.bypass_ai, j.status, j.status_detail,
		       j.started_at, j.completed_at, j.created_at, j.updated_at,
		       COALESCE(array_agg(DISTINCT jp.publisher_id) FILTER (WHERE jp.publisher_id IS NOT NULL), '{}'),
		       COALESCE(array_agg(DISTINCT jpr.product_id) FILTER (WHERE jpr.product_id IS NOT NULL), '{}')
		FROM scan_jobs j
		LEFT JOIN scan_job_publishers jp ON jp.scan_job_id = j.id
		LEFT JOIN scan_job_products jpr ON jpr.scan_job_id = j.id
		WHERE j.id = $1
		GROUP BY j.id
	`

	var (
		job          scanjob.ScanJob
		createdBy    sql.NullString
		statusDetail sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		status       string
		publisherIDs pq.StringArray
		productIDs   pq.StringArray
	)

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&job.ID, &job.OrganizationID, &job.AdvertiserID, &job.Source, &createdBy,
		&job.BypassAI, &status, &statusDetail,
		&startedAt, &completedAt, &job.CreatedAt, &job.UpdatedAt,
		&publisherIDs, &productIDs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "scan job not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan job: %w", err)
	}

	job.Status = scanjob.Status(status)
	job.CreatedBy = parseNullID(createdBy)
	job.StatusDetail = nullStringValue(statusDetail)
	job.StartedAt = nullTimeValue(startedAt)
	job.CompletedAt = nullTimeValue(completedAt)
	job.PublisherIDs = parseIDs(publisherIDs)
	job.ProductIDs = parseIDs(productIDs)

	return &job, nil
}

// Update updates a scan job's mutable fields. The write is guarded
// against jobs already in a terminal status: the aggregator may finish
// a job while the orchestrator is still dispatching, and that terminal
// status must never be overwritten by the stale dispatch summary.
func (r *ScanJobRepository) Update(ctx context.Context, job *scanjob.ScanJob) error {
	query := `
		UPDATE scan_jobs SET
			status = $2,
			status_detail = $3,
			completed_at = $4,
			updated_at = $5
		WHERE id = $1
		  AND status NOT IN ('failed', 'completed', 'completed_with_errors', 'completed_no_runs')
	`
	result, err := r.db.ExecContext(ctx, query,
		job.ID.String(),
		string(job.Status),
		nullString(job.StatusDetail),
		nullTime(job.CompletedAt),
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM scan_jobs WHERE id = $1)`, job.ID.String()).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check scan job existence: %w", err)
		}
		if !exists {
			return shared.NewDomainError("NOT_FOUND", "scan job not found", shared.ErrNotFound)
		}
	}
	return nil
}

// CompleteIfRunning moves the job into a terminal status only when it
// is still non-terminal. The conditional write makes concurrent
// aggregator invocations race-safe.
func (r *ScanJobRepository) CompleteIfRunning(ctx context.Context, id shared.ID, status scanjob.Status, detail string) (bool, error) {
	query := `
		UPDATE scan_jobs SET
			status = $2,
			status_detail = $3,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		  AND status IN ('initializing', 'running', 'partially_running')
	`
	result, err := r.db.ExecContext(ctx, query, id.String(), string(status), nullString(detail))
	if err != nil {
		return false, fmt.Errorf("failed to complete scan job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
