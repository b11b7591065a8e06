package scanjob

import (
	"context"

	"github.com/adscanio/api/pkg/domain/shared"
)

// Repository defines the interface for scan job persistence.
type Repository interface {
	// Create creates a new scan job with its publisher and product links.
	Create(ctx context.Context, job *ScanJob) error

	// GetByID retrieves a scan job by ID.
	GetByID(ctx context.Context, id shared.ID) (*ScanJob, error)

	// Update updates a scan job. A job that concurrently reached a
	// terminal status keeps it; the stale write is dropped without
	// error.
	Update(ctx context.Context, job *ScanJob) error

	// CompleteIfRunning moves the job into the given terminal status only
	// when it is still non-terminal. Returns false when another worker
	// already finished it.
	CompleteIfRunning(ctx context.Context, id shared.ID, status Status, detail string) (bool, error)
}

// RunRepository defines the interface for scan job run persistence.
type RunRepository interface {
	// Create creates a new run.
	Create(ctx context.Context, run *Run) error

	// GetByID retrieves a run by ID.
	GetByID(ctx context.Context, id shared.ID) (*Run, error)

	// ListByJobID lists all runs belonging to a scan job.
	ListByJobID(ctx context.Context, jobID shared.ID) ([]*Run, error)

	// ListByStatus lists runs in the given status, oldest first. The
	// polling loop uses this to find runs awaiting completion.
	ListByStatus(ctx context.Context, status RunStatus, limit int) ([]*Run, error)

	// Transition performs a conditional status write: the run moves to
	// the target status only if its current status is one of from.
	// Returns false (no error) when the guard did not match, which means
	// a concurrent handler already owns the run.
	Transition(ctx context.Context, id shared.ID, from []RunStatus, to RunStatus, detail string) (bool, error)

	// Finalize persists the terminal status, detail and item counters of
	// a run owned by the caller.
	Finalize(ctx context.Context, run *Run) error
}
