package scan

import (
	"context"
	"fmt"

	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// DispositionScheduler enqueues the auto-disposition job for a
// completed scan. Implementations must deduplicate on the scan job ID
// so repeated scheduling stays idempotent.
type DispositionScheduler interface {
	EnqueueAutoDisposition(ctx context.Context, jobID shared.ID) error
}

// Aggregator rolls child run states up into the parent scan job. It is
// invoked after every run terminal transition.
type Aggregator struct {
	jobRepo   scanjob.Repository
	runRepo   scanjob.RunRepository
	scheduler DispositionScheduler
	logger    *logger.Logger
}

// NewAggregator creates a parent job status aggregator.
func NewAggregator(jobRepo scanjob.Repository, runRepo scanjob.RunRepository, scheduler DispositionScheduler, log *logger.Logger) *Aggregator {
	return &Aggregator{
		jobRepo:   jobRepo,
		runRepo:   runRepo,
		scheduler: scheduler,
		logger:    log.With("component", "job_aggregator"),
	}
}

// OnRunTerminal re-checks the parent job. A no-op while any run is
// still non-terminal. The completion write is conditional, so only one
// of several concurrent invocations schedules disposition; the
// scheduler's deduplication covers the rest.
func (a *Aggregator) OnRunTerminal(ctx context.Context, jobID shared.ID) {
	log := a.logger.With("scan_job_id", jobID)

	if err := a.aggregate(ctx, jobID, log); err != nil {
		log.WithError(err).Error("job aggregation failed")
	}
}

func (a *Aggregator) aggregate(ctx context.Context, jobID shared.ID, log *logger.Logger) error {
	runs, err := a.runRepo.ListByJobID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	failed := 0
	for _, run := range runs {
		if !run.Status.IsTerminal() {
			return nil
		}
		if run.Status.IsFailure() {
			failed++
		}
	}

	status := scanjob.StatusCompleted
	detail := fmt.Sprintf("all %d runs completed", len(runs))
	switch {
	case len(runs) == 0:
		status = scanjob.StatusCompletedNoRuns
		detail = "no runs recorded"
	case failed > 0:
		status = scanjob.StatusCompletedWithErrors
		detail = fmt.Sprintf("%d of %d runs failed", failed, len(runs))
	}

	won, err := a.jobRepo.CompleteIfRunning(ctx, jobID, status, detail)
	if err != nil {
		return fmt.Errorf("complete scan job: %w", err)
	}
	if !won {
		// Another invocation already completed the job.
		return nil
	}

	log.Info("scan job completed", "status", status, "detail", detail)

	if err := a.scheduler.EnqueueAutoDisposition(ctx, jobID); err != nil {
		return fmt.Errorf("schedule auto-disposition: %w", err)
	}
	return nil
}
