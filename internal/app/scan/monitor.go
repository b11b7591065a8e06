package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adscanio/api/internal/app/ingest"
	"github.com/adscanio/api/internal/infra/scraper"
	"github.com/adscanio/api/internal/metrics"
	"github.com/adscanio/api/pkg/domain/publisher"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// RunChecker polls and fetches results from the scraping platform.
type RunChecker interface {
	PollStatus(ctx context.Context, runID string) (*scraper.RunStatus, error)
	FetchResults(ctx context.Context, datasetID string) ([]json.RawMessage, error)
}

// ResultIngester processes a completed run's raw result items.
type ResultIngester interface {
	IngestRun(ctx context.Context, job *scanjob.ScanJob, run *scanjob.Run, channel *publisher.Channel, items []json.RawMessage) ingest.Result
}

// Monitor drives runs through their state machine based on the
// scraping platform's reported status. All transitions out of the
// started state are conditional writes, so concurrent handlers for the
// same run cannot both claim it.
type Monitor struct {
	jobRepo       scanjob.Repository
	runRepo       scanjob.RunRepository
	publisherRepo publisher.Repository
	checker       RunChecker
	ingester      ResultIngester
	aggregator    *Aggregator
	logger        *logger.Logger
}

// NewMonitor creates a run status monitor.
func NewMonitor(
	jobRepo scanjob.Repository,
	runRepo scanjob.RunRepository,
	publisherRepo publisher.Repository,
	checker RunChecker,
	ingester ResultIngester,
	aggregator *Aggregator,
	log *logger.Logger,
) *Monitor {
	return &Monitor{
		jobRepo:       jobRepo,
		runRepo:       runRepo,
		publisherRepo: publisherRepo,
		checker:       checker,
		ingester:      ingester,
		aggregator:    aggregator,
		logger:        log.With("component", "run_monitor"),
	}
}

// ProcessRun checks one run against the scraping platform and advances
// its state. Safe to call repeatedly and concurrently for the same
// run.
func (m *Monitor) ProcessRun(ctx context.Context, runID shared.ID) error {
	run, err := m.runRepo.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	log := m.logger.With("run_id", run.ID, "scan_job_id", run.JobID, "platform", run.Platform)

	// Terminal states are never re-entered. A run in fetching_results is
	// owned by another handler.
	if run.Status != scanjob.RunStatusStarted {
		log.Debug("run not in started state, skipping", "status", run.Status)
		return nil
	}

	status, err := m.checker.PollStatus(ctx, run.ExternalRunID)
	if err != nil {
		// Transient: the run stays started and the next poll cycle retries.
		return fmt.Errorf("poll run status: %w", err)
	}

	switch {
	case status.State.InProgress():
		return nil

	case status.State.Failed():
		detail := fmt.Sprintf("scrape run ended %s on the platform", status.State)
		return m.finishWithout(ctx, run, scanjob.RunStatusFailed, detail, log)

	case status.State == scraper.RunStateSucceeded:
		return m.processResults(ctx, run, status, log)

	default:
		detail := fmt.Sprintf("unrecognized platform run state %q", status.State)
		return m.finishWithout(ctx, run, scanjob.RunStatusUnknown, detail, log)
	}
}

// finishWithout moves a started run straight to a terminal state with
// no result processing.
func (m *Monitor) finishWithout(ctx context.Context, run *scanjob.Run, to scanjob.RunStatus, detail string, log *logger.Logger) error {
	won, err := m.runRepo.Transition(ctx, run.ID, []scanjob.RunStatus{scanjob.RunStatusStarted}, to, detail)
	if err != nil {
		return fmt.Errorf("transition run: %w", err)
	}
	if !won {
		return nil
	}

	log.Info("run finished", "status", to, "detail", detail)
	metrics.ScanRunsTotal.WithLabelValues(run.Platform, to.String()).Inc()
	m.aggregator.OnRunTerminal(ctx, run.JobID)
	return nil
}

// processResults claims the run, ingests its result items and
// finalizes it as completed or processing_failed.
func (m *Monitor) processResults(ctx context.Context, run *scanjob.Run, status *scraper.RunStatus, log *logger.Logger) error {
	won, err := m.runRepo.Transition(ctx, run.ID,
		[]scanjob.RunStatus{scanjob.RunStatusStarted}, scanjob.RunStatusFetchingResults, "fetching results")
	if err != nil {
		return fmt.Errorf("claim run: %w", err)
	}
	if !won {
		// A concurrent handler claimed the run first.
		return nil
	}
	run.Status = scanjob.RunStatusFetchingResults

	start := time.Now()
	defer func() {
		metrics.RunProcessingDuration.WithLabelValues(run.Platform).Observe(time.Since(start).Seconds())
	}()

	final, detail := m.ingestResults(ctx, run, status, log)

	if err := run.Finalize(final, detail); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if err := m.runRepo.Finalize(ctx, run); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}

	log.Info("run finished", "status", final, "detail", detail,
		"items_processed", run.ItemsProcessed, "item_errors", run.ItemErrors)
	metrics.ScanRunsTotal.WithLabelValues(run.Platform, final.String()).Inc()
	m.aggregator.OnRunTerminal(ctx, run.JobID)
	return nil
}

// ingestResults fetches the run's dataset and delegates per item. Any
// failure here ends the run as processing_failed rather than aborting.
func (m *Monitor) ingestResults(ctx context.Context, run *scanjob.Run, status *scraper.RunStatus, log *logger.Logger) (scanjob.RunStatus, string) {
	items, err := m.checker.FetchResults(ctx, status.DefaultDatasetID)
	if err != nil {
		log.WithError(err).Error("failed to fetch run results")
		return scanjob.RunStatusProcessingFailed, fmt.Sprintf("result fetch failed: %v", err)
	}

	job, err := m.jobRepo.GetByID(ctx, run.JobID)
	if err != nil {
		log.WithError(err).Error("failed to load scan job")
		return scanjob.RunStatusProcessingFailed, fmt.Sprintf("scan job load failed: %v", err)
	}
	channel, err := m.publisherRepo.GetChannel(ctx, run.ChannelID)
	if err != nil {
		log.WithError(err).Error("failed to load channel")
		return scanjob.RunStatusProcessingFailed, fmt.Sprintf("channel load failed: %v", err)
	}

	result := m.ingester.IngestRun(ctx, job, run, channel, items)
	run.ItemsProcessed = result.ItemsProcessed
	run.ItemErrors = result.ItemErrors

	if result.ItemErrors > 0 {
		return scanjob.RunStatusProcessingFailed,
			fmt.Sprintf("processed %d items, %d failed", result.ItemsProcessed, result.ItemErrors)
	}
	return scanjob.RunStatusCompleted, fmt.Sprintf("processed %d items", result.ItemsProcessed)
}
