// Package scan contains the scan job orchestration services: job
// initiation, run status monitoring and parent status aggregation.
package scan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adscanio/api/internal/app/platforms"
	"github.com/adscanio/api/internal/metrics"
	"github.com/adscanio/api/pkg/domain/product"
	"github.com/adscanio/api/pkg/domain/publisher"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// Dispatcher submits scrape requests to the scraping platform.
type Dispatcher interface {
	Submit(ctx context.Context, actorID string, input json.RawMessage) (string, error)
}

// InitiateInput is the request to start a scan.
type InitiateInput struct {
	PublisherIDs []shared.ID
	Platforms    []string
	ProductIDs   []shared.ID
	Source       string
	CreatedBy    *shared.ID
	BypassAI     bool
}

// Orchestrator creates scan jobs and dispatches their channel scrapes.
type Orchestrator struct {
	jobRepo       scanjob.Repository
	runRepo       scanjob.RunRepository
	publisherRepo publisher.Repository
	productRepo   product.Repository
	registry      *platforms.Registry
	dispatcher    Dispatcher
	actors        map[string]string
	logger        *logger.Logger
}

// NewOrchestrator creates a scan orchestrator. actors maps normalized
// platform names to scraping platform actor IDs.
func NewOrchestrator(
	jobRepo scanjob.Repository,
	runRepo scanjob.RunRepository,
	publisherRepo publisher.Repository,
	productRepo product.Repository,
	registry *platforms.Registry,
	dispatcher Dispatcher,
	actors map[string]string,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		jobRepo:       jobRepo,
		runRepo:       runRepo,
		publisherRepo: publisherRepo,
		productRepo:   productRepo,
		registry:      registry,
		dispatcher:    dispatcher,
		actors:        actors,
		logger:        log.With("component", "scan_orchestrator"),
	}
}

// Initiate creates a scan job, discovers eligible channels and
// dispatches one scrape per channel. Dispatch failures are isolated:
// one channel's failure never aborts the batch.
//
// The advertiser context is resolved from the first publisher's
// organization. Mixed-organization publisher input is not validated;
// all publishers are assumed to share one advertiser.
func (o *Orchestrator) Initiate(ctx context.Context, input InitiateInput) (*scanjob.ScanJob, error) {
	if len(input.PublisherIDs) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "at least one publisher is required", shared.ErrValidation)
	}

	first, err := o.publisherRepo.GetByID(ctx, input.PublisherIDs[0])
	if err != nil {
		return nil, fmt.Errorf("resolve advertiser context: %w", err)
	}

	if len(input.ProductIDs) > 0 {
		products, err := o.productRepo.ListByIDs(ctx, input.ProductIDs)
		if err != nil {
			return nil, fmt.Errorf("resolve products: %w", err)
		}
		if len(products) != len(input.ProductIDs) {
			return nil, shared.NewDomainError("VALIDATION", "one or more products do not exist", shared.ErrValidation)
		}
	}

	job, err := scanjob.NewScanJob(first.OrganizationID, first.AdvertiserID, input.Source, input.PublisherIDs, input.ProductIDs)
	if err != nil {
		return nil, err
	}
	job.BypassAI = input.BypassAI
	if input.CreatedBy != nil {
		job.SetCreator(*input.CreatedBy)
	}

	if err := o.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create scan job: %w", err)
	}

	log := o.logger.With("scan_job_id", job.ID, "advertiser_id", job.AdvertiserID)

	channels, err := o.publisherRepo.ListActiveChannels(ctx, input.PublisherIDs, input.Platforms)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	started, failed := 0, 0
	for _, channel := range channels {
		dispatched, ok := o.dispatchChannel(ctx, job, channel, log)
		if !ok {
			// Unsupported platform, skipped entirely
			continue
		}
		if dispatched {
			started++
		} else {
			failed++
		}
	}

	job.MarkDispatched(started, failed)
	if err := o.jobRepo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update scan job: %w", err)
	}

	metrics.ScanJobsTotal.WithLabelValues(job.Status.String()).Inc()
	log.Info("scan job dispatched",
		"status", job.Status, "channels", len(channels), "started", started, "failed", failed)

	return job, nil
}

// dispatchChannel attempts one channel. The second return is false
// when the platform is unsupported and no run was recorded at all.
func (o *Orchestrator) dispatchChannel(ctx context.Context, job *scanjob.ScanJob, channel *publisher.Channel, log *logger.Logger) (dispatched, supported bool) {
	platform := publisher.NormalizePlatform(channel.Platform)

	adapter, ok := o.registry.Get(platform)
	if !ok {
		log.Warn("unsupported platform, skipping channel", "platform", channel.Platform, "channel_id", channel.ID)
		return false, false
	}
	actorID, ok := o.actors[platform]
	if !ok {
		log.Warn("no actor configured for platform, skipping channel", "platform", platform, "channel_id", channel.ID)
		return false, false
	}

	input, err := adapter.BuildScrapeRequest(channel)
	if err != nil {
		log.WithError(err).Warn("failed to build scrape request", "channel_id", channel.ID)
		run := scanjob.NewFailedRun(job.ID, channel.ID, platform, nil, fmt.Sprintf("invalid scrape request: %v", err))
		o.createRun(ctx, run, log)
		return false, true
	}

	externalRunID, err := o.dispatcher.Submit(ctx, actorID, input)
	if err != nil {
		log.WithError(err).Warn("scrape dispatch failed", "channel_id", channel.ID)
		run := scanjob.NewFailedRun(job.ID, channel.ID, platform, input, fmt.Sprintf("dispatch failed: %v", err))
		o.createRun(ctx, run, log)
		return false, true
	}

	run := scanjob.NewRun(job.ID, channel.ID, platform, externalRunID, input)
	o.createRun(ctx, run, log)
	return true, true
}

func (o *Orchestrator) createRun(ctx context.Context, run *scanjob.Run, log *logger.Logger) {
	if err := o.runRepo.Create(ctx, run); err != nil {
		log.WithError(err).Error("failed to persist run", "run_id", run.ID)
	}
}
