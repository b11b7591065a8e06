package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/adscanio/api/internal/config"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/logger"
)

// Poller periodically scans for runs still in the started state and
// drives completion processing for each. It runs independently of the
// worker pool; the conditional status writes in the run repository
// make concurrent processing of the same run safe.
type Poller struct {
	runRepo   scanjob.RunRepository
	processor RunProcessor
	cron      *cron.Cron
	cfg       config.PollerConfig
	logger    *logger.Logger
}

// NewPoller creates a run status poller.
func NewPoller(runRepo scanjob.RunRepository, processor RunProcessor, cfg config.PollerConfig, log *logger.Logger) *Poller {
	return &Poller{
		runRepo:   runRepo,
		processor: processor,
		cron:      cron.New(),
		cfg:       cfg,
		logger:    log.With("component", "run_poller"),
	}
}

// Start schedules the poll cycle and starts the cron loop.
func (p *Poller) Start() error {
	_, err := p.cron.AddFunc(p.cfg.Schedule, func() {
		ctx := context.Background()
		if err := p.pollOnce(ctx); err != nil {
			p.logger.WithError(err).Error("poll cycle failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid poller schedule %q: %w", p.cfg.Schedule, err)
	}

	p.cron.Start()
	p.logger.Info("run poller started", "schedule", p.cfg.Schedule, "batch_size", p.cfg.BatchSize)
	return nil
}

// Stop stops the cron loop and waits for a running cycle to finish.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.logger.Info("run poller stopped")
}

// pollOnce picks up a batch of started runs and processes them
// concurrently, bounded by MaxConcurrent. One run's failure never
// blocks another's progress.
func (p *Poller) pollOnce(ctx context.Context) error {
	runs, err := p.runRepo.ListByStatus(ctx, scanjob.RunStatusStarted, p.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list started runs: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	p.logger.Debug("poll cycle", "runs", len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)
	for _, run := range runs {
		run := run
		g.Go(func() error {
			if err := p.processor.ProcessRun(gctx, run.ID); err != nil {
				p.logger.WithError(err).Warn("run processing failed", "run_id", run.ID)
			}
			return nil
		})
	}
	return g.Wait()
}
