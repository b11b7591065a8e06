package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Client enqueues background jobs using Asynq.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		logger: log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueRunCompletion enqueues a completion check for one run.
func (c *Client) EnqueueRunCompletion(ctx context.Context, runID shared.ID) error {
	task, err := NewRunCompletionTask(RunCompletionPayload{RunID: runID.String()})
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue run completion: %w", err)
	}

	c.logger.Info("run completion queued", "task_id", info.ID, "run_id", runID)
	return nil
}

// EnqueueAutoDisposition enqueues the auto-disposition job for a
// completed scan. Idempotent: the task carries a deterministic ID, so
// a duplicate enqueue is reported by the queue and swallowed here.
func (c *Client) EnqueueAutoDisposition(ctx context.Context, jobID shared.ID) error {
	task, err := NewAutoDispositionTask(AutoDispositionPayload{ScanJobID: jobID.String()})
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.logger.Info("auto-disposition already scheduled", "scan_job_id", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue auto-disposition: %w", err)
	}

	c.logger.Info("auto-disposition queued", "task_id", info.ID, "scan_job_id", jobID)
	return nil
}
