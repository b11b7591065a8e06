// Package jobs contains the background job queue: task definitions,
// the enqueueing client, the worker and the run status poller.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// Task types
const (
	// TypeRunCompletion checks one run against the scraping platform
	// and processes its results when finished.
	TypeRunCompletion = "scan:run_completion"

	// TypeAutoDisposition runs auto-disposition for one completed scan
	// job. Enqueued with a deterministic task ID, so repeat scheduling
	// is deduplicated by the queue.
	TypeAutoDisposition = "scan:auto_disposition"
)

// RunCompletionPayload identifies the run to check.
type RunCompletionPayload struct {
	RunID string `json:"run_id"`
}

// AutoDispositionPayload identifies the completed scan job.
type AutoDispositionPayload struct {
	ScanJobID string `json:"scan_job_id"`
}

// NewRunCompletionTask creates a run completion task.
func NewRunCompletionTask(payload RunCompletionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal run completion payload: %w", err)
	}
	return asynq.NewTask(TypeRunCompletion, data,
		asynq.MaxRetry(5),
		asynq.Timeout(15*time.Minute),
		asynq.Queue("scan"),
	), nil
}

// NewAutoDispositionTask creates an auto-disposition task keyed by the
// scan job ID.
func NewAutoDispositionTask(payload AutoDispositionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal auto-disposition payload: %w", err)
	}
	return asynq.NewTask(TypeAutoDisposition, data,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("disposition"),
		asynq.TaskID("disposition:"+payload.ScanJobID),
		asynq.Retention(24*time.Hour),
	), nil
}

// RunProcessor checks and advances one run.
type RunProcessor interface {
	ProcessRun(ctx context.Context, runID shared.ID) error
}

// DispositionRunner runs auto-disposition for one scan job.
type DispositionRunner interface {
	ProcessJob(ctx context.Context, jobID shared.ID) error
}

// TaskHandler dispatches queue tasks to the application services.
type TaskHandler struct {
	runs        RunProcessor
	disposition DispositionRunner
	logger      *logger.Logger
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(runs RunProcessor, disposition DispositionRunner, log *logger.Logger) *TaskHandler {
	return &TaskHandler{
		runs:        runs,
		disposition: disposition,
		logger:      log.With("component", "task_handler"),
	}
}

// RegisterHandlers registers all task handlers on the mux.
func (h *TaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeRunCompletion, h.HandleRunCompletion)
	mux.HandleFunc(TypeAutoDisposition, h.HandleAutoDisposition)
}

// HandleRunCompletion processes a run completion task.
func (h *TaskHandler) HandleRunCompletion(ctx context.Context, task *asynq.Task) error {
	var payload RunCompletionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal run completion payload: %v: %w", err, asynq.SkipRetry)
	}

	runID, err := shared.IDFromString(payload.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", payload.RunID, asynq.SkipRetry)
	}

	if err := h.runs.ProcessRun(ctx, runID); err != nil {
		h.logger.WithError(err).Warn("run completion processing failed", "run_id", runID)
		return err
	}
	return nil
}

// HandleAutoDisposition processes an auto-disposition task.
func (h *TaskHandler) HandleAutoDisposition(ctx context.Context, task *asynq.Task) error {
	var payload AutoDispositionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal auto-disposition payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID, err := shared.IDFromString(payload.ScanJobID)
	if err != nil {
		return fmt.Errorf("invalid scan job id %q: %w", payload.ScanJobID, asynq.SkipRetry)
	}

	if err := h.disposition.ProcessJob(ctx, jobID); err != nil {
		h.logger.WithError(err).Warn("auto-disposition failed", "scan_job_id", jobID)
		return err
	}
	return nil
}
