package scanjob

import (
	"encoding/json"
	"time"

	"github.com/adscanio/api/pkg/domain/shared"
)

// Run is one dispatch attempt against one channel. A run's status is
// monotonic: terminal states are never re-entered.
type Run struct {
	ID        shared.ID
	JobID     shared.ID
	ChannelID shared.ID
	Platform  string

	// ExternalRunID is the identifier assigned by the scraping platform.
	// Empty when the dispatch itself failed.
	ExternalRunID string

	Status       RunStatus
	StatusDetail string

	// Input is the scrape request payload sent to the platform, kept for
	// diagnosis and replay.
	Input json.RawMessage

	ItemsProcessed int
	ItemErrors     int

	StartedAt  *time.Time
	FinishedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunStatus represents the run status.
type RunStatus string

const (
	RunStatusStarted          RunStatus = "started"
	RunStatusFailedToStart    RunStatus = "failed_to_start"
	RunStatusFetchingResults  RunStatus = "fetching_results"
	RunStatusCompleted        RunStatus = "completed"
	RunStatusProcessingFailed RunStatus = "processing_failed"
	RunStatusFailed           RunStatus = "failed"
	RunStatusUnknown          RunStatus = "unknown"
)

// IsTerminal returns true if the status is a terminal (final) state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusFailedToStart, RunStatusCompleted, RunStatusProcessingFailed,
		RunStatusFailed, RunStatusUnknown:
		return true
	}
	return false
}

// IsFailure returns true if the status indicates a failed run.
func (s RunStatus) IsFailure() bool {
	switch s {
	case RunStatusFailedToStart, RunStatusProcessingFailed, RunStatusFailed, RunStatusUnknown:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s RunStatus) String() string {
	return string(s)
}

// NonTerminalRunStatuses returns the statuses a run can still leave.
// Used by the conditional status-transition write in the repository.
func NonTerminalRunStatuses() []RunStatus {
	return []RunStatus{RunStatusStarted, RunStatusFetchingResults}
}

// NewRun creates a run for a successfully dispatched scrape request.
func NewRun(jobID, channelID shared.ID, platform, externalRunID string, input json.RawMessage) *Run {
	now := time.Now()
	return &Run{
		ID:            shared.NewID(),
		JobID:         jobID,
		ChannelID:     channelID,
		Platform:      platform,
		ExternalRunID: externalRunID,
		Status:        RunStatusStarted,
		Input:         input,
		StartedAt:     &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewFailedRun creates a run record for a dispatch that never started.
func NewFailedRun(jobID, channelID shared.ID, platform string, input json.RawMessage, detail string) *Run {
	now := time.Now()
	return &Run{
		ID:           shared.NewID(),
		JobID:        jobID,
		ChannelID:    channelID,
		Platform:     platform,
		Status:       RunStatusFailedToStart,
		StatusDetail: detail,
		Input:        input,
		FinishedAt:   &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Finalize moves the run into a terminal status with a human-readable
// detail string. Rejected when the run is already terminal.
func (r *Run) Finalize(status RunStatus, detail string) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "run already finished", shared.ErrConflict)
	}
	if !status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "finalize requires a terminal status", shared.ErrValidation)
	}

	now := time.Now()
	r.Status = status
	r.StatusDetail = detail
	r.FinishedAt = &now
	r.UpdatedAt = now
	return nil
}
