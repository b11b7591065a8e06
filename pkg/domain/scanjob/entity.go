// Package scanjob contains the scan job aggregate: the master unit of
// work for scanning a set of publisher channels, and the per-channel
// runs dispatched against the scraping platform.
package scanjob

import (
	"time"

	"github.com/adscanio/api/pkg/domain/shared"
)

// ScanJob is the master unit of a content-scanning request. It spans one
// or more channels, each tracked by its own Run.
type ScanJob struct {
	ID             shared.ID
	OrganizationID shared.ID
	AdvertiserID   shared.ID

	// Source identifies how the job was created (manual, scheduled).
	Source    string
	CreatedBy *shared.ID

	PublisherIDs []shared.ID
	ProductIDs   []shared.ID

	// BypassAI skips the compliance analysis pipeline for ingested items.
	BypassAI bool

	Status       Status
	StatusDetail string

	StartedAt   *time.Time
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status represents the scan job status.
type Status string

const (
	StatusInitializing        Status = "initializing"
	StatusRunning             Status = "running"
	StatusPartiallyRunning    Status = "partially_running"
	StatusFailed              Status = "failed"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusCompletedNoRuns     Status = "completed_no_runs"
)

// IsValid checks if the status is a valid status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusInitializing, StatusRunning, StatusPartiallyRunning,
		StatusFailed, StatusCompleted, StatusCompletedWithErrors, StatusCompletedNoRuns:
		return true
	}
	return false
}

// IsTerminal returns true if the status is a terminal (final) state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFailed, StatusCompleted, StatusCompletedWithErrors, StatusCompletedNoRuns:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// NewScanJob creates a new scan job in the initializing state.
func NewScanJob(orgID, advertiserID shared.ID, source string, publisherIDs, productIDs []shared.ID) (*ScanJob, error) {
	if len(publisherIDs) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "at least one publisher is required", shared.ErrValidation)
	}
	if source == "" {
		source = "manual"
	}

	now := time.Now()
	return &ScanJob{
		ID:             shared.NewID(),
		OrganizationID: orgID,
		AdvertiserID:   advertiserID,
		Source:         source,
		PublisherIDs:   publisherIDs,
		ProductIDs:     productIDs,
		Status:         StatusInitializing,
		StartedAt:      &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// SetCreator records the user that initiated the job.
func (j *ScanJob) SetCreator(userID shared.ID) {
	j.CreatedBy = &userID
	j.UpdatedAt = time.Now()
}

// MarkDispatched computes the aggregate status after all channels have
// been attempted: running when every dispatch succeeded, partially
// running on a mix, failed when all dispatches failed, and completed
// with no runs when no eligible channel existed.
func (j *ScanJob) MarkDispatched(started, failed int) {
	now := time.Now()
	switch {
	case started == 0 && failed == 0:
		j.Status = StatusCompletedNoRuns
		j.StatusDetail = "no eligible channels found"
		j.CompletedAt = &now
	case failed == 0:
		j.Status = StatusRunning
		j.StatusDetail = ""
	case started == 0:
		j.Status = StatusFailed
		j.StatusDetail = "all scrape dispatches failed"
		j.CompletedAt = &now
	default:
		j.Status = StatusPartiallyRunning
		j.StatusDetail = ""
	}
	j.UpdatedAt = now
}

// Complete marks the job finished once every run is terminal.
func (j *ScanJob) Complete(anyRunFailed bool, detail string) error {
	if j.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "scan job already finished", shared.ErrConflict)
	}

	now := time.Now()
	if anyRunFailed {
		j.Status = StatusCompletedWithErrors
	} else {
		j.Status = StatusCompleted
	}
	j.StatusDetail = detail
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// IsFinished returns true if the job has reached a terminal status.
func (j *ScanJob) IsFinished() bool {
	return j.Status.IsTerminal()
}
