// Package flag contains the compliance flag aggregate: one persisted
// ruling of a content item against a specific rule.
package flag

import (
	"time"

	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/shared"
)

// Ruling is the evaluator's verdict for one rule and context.
type Ruling string

const (
	RulingCompliant Ruling = "compliant"
	RulingViolation Ruling = "violation"
)

// IsValid checks if the ruling is a valid value.
func (r Ruling) IsValid() bool {
	return r == RulingCompliant || r == RulingViolation
}

// Status represents the flag review status.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRemediating Status = "remediating"
	StatusClosed      Status = "closed"
)

// IsValid checks if the status is a valid value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRemediating, StatusClosed:
		return true
	}
	return false
}

// ResolutionMethod records how a flag left the pending state.
type ResolutionMethod string

const (
	ResolutionAIAutoClose     ResolutionMethod = "ai_auto_close"
	ResolutionAIAutoRemediate ResolutionMethod = "ai_auto_remediate"
	ResolutionHumanReview     ResolutionMethod = "human_review"
)

// Modality identifies which part of the content the flag was raised on.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
)

// Flag is one evaluator ruling against one rule for one content item,
// optionally scoped to a product.
type Flag struct {
	ID            shared.ID
	ContentItemID shared.ID
	JobID         shared.ID
	RuleID        shared.ID
	RuleType      rule.RuleType
	RuleVersion   int
	ProductID     *shared.ID

	Modality Modality

	// ContextText is the content span the ruling refers to.
	ContextText string

	// SourceLocation points at where in the content the span was found
	// (e.g. "caption", "image:2", "transcript").
	SourceLocation string

	// Transcript time range, set for transcript-sourced flags.
	TranscriptStartMs *int64
	TranscriptEndMs   *int64

	Ruling     Ruling
	Confidence *float64
	Reasoning  string

	Status           Status
	ResolutionMethod *ResolutionMethod

	// Librarian usage during evaluation.
	LibrarianConsulted    bool
	LibrarianExampleCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a pending flag.
func New(contentItemID, jobID, ruleID shared.ID, ruleType rule.RuleType, ruleVersion int, modality Modality, ruling Ruling) (*Flag, error) {
	if !ruling.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid ruling", shared.ErrValidation)
	}

	now := time.Now()
	return &Flag{
		ID:            shared.NewID(),
		ContentItemID: contentItemID,
		JobID:         jobID,
		RuleID:        ruleID,
		RuleType:      ruleType,
		RuleVersion:   ruleVersion,
		Modality:      modality,
		Ruling:        ruling,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ApplyBypass finalizes the flag at creation time when the evaluator
// confidence reaches the rule's bypass threshold: compliant rulings
// close, violations move straight to remediation. Returns true when the
// bypass applied.
func (f *Flag) ApplyBypass(threshold *float64) bool {
	if threshold == nil || f.Confidence == nil || *f.Confidence < *threshold {
		return false
	}

	now := time.Now()
	switch f.Ruling {
	case RulingCompliant:
		f.Status = StatusClosed
		method := ResolutionAIAutoClose
		f.ResolutionMethod = &method
	case RulingViolation:
		f.Status = StatusRemediating
		method := ResolutionAIAutoRemediate
		f.ResolutionMethod = &method
	default:
		return false
	}
	f.UpdatedAt = now
	return true
}

// IsAutoResolved reports whether the flag sits in a resolved status
// reached by an automated method.
func (f *Flag) IsAutoResolved() bool {
	if f.Status == StatusPending || f.ResolutionMethod == nil {
		return false
	}
	return *f.ResolutionMethod == ResolutionAIAutoClose || *f.ResolutionMethod == ResolutionAIAutoRemediate
}

// Resolve transitions a pending flag into a resolved status.
func (f *Flag) Resolve(status Status, method ResolutionMethod) error {
	if f.Status != StatusPending {
		return shared.NewDomainError("INVALID_STATE", "only pending flags can be resolved", shared.ErrConflict)
	}
	if status == StatusPending {
		return shared.NewDomainError("INVALID_STATE", "cannot resolve to pending", shared.ErrValidation)
	}

	f.Status = status
	f.ResolutionMethod = &method
	f.UpdatedAt = time.Now()
	return nil
}
