package flag

import (
	"context"

	"github.com/adscanio/api/pkg/domain/audit"
	"github.com/adscanio/api/pkg/domain/shared"
)

// Repository defines the interface for flag persistence.
type Repository interface {
	// Create creates a new flag.
	Create(ctx context.Context, f *Flag) error

	// GetByID retrieves a flag by ID.
	GetByID(ctx context.Context, id shared.ID) (*Flag, error)

	// ListByContentItem lists all flags raised on a content item.
	ListByContentItem(ctx context.Context, contentItemID shared.ID) ([]*Flag, error)

	// ListPendingByJob lists pending flags across all content items of a
	// scan job. Used by auto-disposition.
	ListPendingByJob(ctx context.Context, jobID shared.ID) ([]*Flag, error)

	// ListReviewedByRule lists human-reviewed flags for a rule, newest
	// first. Used by the librarian as its example pool.
	ListReviewedByRule(ctx context.Context, ruleID shared.ID, limit int) ([]*Flag, error)

	// ResolveWithAudit atomically transitions a pending flag and writes
	// the audit entry in the same transaction. Returns false when the
	// flag was no longer pending.
	ResolveWithAudit(ctx context.Context, flagID shared.ID, status Status, method ResolutionMethod, entry *audit.Entry) (bool, error)

	// ListByAuditTrigger lists flags whose resolution audit entries were
	// triggered by the given entry. Used to revert a disposition batch.
	ListByAuditTrigger(ctx context.Context, triggerEntryID shared.ID) ([]*Flag, error)

	// ReopenWithAudit atomically returns a resolved flag to pending and
	// writes the audit entry in the same transaction.
	ReopenWithAudit(ctx context.Context, flagID shared.ID, entry *audit.Entry) error
}
