package audit

import (
	"context"

	"github.com/adscanio/api/pkg/domain/shared"
)

// Repository defines the interface for audit log persistence. Entries
// are append-only; there is no update or delete.
type Repository interface {
	// Create appends an audit entry.
	Create(ctx context.Context, entry *Entry) error

	// GetByID retrieves an entry by ID.
	GetByID(ctx context.Context, id shared.ID) (*Entry, error)

	// GetLatestByAction retrieves the most recent entry with the given
	// action for an organization, or nil when none exists.
	GetLatestByAction(ctx context.Context, organizationID shared.ID, action string) (*Entry, error)

	// ListByTrigger lists entries triggered by the given entry.
	ListByTrigger(ctx context.Context, triggerEntryID shared.ID) ([]*Entry, error)
}
