package content

import (
	"context"

	"github.com/adscanio/api/pkg/domain/shared"
)

// Repository defines the interface for content item persistence.
type Repository interface {
	// Create creates a new content item.
	Create(ctx context.Context, item *Item) error

	// GetByID retrieves a content item by ID.
	GetByID(ctx context.Context, id shared.ID) (*Item, error)

	// ListByJobID lists all content items produced by a scan job.
	ListByJobID(ctx context.Context, jobID shared.ID) ([]*Item, error)
}

// MediaRepository defines the interface for media asset persistence.
type MediaRepository interface {
	// Create creates a new media asset record.
	Create(ctx context.Context, asset *MediaAsset) error

	// ListByContentItem lists all assets stored for a content item.
	ListByContentItem(ctx context.Context, contentItemID shared.ID) ([]*MediaAsset, error)
}
