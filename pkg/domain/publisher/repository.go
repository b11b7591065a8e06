package publisher

import (
	"context"

	"github.com/adscanio/api/pkg/domain/shared"
)

// Repository defines read-only access to publishers and channels.
type Repository interface {
	// GetByID retrieves a publisher by ID.
	GetByID(ctx context.Context, id shared.ID) (*Publisher, error)

	// ListActiveChannels lists active channels for the given publishers,
	// restricted to the given platforms (case-insensitive). An empty
	// platform list matches all platforms.
	ListActiveChannels(ctx context.Context, publisherIDs []shared.ID, platforms []string) ([]*Channel, error)

	// GetChannel retrieves a channel by ID.
	GetChannel(ctx context.Context, id shared.ID) (*Channel, error)
}
