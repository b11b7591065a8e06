// Package product contains the product read model owned by the
// management subsystem.
package product

import (
	"context"

	"github.com/adscanio/api/pkg/domain/shared"
)

// Product is an advertiser's product that a scan can focus on.
type Product struct {
	ID           shared.ID
	AdvertiserID shared.ID
	Name         string
}

// Repository defines read-only access to products.
type Repository interface {
	// GetByID retrieves a product by ID.
	GetByID(ctx context.Context, id shared.ID) (*Product, error)

	// ListByIDs retrieves products by their IDs, skipping unknown ones.
	ListByIDs(ctx context.Context, ids []shared.ID) ([]*Product, error)
}
