package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/adscanio/api/pkg/domain/product"
	"github.com/adscanio/api/pkg/domain/shared"
)

// ProductRepository implements product.Repository using PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID retrieves a product by ID.
func (r *ProductRepository) GetByID(ctx context.Context, id shared.ID) (*product.Product, error) {
	query := `SELECT id, advertiser_id, name FROM products WHERE id = $1`

	var p product.Product
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(&p.ID, &p.AdvertiserID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "product not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ListByIDs retrieves products by their IDs, skipping unknown ones.
func (r *ProductRepository) ListByIDs(ctx context.Context, ids []shared.ID) ([]*product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, advertiser_id, name FROM products WHERE id = ANY($1) ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(idStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*product.Product
	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.AdvertiserID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}
