package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/adscanio/api/pkg/domain/publisher"
	"github.com/adscanio/api/pkg/domain/shared"
)

// PublisherRepository implements publisher.Repository using PostgreSQL.
// Read-only; publishers and channels are owned by the management
// subsystem.
type PublisherRepository struct {
	db *DB
}

// NewPublisherRepository creates a new PublisherRepository.
func NewPublisherRepository(db *DB) *PublisherRepository {
	return &PublisherRepository{db: db}
}

// GetByID retrieves a publisher by ID.
func (r *PublisherRepository) GetByID(ctx context.Context, id shared.ID) (*publisher.Publisher, error) {
	query := `SELECT id, organization_id, advertiser_id, name FROM publishers WHERE id = $1`

	var p publisher.Publisher
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&p.ID, &p.OrganizationID, &p.AdvertiserID, &p.Name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "publisher not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get publisher: %w", err)
	}
	return &p, nil
}

// ListActiveChannels lists active channels for the given publishers,
// restricted to the given platforms. Platform matching is
// case-insensitive; an empty platform list matches all.
func (r *PublisherRepository) ListActiveChannels(ctx context.Context, publisherIDs []shared.ID, platforms []string) ([]*publisher.Channel, error) {
	if len(publisherIDs) == 0 {
		return nil, nil
	}

	normalized := make([]string, len(platforms))
	for i, p := range platforms {
		normalized[i] = publisher.NormalizePlatform(p)
	}

	query := `
		SELECT id, publisher_id, platform, url, status
		FROM channels
		WHERE publisher_id = ANY($1)
		  AND status = 'active'
		  AND ($2 = 0 OR LOWER(platform) = ANY($3))
		ORDER BY publisher_id, platform
	`

	rows, err := r.db.QueryContext(ctx, query,
		pq.Array(idStrings(publisherIDs)), len(normalized), pq.Array(normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []*publisher.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// GetChannel retrieves a channel by ID.
func (r *PublisherRepository) GetChannel(ctx context.Context, id shared.ID) (*publisher.Channel, error) {
	query := `SELECT id, publisher_id, platform, url, status FROM channels WHERE id = $1`
	ch, err := scanChannel(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "channel not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return ch, nil
}

func scanChannel(row rowScanner) (*publisher.Channel, error) {
	var (
		ch     publisher.Channel
		status string
	)
	if err := row.Scan(&ch.ID, &ch.PublisherID, &ch.Platform, &ch.URL, &status); err != nil {
		return nil, err
	}
	ch.Status = publisher.ChannelStatus(status)
	return &ch, nil
}
