package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adscanio/api/pkg/domain/content"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/transcript"
)

// ContentRepository implements content.Repository using PostgreSQL.
type ContentRepository struct {
	db *DB
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(db *DB) *ContentRepository {
	return &ContentRepository{db: db}
}

const contentColumns = `
	id, scan_job_id, run_id, publisher_id, channel_id,
	platform, external_id, url, title, caption,
	transcript, raw, scanned_at, created_at
`

// Create persists a content item. Transcript segments are stored as a
// JSONB array.
func (r *ContentRepository) Create(ctx context.Context, item *content.Item) error {
	var transcriptJSON []byte
	if len(item.Transcript) > 0 {
		var err error
		transcriptJSON, err = json.Marshal(item.Transcript)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript: %w", err)
		}
	}

	query := `
		INSERT INTO content_items (` + contentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID.String(),
		item.JobID.String(),
		item.RunID.String(),
		item.PublisherID.String(),
		item.ChannelID.String(),
		item.Platform,
		nullString(item.ExternalID),
		item.URL,
		nullString(item.Title),
		nullString(item.Caption),
		nullBytes(transcriptJSON),
		nullBytes(item.Raw),
		item.ScannedAt,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create content item: %w", err)
	}
	return nil
}

// GetByID retrieves a content item by ID.
func (r *ContentRepository) GetByID(ctx context.Context, id shared.ID) (*content.Item, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1`
	item, err := r.scanItem(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "content item not found", shared.ErrNotFound)
	}
	return item, err
}

// ListByJobID lists all content items produced by a scan job.
func (r *ContentRepository) ListByJobID(ctx context.Context, jobID shared.ID) ([]*content.Item, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE scan_job_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list content items: %w", err)
	}
	defer rows.Close()

	var items []*content.Item
	for rows.Next() {
		item, err := r.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *ContentRepository) scanItem(row rowScanner) (*content.Item, error) {
	var (
		item           content.Item
		externalID     sql.NullString
		title          sql.NullString
		caption        sql.NullString
		transcriptJSON []byte
		raw            []byte
	)

	err := row.Scan(
		&item.ID, &item.JobID, &item.RunID, &item.PublisherID, &item.ChannelID,
		&item.Platform, &externalID, &item.URL, &title, &caption,
		&transcriptJSON, &raw, &item.ScannedAt, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.ExternalID = nullStringValue(externalID)
	item.Title = nullStringValue(title)
	item.Caption = nullStringValue(caption)
	item.Raw = json.RawMessage(raw)

	var segments []transcript.Segment
	if err := fromJSONB(transcriptJSON, &segments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	item.Transcript = segments

	return &item, nil
}

// MediaRepository implements content.MediaRepository using PostgreSQL.
type MediaRepository struct {
	db *DB
}

// NewMediaRepository creates a new MediaRepository.
func NewMediaRepository(db *DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create persists a media asset record.
func (r *MediaRepository) Create(ctx context.Context, asset *content.MediaAsset) error {
	query := `
		INSERT INTO media_assets (
			id, content_item_id, type, storage_path,
			mime_type, byte_size, sha256, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		asset.ID.String(),
		asset.ContentItemID.String(),
		string(asset.Type),
		asset.StoragePath,
		nullString(asset.MimeType),
		asset.ByteSize,
		nullString(asset.SHA256),
		asset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create media asset: %w", err)
	}
	return nil
}

// ListByContentItem lists all assets stored for a content item.
func (r *MediaRepository) ListByContentItem(ctx context.Context, contentItemID shared.ID) ([]*content.MediaAsset, error) {
	query := `
		SELECT id, content_item_id, type, storage_path,
		       mime_type, byte_size, sha256, created_at
		FROM media_assets
		WHERE content_item_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, contentItemID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list media assets: %w", err)
	}
	defer rows.Close()

	var assets []*content.MediaAsset
	for rows.Next() {
		var (
			asset     content.MediaAsset
			mediaType string
			mimeType  sql.NullString
			sha       sql.NullString
		)
		err := rows.Scan(
			&asset.ID, &asset.ContentItemID, &mediaType, &asset.StoragePath,
			&mimeType, &asset.ByteSize, &sha, &asset.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media asset row: %w", err)
		}
		asset.Type = content.MediaType(mediaType)
		asset.MimeType = nullStringValue(mimeType)
		asset.SHA256 = nullStringValue(sha)
		assets = append(assets, &asset)
	}
	return assets, rows.Err()
}
