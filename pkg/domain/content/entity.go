// Package content contains the scraped content aggregate: one
// normalized piece of content per scrape result item, plus the media
// assets stored for it.
package content

import (
	"encoding/json"
	"time"

	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/transcript"
)

// Item is one scraped unit of content (post, video, page), created
// exactly once per successfully ingested scrape result item and
// immutable thereafter.
type Item struct {
	ID          shared.ID
	JobID       shared.ID
	RunID       shared.ID
	PublisherID shared.ID
	ChannelID   shared.ID

	Platform   string
	ExternalID string
	URL        string
	Title      string
	Caption    string

	// Transcript is nil for content without subtitles; when present it
	// is time-ordered and free of overlaps.
	Transcript []transcript.Segment

	// Raw is the source payload as returned by the scraping platform.
	Raw json.RawMessage

	ScannedAt time.Time
	CreatedAt time.Time
}

// MediaType classifies a stored media asset.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// IsValid checks if the media type is a valid value.
func (t MediaType) IsValid() bool {
	return t == MediaTypeImage || t == MediaTypeVideo
}

// MediaAsset is a stored media file belonging to a content item.
type MediaAsset struct {
	ID            shared.ID
	ContentItemID shared.ID
	Type          MediaType
	StoragePath   string
	MimeType      string
	ByteSize      int64
	SHA256        string
	CreatedAt     time.Time
}

// NewItem creates a content item for an ingested scrape result.
func NewItem(jobID, runID, publisherID, channelID shared.ID, platform, externalID, url string) (*Item, error) {
	if platform == "" {
		return nil, shared.NewDomainError("VALIDATION", "platform is required", shared.ErrValidation)
	}
	if url == "" {
		return nil, shared.NewDomainError("VALIDATION", "url is required", shared.ErrValidation)
	}

	now := time.Now()
	return &Item{
		ID:          shared.NewID(),
		JobID:       jobID,
		RunID:       runID,
		PublisherID: publisherID,
		ChannelID:   channelID,
		Platform:    platform,
		ExternalID:  externalID,
		URL:         url,
		ScannedAt:   now,
		CreatedAt:   now,
	}, nil
}

// HasTranscript returns true when a non-empty transcript is attached.
func (i *Item) HasTranscript() bool {
	return len(i.Transcript) > 0
}

// NewMediaAsset creates a media asset record for a stored file.
func NewMediaAsset(contentItemID shared.ID, mediaType MediaType, storagePath, mimeType, sha256 string, byteSize int64) (*MediaAsset, error) {
	if !mediaType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid media type", shared.ErrValidation)
	}
	if storagePath == "" {
		return nil, shared.NewDomainError("VALIDATION", "storage path is required", shared.ErrValidation)
	}

	return &MediaAsset{
		ID:            shared.NewID(),
		ContentItemID: contentItemID,
		Type:          mediaType,
		StoragePath:   storagePath,
		MimeType:      mimeType,
		ByteSize:      byteSize,
		SHA256:        sha256,
		CreatedAt:     time.Now(),
	}, nil
}
