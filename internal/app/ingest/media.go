// Package ingest turns raw scrape results into persisted content items
// with stored media, and hands complete items to compliance analysis.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adscanio/api/internal/app/platforms"
	"github.com/adscanio/api/internal/metrics"
	"github.com/adscanio/api/pkg/domain/content"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// maxMediaBytes bounds a single media download.
const maxMediaBytes = 256 << 20

// ObjectStore is the object storage interface media uploads go to.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// MediaProcessor downloads, hashes and stores media referenced by
// content items.
type MediaProcessor struct {
	httpClient *http.Client
	store      ObjectStore
	mediaRepo  content.MediaRepository
	logger     *logger.Logger
}

// NewMediaProcessor creates a media processor.
func NewMediaProcessor(store ObjectStore, mediaRepo content.MediaRepository, log *logger.Logger) *MediaProcessor {
	return &MediaProcessor{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		store:      store,
		mediaRepo:  mediaRepo,
		logger:     log.With("component", "media_processor"),
	}
}

// Process downloads one media reference and stores it under a
// deterministic path keyed by content item and media role. Returns nil
// on any download or upload failure; callers must treat nil as "this
// asset unavailable".
func (p *MediaProcessor) Process(ctx context.Context, contentItemID shared.ID, ref platforms.MediaRef) *content.MediaAsset {
	log := p.logger.With("content_item_id", contentItemID, "url", ref.URL, "type", ref.Type)

	data, mimeType, err := p.download(ctx, ref.URL)
	if err != nil {
		log.WithError(err).Warn("media download failed")
		metrics.MediaDownloadsTotal.WithLabelValues(ref.Type, "error").Inc()
		return nil
	}

	// Response header is authoritative; fall back to the expected type.
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = fallbackMimeType(ref.Type)
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("media/%s/%s-%d", contentItemID.String(), ref.Type, ref.Index)

	if err := p.store.Upload(ctx, key, mimeType, data); err != nil {
		log.WithError(err).Warn("media upload failed")
		metrics.MediaDownloadsTotal.WithLabelValues(ref.Type, "error").Inc()
		return nil
	}

	asset, err := content.NewMediaAsset(contentItemID, content.MediaType(ref.Type), key, mimeType, digest, int64(len(data)))
	if err != nil {
		log.WithError(err).Warn("invalid media asset")
		return nil
	}

	if err := p.mediaRepo.Create(ctx, asset); err != nil {
		log.WithError(err).Warn("failed to persist media asset")
		return nil
	}

	metrics.MediaDownloadsTotal.WithLabelValues(ref.Type, "success").Inc()
	metrics.MediaBytesStored.Add(float64(len(data)))
	return asset
}

func (p *MediaProcessor) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media exceeds %d bytes", maxMediaBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func fallbackMimeType(mediaType string) string {
	if mediaType == "video" {
		return "video/mp4"
	}
	return "image/jpeg"
}
