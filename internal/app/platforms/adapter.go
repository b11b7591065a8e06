// Package platforms contains the per-platform adapters that translate
// between publisher channels, scrape request payloads, and raw scrape
// result items.
package platforms

import (
	"encoding/json"
	"fmt"

	"github.com/adscanio/api/pkg/domain/publisher"
)

// MediaRef is a reference to a downloadable media file found in a
// scrape result item. Index distinguishes files of multi-image posts.
type MediaRef struct {
	URL   string
	Type  string // "image" or "video"
	Index int
}

// ResultItem is the canonical shape of one scrape result after
// adapter mapping.
type ResultItem struct {
	ExternalID string
	URL        string
	Title      string
	Caption    string
	Media      []MediaRef

	// TranscriptText is the subtitle payload when delivered inline.
	TranscriptText string

	// TranscriptURL points at an out-of-band subtitle payload that must
	// be fetched from the scraping platform's content store.
	TranscriptURL string
}

// Adapter maps between a platform's channel shape and its scrape
// request and result formats.
type Adapter interface {
	// Platform returns the normalized platform name this adapter serves.
	Platform() string

	// BuildScrapeRequest builds the platform-specific actor input for a
	// channel.
	BuildScrapeRequest(channel *publisher.Channel) (json.RawMessage, error)

	// ParseResultItem maps one raw scrape result item into canonical
	// fields and media references.
	ParseResultItem(raw json.RawMessage) (*ResultItem, error)
}

// Registry holds the known adapters keyed by normalized platform name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[publisher.NormalizePlatform(a.Platform())] = a
	}
	return r
}

// DefaultRegistry returns a registry with all supported platforms.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewInstagramAdapter(),
		NewFacebookAdapter(),
		NewTikTokAdapter(),
		NewYouTubeAdapter(),
	)
}

// Get looks up the adapter for a platform name. Returns false when the
// platform is unsupported.
func (r *Registry) Get(platform string) (Adapter, bool) {
	a, ok := r.adapters[publisher.NormalizePlatform(platform)]
	return a, ok
}

func unmarshalItem(raw json.RawMessage, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("malformed result item: %w", err)
	}
	return nil
}
