package platforms

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/adscanio/api/pkg/domain/publisher"
)

// InstagramAdapter scrapes instagram profiles. The scrape request is
// keyed by the profile handle extracted from the channel URL.
type InstagramAdapter struct{}

// NewInstagramAdapter creates the instagram adapter.
func NewInstagramAdapter() *InstagramAdapter {
	return &InstagramAdapter{}
}

// Platform returns the platform name.
func (a *InstagramAdapter) Platform() string {
	return "instagram"
}

// BuildScrapeRequest builds the actor input from the profile handle.
func (a *InstagramAdapter) BuildScrapeRequest(channel *publisher.Channel) (json.RawMessage, error) {
	handle, err := extractInstagramHandle(channel.URL)
	if err != nil {
		return nil, err
	}

	input := map[string]any{
		"usernames":    []string{handle},
		"resultsType":  "posts",
		"resultsLimit": 30,
	}
	return json.Marshal(input)
}

// ParseResultItem maps one instagram post.
func (a *InstagramAdapter) ParseResultItem(raw json.RawMessage) (*ResultItem, error) {
	var post struct {
		ID          string `json:"id"`
		ShortCode   string `json:"shortCode"`
		URL         string `json:"url"`
		Caption     string `json:"caption"`
		Type        string `json:"type"` // Image, Video, Sidecar
		DisplayURL  string `json:"displayUrl"`
		VideoURL    string `json:"videoUrl"`
		ChildPosts  []struct {
			Type       string `json:"type"`
			DisplayURL string `json:"displayUrl"`
			VideoURL   string `json:"videoUrl"`
		} `json:"childPosts"`
	}
	if err := unmarshalItem(raw, &post); err != nil {
		return nil, err
	}
	if post.URL == "" {
		return nil, fmt.Errorf("instagram item has no url")
	}

	item := &ResultItem{
		ExternalID: post.ID,
		URL:        post.URL,
		Caption:    post.Caption,
	}
	if item.ExternalID == "" {
		item.ExternalID = post.ShortCode
	}

	switch post.Type {
	case "Sidecar":
		for i, child := range post.ChildPosts {
			if child.VideoURL != "" {
				item.Media = append(item.Media, MediaRef{URL: child.VideoURL, Type: "video", Index: i})
			} else if child.DisplayURL != "" {
				item.Media = append(item.Media, MediaRef{URL: child.DisplayURL, Type: "image", Index: i})
			}
		}
	case "Video":
		if post.VideoURL != "" {
			item.Media = append(item.Media, MediaRef{URL: post.VideoURL, Type: "video"})
		}
	default:
		if post.DisplayURL != "" {
			item.Media = append(item.Media, MediaRef{URL: post.DisplayURL, Type: "image"})
		}
	}

	return item, nil
}

// extractInstagramHandle pulls the profile handle out of a channel URL
// such as https://www.instagram.com/somebrand/. Bare handles are
// accepted as-is.
func extractInstagramHandle(channelURL string) (string, error) {
	trimmed := strings.TrimSpace(channelURL)
	if trimmed == "" {
		return "", fmt.Errorf("channel url is empty")
	}

	if !strings.Contains(trimmed, "/") {
		return strings.TrimPrefix(trimmed, "@"), nil
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid channel url: %w", err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", fmt.Errorf("no profile handle in channel url %q", channelURL)
	}
	return strings.TrimPrefix(segments[0], "@"), nil
}
