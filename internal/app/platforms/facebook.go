package platforms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adscanio/api/pkg/domain/publisher"
)

// FacebookAdapter scrapes facebook pages. The scrape request targets
// the page URL normalized to its posts listing.
type FacebookAdapter struct{}

// NewFacebookAdapter creates the facebook adapter.
func NewFacebookAdapter() *FacebookAdapter {
	return &FacebookAdapter{}
}

// Platform returns the platform name.
func (a *FacebookAdapter) Platform() string {
	return "facebook"
}

// BuildScrapeRequest builds the actor input from the normalized page
// URL.
func (a *FacebookAdapter) BuildScrapeRequest(channel *publisher.Channel) (json.RawMessage, error) {
	pageURL := normalizeFacebookURL(channel.URL)
	if pageURL == "" {
		return nil, fmt.Errorf("channel url is empty")
	}

	input := map[string]any{
		"startUrls":    []map[string]string{{"url": pageURL}},
		"resultsLimit": 30,
	}
	return json.Marshal(input)
}

// ParseResultItem maps one facebook post.
func (a *FacebookAdapter) ParseResultItem(raw json.RawMessage) (*ResultItem, error) {
	var post struct {
		PostID string `json:"postId"`
		URL    string `json:"url"`
		Text   string `json:"text"`
		Media  []struct {
			Type     string `json:"type"` // photo, video
			URL      string `json:"url"`
			VideoURL string `json:"videoUrl"`
		} `json:"media"`
	}
	if err := unmarshalItem(raw, &post); err != nil {
		return nil, err
	}
	if post.URL == "" {
		return nil, fmt.Errorf("facebook item has no url")
	}

	item := &ResultItem{
		ExternalID: post.PostID,
		URL:        post.URL,
		Caption:    post.Text,
	}

	for i, m := range post.Media {
		switch m.Type {
		case "video":
			mediaURL := m.VideoURL
			if mediaURL == "" {
				mediaURL = m.URL
			}
			if mediaURL != "" {
				item.Media = append(item.Media, MediaRef{URL: mediaURL, Type: "video", Index: i})
			}
		default:
			if m.URL != "" {
				item.Media = append(item.Media, MediaRef{URL: m.URL, Type: "image", Index: i})
			}
		}
	}

	return item, nil
}

// normalizeFacebookURL strips query strings and trailing slashes and
// appends the posts suffix the scraper expects.
func normalizeFacebookURL(channelURL string) string {
	trimmed := strings.TrimSpace(channelURL)
	if trimmed == "" {
		return ""
	}
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/posts") {
		return trimmed
	}
	return trimmed + "/posts"
}
