package platforms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adscanio/api/pkg/domain/publisher"
)

// TikTokAdapter scrapes tiktok profiles, requesting subtitle downloads
// so transcripts can be parsed at ingestion.
type TikTokAdapter struct{}

// NewTikTokAdapter creates the tiktok adapter.
func NewTikTokAdapter() *TikTokAdapter {
	return &TikTokAdapter{}
}

// Platform returns the platform name.
func (a *TikTokAdapter) Platform() string {
	return "tiktok"
}

// BuildScrapeRequest builds the actor input for a profile URL.
func (a *TikTokAdapter) BuildScrapeRequest(channel *publisher.Channel) (json.RawMessage, error) {
	profileURL := strings.TrimSpace(channel.URL)
	if profileURL == "" {
		return nil, fmt.Errorf("channel url is empty")
	}

	input := map[string]any{
		"profiles":                []string{profileURL},
		"resultsPerPage":          30,
		"shouldDownloadVideos":    true,
		"shouldDownloadSubtitles": true,
	}
	return json.Marshal(input)
}

// ParseResultItem maps one tiktok video. Subtitles arrive as a list of
// download URLs per language; the first entry is used.
func (a *TikTokAdapter) ParseResultItem(raw json.RawMessage) (*ResultItem, error) {
	var video struct {
		ID          string `json:"id"`
		WebVideoURL string `json:"webVideoUrl"`
		Text        string `json:"text"`
		VideoMeta   struct {
			DownloadAddr string `json:"downloadAddr"`
			CoverURL     string `json:"coverUrl"`
			Subtitles    []struct {
				DownloadLink string `json:"downloadLink"`
				Language     string `json:"language"`
			} `json:"subtitleLinks"`
		} `json:"videoMeta"`
	}
	if err := unmarshalItem(raw, &video); err != nil {
		return nil, err
	}
	if video.WebVideoURL == "" {
		return nil, fmt.Errorf("tiktok item has no url")
	}

	item := &ResultItem{
		ExternalID: video.ID,
		URL:        video.WebVideoURL,
		Caption:    video.Text,
	}

	if video.VideoMeta.DownloadAddr != "" {
		item.Media = append(item.Media, MediaRef{URL: video.VideoMeta.DownloadAddr, Type: "video"})
	}
	if len(video.VideoMeta.Subtitles) > 0 {
		item.TranscriptURL = video.VideoMeta.Subtitles[0].DownloadLink
	}

	return item, nil
}
