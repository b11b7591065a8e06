package platforms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adscanio/api/pkg/domain/publisher"
)

// YouTubeAdapter scrapes youtube channels, requesting subtitle
// payloads alongside video metadata.
type YouTubeAdapter struct{}

// NewYouTubeAdapter creates the youtube adapter.
func NewYouTubeAdapter() *YouTubeAdapter {
	return &YouTubeAdapter{}
}

// Platform returns the platform name.
func (a *YouTubeAdapter) Platform() string {
	return "youtube"
}

// BuildScrapeRequest builds the actor input for a channel URL.
func (a *YouTubeAdapter) BuildScrapeRequest(channel *publisher.Channel) (json.RawMessage, error) {
	channelURL := strings.TrimSpace(channel.URL)
	if channelURL == "" {
		return nil, fmt.Errorf("channel url is empty")
	}

	input := map[string]any{
		"startUrls":         []map[string]string{{"url": channelURL}},
		"maxResults":        30,
		"downloadSubtitles": true,
		"subtitlesFormat":   "srt",
	}
	return json.Marshal(input)
}

// ParseResultItem maps one youtube video. Subtitles may arrive inline
// (srt text) or as a download URL.
func (a *YouTubeAdapter) ParseResultItem(raw json.RawMessage) (*ResultItem, error) {
	var video struct {
		ID           string `json:"id"`
		URL          string `json:"url"`
		Title        string `json:"title"`
		Text         string `json:"text"`
		ThumbnailURL string `json:"thumbnailUrl"`
		Subtitles    []struct {
			SRT string `json:"srt"`
			URL string `json:"url"`
		} `json:"subtitles"`
	}
	if err := unmarshalItem(raw, &video); err != nil {
		return nil, err
	}
	if video.URL == "" {
		return nil, fmt.Errorf("youtube item has no url")
	}

	item := &ResultItem{
		ExternalID: video.ID,
		URL:        video.URL,
		Title:      video.Title,
		Caption:    video.Text,
	}

	if video.ThumbnailURL != "" {
		item.Media = append(item.Media, MediaRef{URL: video.ThumbnailURL, Type: "image"})
	}
	if len(video.Subtitles) > 0 {
		if video.Subtitles[0].SRT != "" {
			item.TranscriptText = video.Subtitles[0].SRT
		} else {
			item.TranscriptURL = video.Subtitles[0].URL
		}
	}

	return item, nil
}
