// Package scraper implements the client for the external scraping
// platform that executes channel scrapes as actor runs.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/adscanio/api/internal/config"
)

// RunState is the scraping platform's own run lifecycle state.
type RunState string

const (
	RunStateReady     RunState = "READY"
	RunStateRunning   RunState = "RUNNING"
	RunStateSucceeded RunState = "SUCCEEDED"
	RunStateFailed    RunState = "FAILED"
	RunStateTimedOut  RunState = "TIMED-OUT"
	RunStateAborted   RunState = "ABORTED"
)

// InProgress reports whether the run has not reached a platform
// terminal state yet.
func (s RunState) InProgress() bool {
	return s == RunStateReady || s == RunStateRunning
}

// Failed reports whether the run ended without producing results.
func (s RunState) Failed() bool {
	return s == RunStateFailed || s == RunStateTimedOut || s == RunStateAborted
}

// RunStatus is the platform's view of a submitted run.
type RunStatus struct {
	RunID            string
	State            RunState
	DefaultDatasetID string
	StartedAt        *time.Time
	FinishedAt       *time.Time
}

// Client talks to the scraping platform's REST API. Run submissions
// are rate limited across all callers sharing the client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a scraping platform client from configuration.
func NewClient(cfg *config.ScraperConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.DispatchRatePerSecond), cfg.DispatchBurst),
	}
}

// Submit starts an actor run with the given input and returns the
// platform run ID. Blocks on the dispatch rate limiter first.
func (c *Client) Submit(ctx context.Context, actorID string, input json.RawMessage) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("dispatch rate limit wait: %w", err)
	}

	// Actor IDs use "/" between owner and name; the API wants "~".
	path := fmt.Sprintf("/v2/acts/%s/runs", url.PathEscape(strings.ReplaceAll(actorID, "/", "~")))

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, path, input, &resp); err != nil {
		return "", fmt.Errorf("failed to submit actor run: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("scraping platform returned no run id")
	}
	return resp.Data.ID, nil
}

// PollStatus retrieves the current status of a run.
func (c *Client) PollStatus(ctx context.Context, runID string) (*RunStatus, error) {
	var resp struct {
		Data struct {
			ID               string     `json:"id"`
			Status           string     `json:"status"`
			DefaultDatasetID string     `json:"defaultDatasetId"`
			StartedAt        *time.Time `json:"startedAt"`
			FinishedAt       *time.Time `json:"finishedAt"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/v2/actor-runs/%s", url.PathEscape(runID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to poll run status: %w", err)
	}

	return &RunStatus{
		RunID:            resp.Data.ID,
		State:            RunState(resp.Data.Status),
		DefaultDatasetID: resp.Data.DefaultDatasetID,
		StartedAt:        resp.Data.StartedAt,
		FinishedAt:       resp.Data.FinishedAt,
	}, nil
}

// FetchResults downloads the result items of a finished run's dataset.
// Each element is one raw scrape result item.
func (c *Client) FetchResults(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	path := fmt.Sprintf("/v2/datasets/%s/items?format=json", url.PathEscape(datasetID))

	var items []json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, fmt.Errorf("failed to fetch run results: %w", err)
	}
	return items, nil
}

// FetchStoredText downloads auxiliary text (such as a subtitle file)
// stored by the run under a key-value store URL. The URL may point
// outside the platform; authentication is only attached for platform
// URLs.
func (c *Client) FetchStoredText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if strings.HasPrefix(rawURL, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch stored text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stored text fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read stored text: %w", err)
	}
	return string(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, body json.RawMessage, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("scraping platform error: status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
