//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.polygon.io"

// StatusError is returned when the vendor answers with a non-200 status.
// The body is preserved for logging; callers treat any StatusError as a
// vendor-side failure.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("polygon: API error (status %d): %s", e.StatusCode, e.Body)
}

// Client is the HTTP client for the Polygon REST API. It handles
// authentication by appending the API key as a query parameter to all
// requests, including cursor-pagination follow-ups.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Polygon API client with the given API key.
// It configures a default HTTP client with a 30-second timeout.
func NewClient(apiKey string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBaseURL overrides the client's base URL. Used to point the client at
// mock servers in tests and at alternate vendor environments.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// get performs an authenticated GET request to the given API path with
// optional query parameters. It appends the API key to the request and
// unmarshals the JSON response into the provided result interface.
func (c *Client) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	q := u.Query()
	q.Set("apiKey", c.apiKey)
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	return c.fetch(ctx, u.String(), result)
}

// getNextPage fetches a pagination cursor URL exactly as the vendor
// provided it, re-attaching only the API key. Base parameters are never
// re-added; the cursor already encodes them.
func (c *Client) getNextPage(ctx context.Context, nextURL string, result interface{}) error {
	u, err := url.Parse(nextURL)
	if err != nil {
		return fmt.Errorf("invalid next_url: %w", err)
	}

	q := u.Query()
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()

	return c.fetch(ctx, u.String(), result)
}

// fetch runs a single GET and decodes the JSON body.
func (c *Client) fetch(ctx context.Context, fullURL string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// ConvertTimestamp converts a vendor timestamp into an instant. Trade and
// quote feeds carry nanosecond SIP timestamps, which are reduced to
// millisecond precision; everything else is already milliseconds.
func ConvertTimestamp(value int64, isNanoseconds bool) time.Time {
	ms := value
	if isNanoseconds {
		ms = value / 1_000_000
	}
	return time.UnixMilli(ms).UTC()
}
