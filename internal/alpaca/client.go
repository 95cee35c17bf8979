//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultDataURL = "https://data.alpaca.markets"

// StatusError is returned when the vendor answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("alpaca: API error (status %d): %s", e.StatusCode, e.Body)
}

// Client is the HTTP client for the Alpaca market data API. Requests
// authenticate via the key-id and secret-key headers.
type Client struct {
	baseURL    string
	keyID      string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new Alpaca data client with the given credentials.
// It configures a default HTTP client with a 30-second timeout.
func NewClient(keyID, secretKey string) *Client {
	return &Client{
		baseURL:   defaultDataURL,
		keyID:     keyID,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBaseURL overrides the client's base URL. Used to point the client at
// mock servers in tests and at alternate data environments.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// get performs an authenticated GET request to the given API path with
// optional query parameters and unmarshals the JSON response into the
// provided result interface.
func (c *Client) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)

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
