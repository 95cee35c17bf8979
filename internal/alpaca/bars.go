//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package alpaca

import (
	"context"
	"fmt"
	"time"
)

// pageLimit is the maximum bars requested per page of the historical
// endpoint.
const pageLimit = 10000

// Bar represents a single OHLCV bar. Field names match the abbreviated
// JSON keys from the API; the timestamp is RFC3339.
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
	VWAP      float64   `json:"vw"`
	NumTrades int64     `json:"n"`
}

// barsResponse represents one page of historical bar data with token
// pagination.
type barsResponse struct {
	Symbol        string  `json:"symbol"`
	Bars          []Bar   `json:"bars"`
	NextPageToken *string `json:"next_page_token"`
}

// latestBarResponse represents the latest-bar endpoint's response.
type latestBarResponse struct {
	Symbol string `json:"symbol"`
	Bar    *Bar   `json:"bar"`
}

// GetHistoricalBars retrieves all bars for the symbol between from and to
// at the given timeframe (e.g. "1Min"), walking the page token until the
// vendor reports no further pages.
func (c *Client) GetHistoricalBars(ctx context.Context, symbol string, from, to time.Time, timeframe string) ([]Bar, error) {
	var bars []Bar

	pageToken := ""
	for {
		params := map[string]string{
			"timeframe":  timeframe,
			"start":      from.UTC().Format(time.RFC3339),
			"end":        to.UTC().Format(time.RFC3339),
			"limit":      fmt.Sprint(pageLimit),
			"adjustment": "raw",
			"page_token": pageToken,
		}

		var page barsResponse
		if err := c.get(ctx, "/v2/stocks/"+symbol+"/bars", params, &page); err != nil {
			return nil, fmt.Errorf("listing bars for %s: %w", symbol, err)
		}

		bars = append(bars, page.Bars...)

		if page.NextPageToken == nil || *page.NextPageToken == "" {
			return bars, nil
		}

		pageToken = *page.NextPageToken
	}
}

// GetLatestBar retrieves the most recent minute bar for the symbol, or
// nil when the vendor has none.
func (c *Client) GetLatestBar(ctx context.Context, symbol string) (*Bar, error) {
	var resp latestBarResponse
	if err := c.get(ctx, "/v2/stocks/"+symbol+"/bars/latest", nil, &resp); err != nil {
		return nil, fmt.Errorf("latest bar for %s: %w", symbol, err)
	}

	return resp.Bar, nil
}
