//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package polygon

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Quote represents a single NBBO quote observation for an options
// contract.
type Quote struct {
	SipTimestamp   int64   `json:"sip_timestamp"`
	BidPrice       float64 `json:"bid_price"`
	BidSize        float64 `json:"bid_size"`
	AskPrice       float64 `json:"ask_price"`
	AskSize        float64 `json:"ask_size"`
	BidExchange    int     `json:"bid_exchange"`
	AskExchange    int     `json:"ask_exchange"`
	SequenceNumber int64   `json:"sequence_number"`
}

// quotesResponse represents one page of quote data with cursor pagination
// via NextURL.
type quotesResponse struct {
	Status    string  `json:"status"`
	RequestID string  `json:"request_id"`
	NextURL   string  `json:"next_url"`
	Results   []Quote `json:"results"`
}

// GetOptionQuotes retrieves all quotes for the option ticker in
// [from, to), walking every cursor page. Range semantics match
// GetOptionTrades.
func (c *Client) GetOptionQuotes(ctx context.Context, ticker string, from, to time.Time) ([]Quote, error) {
	params := map[string]string{
		"timestamp.gte": strconv.FormatInt(from.UnixNano(), 10),
		"timestamp.lt":  strconv.FormatInt(to.UnixNano(), 10),
		"order":         "asc",
		"limit":         "50000",
	}

	var quotes []Quote

	var page quotesResponse
	if err := c.get(ctx, "/v3/quotes/"+ticker, params, &page); err != nil {
		return nil, fmt.Errorf("listing quotes for %s: %w", ticker, err)
	}

	quotes = append(quotes, page.Results...)

	for page.NextURL != "" {
		next := page.NextURL
		page = quotesResponse{}
		if err := c.getNextPage(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("listing quotes for %s: %w", ticker, err)
		}

		quotes = append(quotes, page.Results...)
	}

	return quotes, nil
}
