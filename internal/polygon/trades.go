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

// Trade represents a single tick-level trade record for an options
// contract. Timestamps are nanosecond-precision from both the participant
// and the SIP.
type Trade struct {
	SipTimestamp         int64   `json:"sip_timestamp"`
	ParticipantTimestamp int64   `json:"participant_timestamp"`
	Price                float64 `json:"price"`
	Size                 float64 `json:"size"`
	Conditions           []int   `json:"conditions"`
	Exchange             int     `json:"exchange"`
	Tape                 int     `json:"tape"`
	SequenceNumber       int64   `json:"sequence_number"`
}

// tradesResponse represents one page of tick-level trade data with cursor
// pagination via NextURL.
type tradesResponse struct {
	Status    string  `json:"status"`
	RequestID string  `json:"request_id"`
	NextURL   string  `json:"next_url"`
	Results   []Trade `json:"results"`
}

// GetOptionTrades retrieves all trades for the option ticker in
// [from, to), walking every cursor page. The range filter is expressed in
// nanoseconds against the SIP timestamp; subsequent pages are fetched from
// the vendor-provided next_url without re-adding the base parameters.
func (c *Client) GetOptionTrades(ctx context.Context, ticker string, from, to time.Time) ([]Trade, error) {
	params := map[string]string{
		"timestamp.gte": strconv.FormatInt(from.UnixNano(), 10),
		"timestamp.lt":  strconv.FormatInt(to.UnixNano(), 10),
		"order":         "asc",
		"limit":         "50000",
	}

	var trades []Trade

	var page tradesResponse
	if err := c.get(ctx, "/v3/trades/"+ticker, params, &page); err != nil {
		return nil, fmt.Errorf("listing trades for %s: %w", ticker, err)
	}

	trades = append(trades, page.Results...)

	for page.NextURL != "" {
		next := page.NextURL
		page = tradesResponse{}
		if err := c.getNextPage(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("listing trades for %s: %w", ticker, err)
		}

		trades = append(trades, page.Results...)
	}

	return trades, nil
}
