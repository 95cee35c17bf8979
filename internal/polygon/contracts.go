//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package polygon

import (
	"context"
	"fmt"
	"time"
)

// Contract represents a single options contract from the reference data
// endpoint. The expiration date arrives as a YYYY-MM-DD string and is
// parsed by the snapshot engine during normalization.
type Contract struct {
	Ticker            string  `json:"ticker"`
	UnderlyingTicker  string  `json:"underlying_ticker"`
	ContractType      string  `json:"contract_type"`
	ExerciseStyle     string  `json:"exercise_style"`
	ExpirationDate    string  `json:"expiration_date"`
	SharesPerContract int64   `json:"shares_per_contract"`
	StrikePrice       float64 `json:"strike_price"`
}

// contractsResponse represents one page of the contracts listing, with
// cursor pagination via NextURL.
type contractsResponse struct {
	Status    string     `json:"status"`
	RequestID string     `json:"request_id"`
	Results   []Contract `json:"results"`
	NextURL   string     `json:"next_url"`
}

// GetOptionContracts retrieves every option contract the vendor reports
// as existing for the underlying "as of" the given date. The listing is
// scoped to unexpired contracts at the as-of date and walks all cursor
// pages before returning.
func (c *Client) GetOptionContracts(ctx context.Context, underlying string, asOf time.Time) ([]Contract, error) {
	params := map[string]string{
		"underlying_ticker": underlying,
		"as_of":             asOf.UTC().Format("2006-01-02"),
		"expired":           "false",
		"limit":             "1000",
	}

	var contracts []Contract

	var page contractsResponse
	if err := c.get(ctx, "/v3/reference/options/contracts", params, &page); err != nil {
		return nil, fmt.Errorf("listing contracts for %s: %w", underlying, err)
	}

	contracts = append(contracts, page.Results...)

	for page.NextURL != "" {
		next := page.NextURL
		page = contractsResponse{}
		if err := c.getNextPage(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("listing contracts for %s: %w", underlying, err)
		}

		contracts = append(contracts, page.Results...)
	}

	return contracts, nil
}

// ParseExpirationDate parses the vendor's YYYY-MM-DD expiration string
// into a UTC midnight instant.
func ParseExpirationDate(raw string) (time.Time, error) {
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable expiration date %q: %w", raw, err)
	}
	return ts.UTC(), nil
}
