//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package store

import (
	"time"
)

// StockAggregate is one minute (or day) OHLCV bar for an equity. Rows are
// unique per (symbol, timestamp) and never updated in place; the store's
// dedup on that tuple absorbs duplicate writes.
type StockAggregate struct {
	Symbol           string
	Timestamp        time.Time
	Open             float64
	High             float64
	Low              float64
	Close            float64
	VWAP             float64
	Volume           float64
	TransactionCount int64
}

// OptionContract is the reference definition of a listed option, keyed by
// its contract ticker. Re-ingesting a ticker updates the mutable fields in
// place; there is no as_of column on this table.
type OptionContract struct {
	Ticker            string
	UnderlyingTicker  string
	ContractType      string
	ExerciseStyle     string
	ExpirationDate    time.Time
	SharesPerContract int64
	StrikePrice       float64
}

// OptionContractIndex marks that a contract snapshot ran for an
// underlying on a given as_of date. One logical row per (underlying,
// as_of); as_of is always midnight-normalized.
type OptionContractIndex struct {
	UnderlyingTicker string
	AsOf             time.Time
}

// OptionTrade is a single tick-level option trade. Conditions carries the
// vendor condition codes serialized as a JSON array string.
type OptionTrade struct {
	Ticker           string
	UnderlyingTicker string
	Timestamp        time.Time
	Price            float64
	Size             float64
	Conditions       string
	Exchange         int
	Tape             int
	SequenceNumber   int64
}

// OptionQuote is a single NBBO quote observation for an option contract.
type OptionQuote struct {
	Ticker           string
	UnderlyingTicker string
	Timestamp        time.Time
	BidPrice         float64
	BidSize          float64
	AskPrice         float64
	AskSize          float64
	BidExchange      int
	AskExchange      int
	SequenceNumber   int64
}

// OptionTradeIndex is the per-option-ticker high-water mark for resumable
// trade backfill.
type OptionTradeIndex struct {
	Ticker   string
	LastSync time.Time
}

// SyncState tracks equity bar streaming and catch-up state per ticker.
// LastAggregateTimestamp is nil until the first bar has been observed.
type SyncState struct {
	Ticker                 string
	LastAggregateTimestamp *time.Time
	LastSync               time.Time
	IsStreaming            bool
}
