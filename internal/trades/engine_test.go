//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package trades

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmanic/optionflow/internal/polygon"
	"github.com/cloudmanic/optionflow/internal/questdb"
	"github.com/cloudmanic/optionflow/internal/store"
)

// fakeVendor plays back canned trades and quotes per ticker.
type fakeVendor struct {
	mu         sync.Mutex
	trades     map[string][]polygon.Trade
	quotes     map[string][]polygon.Quote
	tradeErrOn map[string]error
	tradeCalls []string
	quoteCalls []time.Time
}

func (f *fakeVendor) GetOptionTrades(ctx context.Context, ticker string, from, to time.Time) ([]polygon.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tradeCalls = append(f.tradeCalls, ticker)
	if err := f.tradeErrOn[ticker]; err != nil {
		return nil, err
	}
	return f.trades[ticker], nil
}

func (f *fakeVendor) GetOptionQuotes(ctx context.Context, ticker string, from, to time.Time) ([]polygon.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.quoteCalls = append(f.quoteCalls, from)
	return f.quotes[ticker], nil
}

// fakeWriter records writes and answers the engine's read-side lookups.
type fakeWriter struct {
	mu          sync.Mutex
	trades      []store.OptionTrade
	quoteChunks [][]store.OptionQuote
	indexRows   []store.OptionTradeIndex

	activeTickers  []string
	lastSyncs      map[string]time.Time
	shares         map[string]int64
	failQuoteChunk int
}

func (f *fakeWriter) BatchUpsertOptionTrades(ctx context.Context, rows []store.OptionTrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, rows...)
	return nil
}

func (f *fakeWriter) BatchUpsertOptionQuotes(ctx context.Context, rows []store.OptionQuote) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failQuoteChunk > 0 && len(f.quoteChunks)+1 == f.failQuoteChunk {
		f.quoteChunks = append(f.quoteChunks, nil)
		return errors.New("chunk write failed")
	}

	f.quoteChunks = append(f.quoteChunks, rows)
	return nil
}

func (f *fakeWriter) UpsertOptionTradeIndex(ctx context.Context, row store.OptionTradeIndex) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexRows = append(f.indexRows, row)
	return nil
}

func (f *fakeWriter) Table(base string) string {
	return base
}

func (f *fakeWriter) Gateway() questdb.Executor {
	return &readExecutor{w: f}
}

// readExecutor answers the engine's SELECTs from the fake writer's state.
type readExecutor struct {
	w *fakeWriter
}

func (e *readExecutor) Exec(ctx context.Context, sql string, params ...interface{}) (*questdb.Result, error) {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()

	switch {
	case strings.Contains(sql, "SELECT DISTINCT ticker"):
		rows := make([][]interface{}, 0, len(e.w.activeTickers))
		for _, t := range e.w.activeTickers {
			rows = append(rows, []interface{}{t})
		}
		return &questdb.Result{Dataset: rows}, nil

	case strings.Contains(sql, "SELECT last_sync"):
		ticker, _ := params[0].(string)
		if ts, ok := e.w.lastSyncs[ticker]; ok {
			return &questdb.Result{Dataset: [][]interface{}{{ts.UTC().Format("2006-01-02T15:04:05.000000Z")}}}, nil
		}
		return &questdb.Result{}, nil

	case strings.Contains(sql, "SELECT shares_per_contract"):
		ticker, _ := params[0].(string)
		if s, ok := e.w.shares[ticker]; ok {
			return &questdb.Result{Dataset: [][]interface{}{{float64(s)}}}, nil
		}
		return &questdb.Result{}, nil
	}

	return &questdb.Result{}, nil
}

func (e *readExecutor) BulkExec(ctx context.Context, sql string) (*questdb.Result, error) {
	return &questdb.Result{}, nil
}

func newTestEngine(vendor *fakeVendor, writer *fakeWriter) *Engine {
	return NewEngine(vendor, writer, 10000, 5, 1000, zerolog.Nop())
}

func tickTrade(price, size float64, seq int64) polygon.Trade {
	return polygon.Trade{
		SipTimestamp:   time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC).UnixNano(),
		Price:          price,
		Size:           size,
		Conditions:     []int{209},
		Exchange:       316,
		Tape:           3,
		SequenceNumber: seq,
	}
}

// TestExtractUnderlying verifies the prefixed, bare, and unparseable
// ticker forms.
func TestExtractUnderlying(t *testing.T) {
	assert.Equal(t, "TEST", ExtractUnderlying("O:TEST240315C00150000"))
	assert.Equal(t, "SPY", ExtractUnderlying("SPY240315C00500000"))
	assert.Equal(t, "", ExtractUnderlying("1234"))
	assert.Equal(t, "", ExtractUnderlying(""))
}

// TestBackfillTradesThresholdFilter verifies that only trades whose
// notional (price x shares x size) reaches the threshold are written.
func TestBackfillTradesThresholdFilter(t *testing.T) {
	ticker := "O:TEST240315C00150000"
	vendor := &fakeVendor{
		trades: map[string][]polygon.Trade{
			ticker: {
				tickTrade(5.00, 20, 1), // notional 10000: kept
				tickTrade(4.99, 20, 2), // notional 9980: dropped
				tickTrade(100, 5, 3),   // notional 50000: kept
			},
		},
	}
	writer := &fakeWriter{
		activeTickers: []string{ticker},
		shares:        map[string]int64{ticker: 100},
	}
	engine := newTestEngine(vendor, writer)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	count, err := engine.BackfillTrades(context.Background(), "TEST", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	require.Len(t, writer.trades, 2)
	assert.Equal(t, int64(1), writer.trades[0].SequenceNumber)
	assert.Equal(t, int64(3), writer.trades[1].SequenceNumber)
	assert.Equal(t, "TEST", writer.trades[0].UnderlyingTicker)
	assert.Equal(t, "[209]", writer.trades[0].Conditions)
}

// TestBackfillTradesSharesPerContractDefault verifies the multiplier
// defaults to 100 for unknown contracts so the filter still evaluates.
func TestBackfillTradesSharesPerContractDefault(t *testing.T) {
	ticker := "O:TEST240315C00150000"
	vendor := &fakeVendor{
		trades: map[string][]polygon.Trade{
			ticker: {tickTrade(5.00, 20, 1)}, // notional 10000 with default 100
		},
	}
	writer := &fakeWriter{activeTickers: []string{ticker}}
	engine := newTestEngine(vendor, writer)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	count, err := engine.BackfillTrades(context.Background(), "TEST", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestBackfillTradesResumesFromHighWater verifies effectiveFrom honors
// the recorded last_sync and that a fully-synced ticker is skipped.
func TestBackfillTradesResumesFromHighWater(t *testing.T) {
	ticker := "O:TEST240315C00150000"
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	vendor := &fakeVendor{}
	writer := &fakeWriter{
		activeTickers: []string{ticker},
		lastSyncs:     map[string]time.Time{ticker: to},
	}
	engine := newTestEngine(vendor, writer)

	count, err := engine.BackfillTrades(context.Background(), "TEST", from, to)
	require.NoError(t, err)

	assert.Zero(t, count)
	assert.Empty(t, vendor.tradeCalls, "fully-synced ticker must not hit the vendor")
	assert.Empty(t, writer.indexRows, "skipped ticker must not advance its high-water mark")
}

// TestBackfillTradesAdvancesHighWater verifies the index row is written
// with last_sync equal to the requested range end.
func TestBackfillTradesAdvancesHighWater(t *testing.T) {
	ticker := "O:TEST240315C00150000"
	vendor := &fakeVendor{
		trades: map[string][]polygon.Trade{ticker: {tickTrade(50, 10, 1)}},
	}
	writer := &fakeWriter{activeTickers: []string{ticker}}
	engine := newTestEngine(vendor, writer)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)

	_, err := engine.BackfillTrades(context.Background(), "TEST", from, to)
	require.NoError(t, err)

	require.Len(t, writer.indexRows, 1)
	assert.Equal(t, ticker, writer.indexRows[0].Ticker)
	assert.True(t, writer.indexRows[0].LastSync.Equal(to))
}

// TestBackfillTradesIsolatesTickerErrors verifies one ticker's vendor
// failure neither aborts the pool nor surfaces from the top-level call.
func TestBackfillTradesIsolatesTickerErrors(t *testing.T) {
	good := "O:TEST240315C00150000"
	bad := "O:TEST240315P00140000"

	vendor := &fakeVendor{
		trades:     map[string][]polygon.Trade{good: {tickTrade(50, 10, 1)}},
		tradeErrOn: map[string]error{bad: errors.New("vendor exploded")},
	}
	writer := &fakeWriter{activeTickers: []string{bad, good}}
	engine := newTestEngine(vendor, writer)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	count, err := engine.BackfillTrades(context.Background(), "TEST", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	require.Len(t, writer.trades, 1)
	assert.Equal(t, good, writer.trades[0].Ticker)
	assert.Len(t, vendor.tradeCalls, 2)
}

// TestIngestQuotesDaySplitAndChunking verifies the day split across the
// range and chunk-level isolation of write failures.
func TestIngestQuotesDaySplitAndChunking(t *testing.T) {
	ticker := "O:TEST240315C00150000"

	quotes := make([]polygon.Quote, 5)
	for i := range quotes {
		quotes[i] = polygon.Quote{
			SipTimestamp:   time.Date(2024, 3, 1, 14, 30, i, 0, time.UTC).UnixNano(),
			BidPrice:       5.2, BidSize: 5,
			AskPrice:       5.3, AskSize: 7,
			SequenceNumber: int64(i),
		}
	}

	vendor := &fakeVendor{quotes: map[string][]polygon.Quote{ticker: quotes}}
	writer := &fakeWriter{}
	engine := NewEngine(vendor, writer, 10000, 5, 2, zerolog.Nop())

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 3)

	count, err := engine.IngestQuotes(context.Background(), ticker, from, to)
	require.NoError(t, err)

	// Three days, five quotes per day, chunk size two: 3 chunks per day.
	assert.Len(t, vendor.quoteCalls, 3)
	assert.Len(t, writer.quoteChunks, 9)
	assert.Equal(t, 15, count)
}

// TestIngestQuotesChunkFailureContinues verifies a failed chunk is
// skipped while later chunks still land.
func TestIngestQuotesChunkFailureContinues(t *testing.T) {
	ticker := "O:TEST240315C00150000"

	quotes := make([]polygon.Quote, 4)
	for i := range quotes {
		quotes[i] = polygon.Quote{SipTimestamp: int64(1000 + i), SequenceNumber: int64(i)}
	}

	vendor := &fakeVendor{quotes: map[string][]polygon.Quote{ticker: quotes}}
	writer := &fakeWriter{failQuoteChunk: 1}
	engine := NewEngine(vendor, writer, 10000, 5, 2, zerolog.Nop())

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	count, err := engine.IngestQuotes(context.Background(), ticker, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, count, "only the surviving chunk counts")
	require.Len(t, writer.quoteChunks, 2)
	assert.Nil(t, writer.quoteChunks[0])
	assert.Len(t, writer.quoteChunks[1], 2)
}

// TestIngestQuotesZeroDayContinues verifies a zero-result day does not
// stop the scan before the requested range end.
func TestIngestQuotesZeroDayContinues(t *testing.T) {
	ticker := "O:TEST240315C00150000"

	vendor := &fakeVendor{}
	writer := &fakeWriter{}
	engine := newTestEngine(vendor, writer)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 3)

	count, err := engine.IngestQuotes(context.Background(), ticker, from, to)
	require.NoError(t, err)

	assert.Zero(t, count)
	assert.Len(t, vendor.quoteCalls, 3, "every day in range is still scanned")
	for _, call := range vendor.quoteCalls {
		assert.True(t, call.Before(to), "scan must never pass the range end")
	}
}

// TestIngestQuotesUnparseableTicker verifies quote ingestion skips a
// ticker whose underlying cannot be derived.
func TestIngestQuotesUnparseableTicker(t *testing.T) {
	vendor := &fakeVendor{}
	writer := &fakeWriter{}
	engine := newTestEngine(vendor, writer)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	count, err := engine.IngestQuotes(context.Background(), "1234", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Zero(t, count)
	assert.Empty(t, vendor.quoteCalls)
}
