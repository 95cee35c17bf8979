//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package trades

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/cloudmanic/optionflow/internal/dateutil"
	"github.com/cloudmanic/optionflow/internal/polygon"
	"github.com/cloudmanic/optionflow/internal/questdb"
	"github.com/cloudmanic/optionflow/internal/store"
)

// defaultSharesPerContract is used for threshold evaluation when a
// contract's shares_per_contract is missing. It is never persisted.
const defaultSharesPerContract = 100

// Option ticker prefixes: the OCC-style "O:" form first, then a bare
// upper-case run as fallback.
var (
	optionTickerPattern = regexp.MustCompile(`^O:([A-Z]+)`)
	bareTickerPattern   = regexp.MustCompile(`^([A-Z]+)`)
)

// Vendor is the options tick data surface the engine consumes.
type Vendor interface {
	GetOptionTrades(ctx context.Context, ticker string, from, to time.Time) ([]polygon.Trade, error)
	GetOptionQuotes(ctx context.Context, ticker string, from, to time.Time) ([]polygon.Quote, error)
}

// Writer is the slice of the write layer the engine needs.
type Writer interface {
	BatchUpsertOptionTrades(ctx context.Context, rows []store.OptionTrade) error
	BatchUpsertOptionQuotes(ctx context.Context, rows []store.OptionQuote) error
	UpsertOptionTradeIndex(ctx context.Context, row store.OptionTradeIndex) error
	Table(base string) string
	Gateway() questdb.Executor
}

// Engine backfills option trades and quotes per ticker, resuming from the
// per-ticker high-water mark and filtering trades below the notional
// threshold.
type Engine struct {
	vendor Vendor
	writer Writer
	log    zerolog.Logger

	// Threshold is the minimum notional a trade must reach to be kept.
	Threshold float64

	// Concurrency bounds the number of in-flight per-ticker workers.
	Concurrency int

	// QuoteChunkSize bounds the rows handed to the write layer per quote
	// chunk within a day.
	QuoteChunkSize int
}

// NewEngine creates a trades/quotes backfill engine with the given
// threshold, worker bound, and quote chunk size.
func NewEngine(vendor Vendor, writer Writer, threshold float64, concurrency, quoteChunkSize int, log zerolog.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = 5
	}
	if quoteChunkSize <= 0 {
		quoteChunkSize = 1000
	}

	return &Engine{
		vendor:         vendor,
		writer:         writer,
		log:            log.With().Str("component", "trades").Logger(),
		Threshold:      threshold,
		Concurrency:    concurrency,
		QuoteChunkSize: quoteChunkSize,
	}
}

// ExtractUnderlying parses the underlying equity ticker out of an option
// ticker. Returns the empty string when the ticker matches neither the
// "O:" prefixed form nor a bare upper-case run; callers skip such tickers
// with a warning.
func ExtractUnderlying(optionTicker string) string {
	if m := optionTickerPattern.FindStringSubmatch(optionTicker); m != nil {
		return m[1]
	}

	if m := bareTickerPattern.FindStringSubmatch(optionTicker); m != nil {
		return m[1]
	}

	return ""
}

// BackfillTrades pulls trades for every active option ticker of the
// underlying in [from, to), using a bounded worker pool. Active means the
// contract's expiration is not before from. Per-ticker failures are
// logged and isolated; the pool always drains. Returns the number of
// trades written.
func (e *Engine) BackfillTrades(ctx context.Context, underlying string, from, to time.Time) (int, error) {
	tickers, err := e.activeTickers(ctx, underlying, from)
	if err != nil {
		return 0, err
	}

	if len(tickers) == 0 {
		e.log.Info().Str("underlying", underlying).Msg("no active option tickers to backfill")
		return 0, nil
	}

	sem := semaphore.NewWeighted(int64(e.Concurrency))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)

	for _, ticker := range tickers {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			defer sem.Release(1)

			count, err := e.backfillTicker(ctx, ticker, from, to)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				e.log.Error().
					Err(err).
					Str("ticker", ticker).
					Msg("trade backfill failed for ticker, continuing")
				return
			}

			mu.Lock()
			total += count
			mu.Unlock()
		}(ticker)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return total, err
	}

	return total, nil
}

// backfillTicker runs the fetch/filter/write cycle for one option ticker.
func (e *Engine) backfillTicker(ctx context.Context, ticker string, from, to time.Time) (int, error) {
	underlying := ExtractUnderlying(ticker)
	if underlying == "" {
		e.log.Warn().Str("ticker", ticker).Msg("unparseable option ticker, skipping")
		return 0, nil
	}

	effectiveFrom := from
	if lastSync, ok, err := e.lastSync(ctx, ticker); err != nil {
		return 0, err
	} else if ok {
		resume := lastSync.Add(time.Nanosecond)
		if resume.After(effectiveFrom) {
			effectiveFrom = resume
		}
	}

	if !effectiveFrom.Before(to) {
		return 0, nil
	}

	vendorTrades, err := e.vendor.GetOptionTrades(ctx, ticker, effectiveFrom, to)
	if err != nil {
		return 0, err
	}

	shares := e.sharesPerContract(ctx, ticker)

	rows := make([]store.OptionTrade, 0, len(vendorTrades))
	for _, vt := range vendorTrades {
		if !meetsThreshold(vt.Price, shares, vt.Size, e.Threshold) {
			continue
		}

		rows = append(rows, store.OptionTrade{
			Ticker:           ticker,
			UnderlyingTicker: underlying,
			Timestamp:        polygon.ConvertTimestamp(vt.SipTimestamp, true),
			Price:            vt.Price,
			Size:             vt.Size,
			Conditions:       marshalConditions(vt.Conditions),
			Exchange:         vt.Exchange,
			Tape:             vt.Tape,
			SequenceNumber:   vt.SequenceNumber,
		})
	}

	if err := e.writer.BatchUpsertOptionTrades(ctx, rows); err != nil {
		return 0, err
	}

	err = e.writer.UpsertOptionTradeIndex(ctx, store.OptionTradeIndex{
		Ticker:   ticker,
		LastSync: to,
	})
	if err != nil {
		return 0, err
	}

	if len(rows) > 0 {
		e.log.Info().
			Str("ticker", ticker).
			Int("trades", len(rows)).
			Msg("backfilled option trades")
	}

	return len(rows), nil
}

// BackfillQuotes runs IngestQuotes for every active option ticker of the
// underlying, using the same bounded worker pool as the trade backfill.
// Per-ticker failures are logged and isolated. Returns the number of
// quotes written.
func (e *Engine) BackfillQuotes(ctx context.Context, underlying string, from, to time.Time) (int, error) {
	tickers, err := e.activeTickers(ctx, underlying, from)
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(int64(e.Concurrency))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)

	for _, ticker := range tickers {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			defer sem.Release(1)

			count, err := e.IngestQuotes(ctx, ticker, from, to)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				e.log.Error().
					Err(err).
					Str("ticker", ticker).
					Msg("quote backfill failed for ticker, continuing")
				return
			}

			mu.Lock()
			total += count
			mu.Unlock()
		}(ticker)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return total, err
	}

	return total, nil
}

// IngestQuotes pulls quotes for one option ticker across [from, to),
// split into one-day sub-intervals. Within a day, rows are written in
// chunks of QuoteChunkSize; a failed chunk is logged and the remaining
// chunks continue. A day with zero vendor rows moves on to the next day
// and never advances the scan past to. Returns the number of quotes
// written.
func (e *Engine) IngestQuotes(ctx context.Context, ticker string, from, to time.Time) (int, error) {
	underlying := ExtractUnderlying(ticker)
	if underlying == "" {
		e.log.Warn().Str("ticker", ticker).Msg("unparseable option ticker, skipping quotes")
		return 0, nil
	}

	total := 0
	for cur := from; cur.Before(to); cur = dateutil.NextDay(cur) {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		dayEnd := dateutil.NextDay(cur)
		if dayEnd.After(to) {
			dayEnd = to
		}

		vendorQuotes, err := e.vendor.GetOptionQuotes(ctx, ticker, cur, dayEnd)
		if err != nil {
			return total, err
		}

		if len(vendorQuotes) == 0 {
			continue
		}

		rows := make([]store.OptionQuote, 0, len(vendorQuotes))
		for _, vq := range vendorQuotes {
			rows = append(rows, store.OptionQuote{
				Ticker:           ticker,
				UnderlyingTicker: underlying,
				Timestamp:        polygon.ConvertTimestamp(vq.SipTimestamp, true),
				BidPrice:         vq.BidPrice,
				BidSize:          vq.BidSize,
				AskPrice:         vq.AskPrice,
				AskSize:          vq.AskSize,
				BidExchange:      vq.BidExchange,
				AskExchange:      vq.AskExchange,
				SequenceNumber:   vq.SequenceNumber,
			})
		}

		for start := 0; start < len(rows); start += e.QuoteChunkSize {
			end := start + e.QuoteChunkSize
			if end > len(rows) {
				end = len(rows)
			}

			if err := e.writer.BatchUpsertOptionQuotes(ctx, rows[start:end]); err != nil {
				e.log.Error().
					Err(err).
					Str("ticker", ticker).
					Str("day", cur.Format("2006-01-02")).
					Msg("quote chunk failed, continuing")
				continue
			}

			total += end - start
		}
	}

	return total, nil
}

// activeTickers resolves the option tickers of the underlying whose
// expiration is on or after from.
func (e *Engine) activeTickers(ctx context.Context, underlying string, from time.Time) ([]string, error) {
	sql := fmt.Sprintf(
		"SELECT DISTINCT ticker FROM %s WHERE underlying_ticker = $1 AND expiration_date >= $2 ORDER BY ticker",
		e.writer.Table(store.TableOptionContracts),
	)

	result, err := e.writer.Gateway().Exec(ctx, sql, underlying, from)
	if err != nil {
		return nil, err
	}

	tickers := make([]string, 0, len(result.Dataset))
	for _, row := range result.Dataset {
		if len(row) == 0 {
			continue
		}

		if ticker, ok := row[0].(string); ok && ticker != "" {
			tickers = append(tickers, ticker)
		}
	}

	return tickers, nil
}

// lastSync reads the per-ticker trade high-water mark.
func (e *Engine) lastSync(ctx context.Context, ticker string) (time.Time, bool, error) {
	sql := fmt.Sprintf(
		"SELECT last_sync FROM %s WHERE ticker = $1",
		e.writer.Table(store.TableOptionTradesIndex),
	)

	result, err := e.writer.Gateway().Exec(ctx, sql, ticker)
	if err != nil {
		return time.Time{}, false, err
	}

	if len(result.Dataset) == 0 || len(result.Dataset[0]) == 0 {
		return time.Time{}, false, nil
	}

	raw, ok := result.Dataset[0][0].(string)
	if !ok || raw == "" {
		return time.Time{}, false, nil
	}

	ts, err := dateutil.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, false, nil
	}

	return ts, true, nil
}

// sharesPerContract reads the contract's multiplier, falling back to the
// default of 100 when the contract is unknown or the value is missing.
func (e *Engine) sharesPerContract(ctx context.Context, ticker string) int64 {
	sql := fmt.Sprintf(
		"SELECT shares_per_contract FROM %s WHERE ticker = $1",
		e.writer.Table(store.TableOptionContracts),
	)

	result, err := e.writer.Gateway().Exec(ctx, sql, ticker)
	if err != nil || len(result.Dataset) == 0 || len(result.Dataset[0]) == 0 {
		return defaultSharesPerContract
	}

	switch v := result.Dataset[0][0].(type) {
	case float64:
		if v > 0 {
			return int64(v)
		}
	case int64:
		if v > 0 {
			return v
		}
	}

	return defaultSharesPerContract
}

// meetsThreshold evaluates price x shares x size >= threshold using
// decimal arithmetic so borderline notionals don't wobble on float
// rounding.
func meetsThreshold(price float64, shares int64, size, threshold float64) bool {
	notional := decimal.NewFromFloat(price).
		Mul(decimal.NewFromInt(shares)).
		Mul(decimal.NewFromFloat(size))

	return notional.GreaterThanOrEqual(decimal.NewFromFloat(threshold))
}

// marshalConditions serializes vendor condition codes as a JSON array
// string, writing "[]" for a missing list.
func marshalConditions(conditions []int) string {
	if len(conditions) == 0 {
		return "[]"
	}

	data, err := json.Marshal(conditions)
	if err != nil {
		return "[]"
	}

	return string(data)
}
