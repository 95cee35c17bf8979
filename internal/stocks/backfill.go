//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package stocks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudmanic/optionflow/internal/alpaca"
	"github.com/cloudmanic/optionflow/internal/dateutil"
	"github.com/cloudmanic/optionflow/internal/store"
)

// dayPause is the fixed delay between per-day vendor requests.
const dayPause = 100 * time.Millisecond

// barTimeframe is the bar granularity ingested by the backfill and
// poller paths.
const barTimeframe = "1Min"

// Vendor is the equity bars surface the engine consumes.
type Vendor interface {
	GetHistoricalBars(ctx context.Context, symbol string, from, to time.Time, timeframe string) ([]alpaca.Bar, error)
	GetLatestBar(ctx context.Context, symbol string) (*alpaca.Bar, error)
}

// Writer is the slice of the write layer the engine needs.
type Writer interface {
	BatchInsertIfAbsentStockAggregates(ctx context.Context, rows []store.StockAggregate) error
	UpsertStockAggregate(ctx context.Context, row store.StockAggregate) error
	UpsertSyncState(ctx context.Context, row store.SyncState) error
}

// Engine backfills minute bars for equities one day at a time, mapping
// vendor bars onto stock aggregates with insert-if-absent semantics.
type Engine struct {
	vendor Vendor
	writer Writer
	log    zerolog.Logger

	// pause between per-day vendor calls; shortened in tests.
	pause time.Duration
}

// NewEngine creates a stock bars backfill engine.
func NewEngine(vendor Vendor, writer Writer, log zerolog.Logger) *Engine {
	return &Engine{
		vendor: vendor,
		writer: writer,
		log:    log.With().Str("component", "stocks").Logger(),
		pause:  dayPause,
	}
}

// Backfill scans forward from startDate to endDate inclusive, one day per
// vendor request. A future endDate or inverted range is warned about but
// not fatal; an inverted range simply yields no rows. Per-day failures
// are logged and skipped. Returns the number of bars written.
func (e *Engine) Backfill(ctx context.Context, ticker string, startDate, endDate time.Time) (int, error) {
	now := time.Now().UTC()
	if endDate.After(now) {
		e.log.Warn().
			Str("ticker", ticker).
			Time("end", endDate).
			Msg("backfill end date is in the future")
	}

	start := dateutil.NormalizeToMidnight(startDate)
	end := dateutil.NormalizeToMidnight(endDate)

	if start.After(end) {
		e.log.Warn().
			Str("ticker", ticker).
			Time("start", start).
			Time("end", end).
			Msg("backfill start date is after end date, nothing to do")
		return 0, nil
	}

	total := 0
	for day := start; !day.After(end); day = dateutil.NextDay(day) {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		count, err := e.backfillDay(ctx, ticker, day)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}

			e.log.Error().
				Err(err).
				Str("ticker", ticker).
				Str("day", day.Format("2006-01-02")).
				Msg("stock bar day failed, skipping")
		}

		total += count
		e.sleep(ctx)
	}

	e.log.Info().
		Str("ticker", ticker).
		Int("bars", total).
		Msg("stock bar backfill complete")

	return total, nil
}

// backfillDay fetches one day of minute bars and writes them.
func (e *Engine) backfillDay(ctx context.Context, ticker string, day time.Time) (int, error) {
	bars, err := e.vendor.GetHistoricalBars(ctx, ticker, day, dateutil.NextDay(day), barTimeframe)
	if err != nil {
		return 0, err
	}

	if len(bars) == 0 {
		return 0, nil
	}

	rows := make([]store.StockAggregate, 0, len(bars))
	for _, bar := range bars {
		rows = append(rows, mapBar(ticker, bar))
	}

	if err := e.writer.BatchInsertIfAbsentStockAggregates(ctx, rows); err != nil {
		return 0, err
	}

	return len(rows), nil
}

// mapBar converts a vendor bar into a stock aggregate row.
func mapBar(ticker string, bar alpaca.Bar) store.StockAggregate {
	return store.StockAggregate{
		Symbol:           ticker,
		Timestamp:        bar.Timestamp.UTC(),
		Open:             bar.Open,
		High:             bar.High,
		Low:              bar.Low,
		Close:            bar.Close,
		VWAP:             bar.VWAP,
		Volume:           bar.Volume,
		TransactionCount: bar.NumTrades,
	}
}

// sleep pauses between vendor calls, returning early on cancellation.
func (e *Engine) sleep(ctx context.Context) {
	if e.pause <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(e.pause):
	}
}
