//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudmanic/optionflow/internal/config"
	"github.com/cloudmanic/optionflow/internal/dateutil"
	"github.com/cloudmanic/optionflow/internal/questdb"
	"github.com/cloudmanic/optionflow/internal/store"
)

// noDataLookbackDays is how far behind the target date the stock path
// reaches on a ticker with no stored bars at all.
const noDataLookbackDays = 365

// extensionDays is the forward extension BackfillAll adds past the
// current day.
const extensionDays = 7

// Gateway is the store surface the coordinator drives directly.
type Gateway interface {
	questdb.Executor
	Connect(ctx context.Context) error
	RunSchema(ctx context.Context) error
	Disconnect()
}

// StockEngine is the stock bars backfill surface.
type StockEngine interface {
	Backfill(ctx context.Context, ticker string, startDate, endDate time.Time) (int, error)
}

// ContractEngine is the contract snapshot surface.
type ContractEngine interface {
	BackfillAsOfRange(ctx context.Context, underlying string, from, to time.Time) (int, error)
	CatchUp(ctx context.Context, underlying string) (int, error)
}

// TradeEngine is the trades/quotes backfill surface.
type TradeEngine interface {
	BackfillTrades(ctx context.Context, underlying string, from, to time.Time) (int, error)
	BackfillQuotes(ctx context.Context, underlying string, from, to time.Time) (int, error)
}

// Totals aggregates item counts across a backfill run.
type Totals struct {
	StockBars int
	Contracts int
	Trades    int
	Quotes    int
}

// add accumulates another run's totals.
func (t *Totals) add(o Totals) {
	t.StockBars += o.StockBars
	t.Contracts += o.Contracts
	t.Trades += o.Trades
	t.Quotes += o.Quotes
}

// Sum returns the combined item count.
func (t Totals) Sum() int {
	return t.StockBars + t.Contracts + t.Trades + t.Quotes
}

// Coordinator orchestrates backfills: per ticker it reconciles what the
// store already covers against a target end date, then drives the stock
// and option paths independently. Re-running is idempotent because both
// paths skip when the stored minimum already reaches the target.
type Coordinator struct {
	cfg       config.Config
	gw        Gateway
	writer    *store.Writer
	stocks    StockEngine
	contracts ContractEngine
	trades    TradeEngine
	log       zerolog.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// New creates a backfill coordinator.
func New(cfg config.Config, gw Gateway, writer *store.Writer, stocks StockEngine, contracts ContractEngine, trades TradeEngine, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		gw:        gw,
		writer:    writer,
		stocks:    stocks,
		contracts: contracts,
		trades:    trades,
		log:       log.With().Str("component", "coordinator").Logger(),
		now:       time.Now,
	}
}

// BackfillTickerToDate reconciles one ticker against the target end date
// and runs whichever paths still have ground to cover. The stock and
// option paths are fully independent: each reads its own stored minimum
// and each can run or skip on its own.
func (c *Coordinator) BackfillTickerToDate(ctx context.Context, ticker string, endDate time.Time) (Totals, error) {
	if err := c.gw.Connect(ctx); err != nil {
		return Totals{}, err
	}

	if err := c.gw.RunSchema(ctx); err != nil {
		return Totals{}, err
	}

	endDate = dateutil.NormalizeToMidnight(endDate)

	var totals Totals

	if err := c.backfillStocks(ctx, ticker, endDate, &totals); err != nil {
		return totals, err
	}

	if err := c.backfillOptions(ctx, ticker, endDate, &totals); err != nil {
		return totals, err
	}

	return totals, nil
}

// backfillStocks runs the equity bar path for one ticker.
func (c *Coordinator) backfillStocks(ctx context.Context, ticker string, endDate time.Time, totals *Totals) error {
	if c.cfg.SkipStockAggregates {
		c.log.Info().Str("ticker", ticker).Msg("stock aggregates skipped by config")
		return nil
	}

	table := c.writer.Table(store.TableStockAggregates)

	oldest, err := dateutil.MinDate(ctx, c.gw, dateutil.RangeQuery{
		Ticker:      ticker,
		TickerField: "symbol",
		DateField:   "timestamp",
		Table:       table,
	})
	if err != nil {
		return err
	}

	oldest = dateutil.NormalizeToMidnight(oldest)

	if !oldest.After(endDate) {
		c.log.Info().
			Str("ticker", ticker).
			Time("oldest", oldest).
			Time("target", endDate).
			Msg("stock bars already cover target date, skipping")
		return nil
	}

	start := endDate

	hasBars, err := dateutil.HasData(ctx, c.gw, dateutil.RangeQuery{
		Ticker:      ticker,
		TickerField: "symbol",
		Table:       table,
	})
	if err != nil {
		return err
	}

	if !hasBars {
		start = endDate.AddDate(0, 0, -noDataLookbackDays)
	}

	end := c.capDays(start, oldest)

	count, err := c.stocks.Backfill(ctx, ticker, start, end)
	totals.StockBars += count
	return err
}

// backfillOptions runs the contract snapshot, trade, and quote path for
// one underlying, each stage gated by its own skip flag. The contract
// walk runs before trades so the trade backfill can resolve the active
// tickers it just ingested.
func (c *Coordinator) backfillOptions(ctx context.Context, ticker string, endDate time.Time, totals *Totals) error {
	if c.cfg.SkipOptionContracts && c.cfg.SkipOptionTrades && c.cfg.SkipOptionQuotes {
		c.log.Info().Str("ticker", ticker).Msg("option paths skipped by config")
		return nil
	}

	oldestAsOf, err := dateutil.MinDate(ctx, c.gw, dateutil.RangeQuery{
		Ticker:      ticker,
		TickerField: "underlying_ticker",
		DateField:   "as_of",
		Table:       c.writer.Table(store.TableOptionContractsIndex),
	})
	if err != nil {
		return err
	}

	oldestAsOf = dateutil.NormalizeToMidnight(oldestAsOf)

	if !oldestAsOf.After(endDate) {
		c.log.Info().
			Str("ticker", ticker).
			Time("oldest_as_of", oldestAsOf).
			Time("target", endDate).
			Msg("contract snapshots already cover target date, skipping option path")
		return nil
	}

	hasSnapshots, err := dateutil.HasData(ctx, c.gw, dateutil.RangeQuery{
		Ticker:      ticker,
		TickerField: "underlying_ticker",
		Table:       c.writer.Table(store.TableOptionContractsIndex),
	})
	if err != nil {
		return err
	}

	start := oldestAsOf
	if !hasSnapshots {
		start = dateutil.NormalizeToMidnight(c.now())
	}

	floor := endDate
	if c.cfg.BackfillMaxDays > 0 && dateutil.DaysBetween(floor, start) > c.cfg.BackfillMaxDays {
		floor = start.AddDate(0, 0, -c.cfg.BackfillMaxDays)
	}

	if !c.cfg.SkipOptionContracts {
		count, err := c.contracts.BackfillAsOfRange(ctx, ticker, start, floor)
		totals.Contracts += count
		if err != nil {
			return err
		}
	}

	if !c.cfg.SkipOptionTrades {
		count, err := c.trades.BackfillTrades(ctx, ticker, floor, dateutil.NormalizeToMidnight(c.now()))
		totals.Trades += count
		if err != nil {
			return err
		}
	}

	if !c.cfg.SkipOptionQuotes {
		count, err := c.trades.BackfillQuotes(ctx, ticker, floor, dateutil.NormalizeToMidnight(c.now()))
		totals.Quotes += count
		if err != nil {
			return err
		}
	}

	return nil
}

// BackfillAllToDate runs BackfillTickerToDate for every configured
// ticker with per-ticker error isolation, logging aggregate counts and
// the elapsed duration.
func (c *Coordinator) BackfillAllToDate(ctx context.Context, endDate time.Time) (Totals, error) {
	started := c.now()

	var totals Totals
	for _, ticker := range c.cfg.Tickers {
		if err := ctx.Err(); err != nil {
			return totals, err
		}

		t, err := c.BackfillTickerToDate(ctx, ticker, endDate)
		totals.add(t)

		if err != nil {
			if ctx.Err() != nil {
				return totals, ctx.Err()
			}

			c.log.Error().
				Err(err).
				Str("ticker", ticker).
				Msg("ticker backfill failed, continuing with remaining tickers")
		}
	}

	c.log.Info().
		Int("stock_bars", totals.StockBars).
		Int("contracts", totals.Contracts).
		Int("trades", totals.Trades).
		Int("quotes", totals.Quotes).
		Str("duration", FormatDuration(c.now().Sub(started))).
		Msg("backfill run complete")

	return totals, nil
}

// BackfillAll backfills every configured ticker up to the current day,
// then extends the stock path one week forward so upcoming sessions have
// their day slots scanned as data arrives.
func (c *Coordinator) BackfillAll(ctx context.Context) (Totals, error) {
	now := dateutil.NormalizeToMidnight(c.now())

	totals, err := c.BackfillAllToDate(ctx, now)
	if err != nil {
		return totals, err
	}

	for _, ticker := range c.cfg.Tickers {
		if c.cfg.SkipStockAggregates {
			break
		}

		if err := ctx.Err(); err != nil {
			return totals, err
		}

		count, err := c.stocks.Backfill(ctx, ticker, now, now.AddDate(0, 0, extensionDays))
		totals.StockBars += count

		if err != nil && ctx.Err() == nil {
			c.log.Error().
				Err(err).
				Str("ticker", ticker).
				Msg("forward extension failed, continuing")
		}
	}

	return totals, nil
}

// capDays bounds the distance between start and end by the configured
// maximum backfill span. Zero means uncapped.
func (c *Coordinator) capDays(start, end time.Time) time.Time {
	if c.cfg.BackfillMaxDays <= 0 {
		return end
	}

	if dateutil.DaysBetween(start, end) > c.cfg.BackfillMaxDays {
		return start.AddDate(0, 0, c.cfg.BackfillMaxDays)
	}

	return end
}

// FormatDuration renders a duration as "Xh Ym Zs" for run summaries.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
