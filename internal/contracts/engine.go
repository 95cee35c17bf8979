//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package contracts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudmanic/optionflow/internal/dateutil"
	"github.com/cloudmanic/optionflow/internal/polygon"
	"github.com/cloudmanic/optionflow/internal/questdb"
	"github.com/cloudmanic/optionflow/internal/store"
)

// dayPause is the fixed delay between per-day vendor requests.
const dayPause = 100 * time.Millisecond

// Vendor is the options reference data surface the engine consumes.
type Vendor interface {
	GetOptionContracts(ctx context.Context, underlying string, asOf time.Time) ([]polygon.Contract, error)
}

// Writer is the slice of the write layer the engine needs.
type Writer interface {
	BatchUpsertOptionContracts(ctx context.Context, rows []store.OptionContract) error
	UpsertOptionContractIndex(ctx context.Context, row store.OptionContractIndex) error
	Table(base string) string
	Gateway() questdb.Executor
}

// Engine maintains the as-of history of option contract snapshots: the
// option_contracts table holds the latest definition per ticker, and
// option_contracts_index records which (underlying, as_of) snapshots have
// been taken.
type Engine struct {
	vendor Vendor
	writer Writer
	log    zerolog.Logger

	// pause between per-day vendor calls; shortened in tests.
	pause time.Duration
}

// NewEngine creates a contract snapshot engine.
func NewEngine(vendor Vendor, writer Writer, log zerolog.Logger) *Engine {
	return &Engine{
		vendor: vendor,
		writer: writer,
		log:    log.With().Str("component", "contracts").Logger(),
		pause:  dayPause,
	}
}

// IngestAsOf fetches the vendor's contract snapshot for the underlying as
// of the given date, upserts every contract, and records the snapshot in
// the index table with a midnight-normalized as_of. Returns the number of
// contracts ingested.
func (e *Engine) IngestAsOf(ctx context.Context, underlying string, asOf time.Time) (int, error) {
	vendorContracts, err := e.vendor.GetOptionContracts(ctx, underlying, asOf)
	if err != nil {
		return 0, err
	}

	rows := make([]store.OptionContract, 0, len(vendorContracts))
	for _, vc := range vendorContracts {
		expiration, err := polygon.ParseExpirationDate(vc.ExpirationDate)
		if err != nil {
			e.log.Warn().
				Err(err).
				Str("ticker", vc.Ticker).
				Msg("skipping contract with bad expiration date")
			continue
		}

		rows = append(rows, store.OptionContract{
			Ticker:            vc.Ticker,
			UnderlyingTicker:  vc.UnderlyingTicker,
			ContractType:      vc.ContractType,
			ExerciseStyle:     vc.ExerciseStyle,
			ExpirationDate:    expiration,
			SharesPerContract: vc.SharesPerContract,
			StrikePrice:       vc.StrikePrice,
		})
	}

	if err := e.writer.BatchUpsertOptionContracts(ctx, rows); err != nil {
		return 0, err
	}

	err = e.writer.UpsertOptionContractIndex(ctx, store.OptionContractIndex{
		UnderlyingTicker: underlying,
		AsOf:             dateutil.NormalizeToMidnight(asOf),
	})
	if err != nil {
		return 0, err
	}

	e.log.Info().
		Str("underlying", underlying).
		Str("as_of", asOf.UTC().Format("2006-01-02")).
		Int("contracts", len(rows)).
		Msg("ingested contract snapshot")

	return len(rows), nil
}

// BackfillAsOfRange walks snapshots backwards one day at a time, starting
// at from minus one day and stopping once the cursor passes to. A failed
// day is logged and the walk continues; only cancellation aborts it.
// Returns the total contracts ingested.
func (e *Engine) BackfillAsOfRange(ctx context.Context, underlying string, from, to time.Time) (int, error) {
	cursor := dateutil.PrevDay(dateutil.NormalizeToMidnight(from))
	floor := dateutil.NormalizeToMidnight(to)

	total := 0
	for !cursor.Before(floor) {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		count, err := e.IngestAsOf(ctx, underlying, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}

			e.log.Error().
				Err(err).
				Str("underlying", underlying).
				Str("as_of", cursor.Format("2006-01-02")).
				Msg("snapshot day failed, continuing")
		}

		total += count
		e.sleep(ctx)
		cursor = dateutil.PrevDay(cursor)
	}

	return total, nil
}

// CatchUp walks snapshots forward from the newest recorded as_of to the
// current day. With no prior snapshot it ingests today only. Per-day
// errors are isolated like the backwards walk.
func (e *Engine) CatchUp(ctx context.Context, underlying string) (int, error) {
	newest, ok, err := dateutil.MaxDate(ctx, e.writer.Gateway(), dateutil.RangeQuery{
		Ticker:      underlying,
		TickerField: "underlying_ticker",
		DateField:   "as_of",
		Table:       e.writer.Table(store.TableOptionContractsIndex),
	})
	if err != nil {
		return 0, err
	}

	today := dateutil.Today()

	if !ok {
		return e.IngestAsOf(ctx, underlying, today)
	}

	total := 0
	for cursor := dateutil.NextDay(dateutil.NormalizeToMidnight(newest)); !cursor.After(today); cursor = dateutil.NextDay(cursor) {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		count, err := e.IngestAsOf(ctx, underlying, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}

			e.log.Error().
				Err(err).
				Str("underlying", underlying).
				Str("as_of", cursor.Format("2006-01-02")).
				Msg("catch-up day failed, continuing")
		}

		total += count
		e.sleep(ctx)
	}

	return total, nil
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
