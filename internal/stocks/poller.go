//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package stocks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cloudmanic/optionflow/internal/store"
)

// pollSchedule fires the latest-bar poll every ten seconds.
const pollSchedule = "@every 10s"

// Poller periodically pulls the latest minute bar for every configured
// ticker and upserts it, keeping the aggregates table current between
// backfills. It also maintains per-ticker sync state.
type Poller struct {
	vendor  Vendor
	writer  Writer
	tickers []string
	log     zerolog.Logger
	cron    *cron.Cron
}

// NewPoller creates a realtime bar poller for the given tickers.
func NewPoller(vendor Vendor, writer Writer, tickers []string, log zerolog.Logger) *Poller {
	return &Poller{
		vendor:  vendor,
		writer:  writer,
		tickers: tickers,
		log:     log.With().Str("component", "stock-poller").Logger(),
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start registers the poll job and starts the scheduler. The provided
// context bounds each poll run.
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(pollSchedule, func() {
		p.poll(ctx)
	})
	if err != nil {
		return err
	}

	p.cron.Start()
	p.log.Info().Strs("tickers", p.tickers).Msg("realtime bar poller started")
	return nil
}

// Stop stops the scheduler and waits for a running poll to finish.
func (p *Poller) Stop() {
	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
	p.log.Info().Msg("realtime bar poller stopped")
}

// poll fetches and upserts the latest bar for every ticker. Per-ticker
// failures are logged and do not affect the other tickers.
func (p *Poller) poll(ctx context.Context) {
	for _, ticker := range p.tickers {
		if ctx.Err() != nil {
			return
		}

		bar, err := p.vendor.GetLatestBar(ctx, ticker)
		if err != nil {
			p.log.Error().Err(err).Str("ticker", ticker).Msg("latest bar fetch failed")
			continue
		}

		if bar == nil {
			continue
		}

		if err := p.writer.UpsertStockAggregate(ctx, mapBar(ticker, *bar)); err != nil {
			p.log.Error().Err(err).Str("ticker", ticker).Msg("latest bar write failed")
			continue
		}

		ts := bar.Timestamp.UTC()
		err = p.writer.UpsertSyncState(ctx, store.SyncState{
			Ticker:                 ticker,
			LastAggregateTimestamp: &ts,
			LastSync:               time.Now().UTC(),
			IsStreaming:            true,
		})
		if err != nil {
			p.log.Error().Err(err).Str("ticker", ticker).Msg("sync state write failed")
		}
	}
}
