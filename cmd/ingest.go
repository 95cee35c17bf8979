//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloudmanic/optionflow/internal/stocks"
)

// ingestCmd runs the realtime side of the pipeline: the stock bar poller
// and the option trade stream, until interrupted. SIGINT/SIGTERM trigger
// a graceful shutdown: no new vendor calls, one final stream flush, and
// a gateway disconnect before exiting cleanly.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the realtime bar poller and option trade stream",
	Long:  "Starts the periodic latest-bar poller and the WebSocket option trade stream, writing both into the store until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := p.gw.Connect(ctx); err != nil {
			return err
		}
		defer p.gw.Disconnect()

		if err := p.gw.RunSchema(ctx); err != nil {
			return err
		}

		var poller *stocks.Poller
		if !p.cfg.SkipStockAggregates {
			poller = stocks.NewPoller(p.alpaca, p.writer, p.cfg.Tickers, logger)
			if err := poller.Start(ctx); err != nil {
				return err
			}
			defer poller.Stop()
		}

		status("Ingesting realtime data for %d tickers (ctrl-c to stop)...", len(p.cfg.Tickers))

		// Run blocks until cancellation or a fatal stream error. On
		// cancellation it flushes the buffer once and returns nil, which
		// maps to a clean exit.
		if err := p.newStreamEngine().Run(ctx); err != nil {
			return err
		}

		status("Ingest stopped cleanly")
		return nil
	},
}

// init registers the ingest command.
func init() {
	rootCmd.AddCommand(ingestCmd)
}
