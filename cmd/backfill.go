//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudmanic/optionflow/internal/coordinator"
)

// dateLayout is the calendar date form accepted on the command line.
const dateLayout = "2006-01-02"

// backfillCmd reconciles stored data against a target date and fetches
// whatever is missing. The argument shapes are:
//
//	backfill                     all tickers up to now
//	backfill AAPL                one ticker up to now
//	backfill 2024-01-05          all tickers to the given date
//	backfill AAPL 2024-01-05     one ticker to the given date
var backfillCmd = &cobra.Command{
	Use:   "backfill [ticker] [YYYY-MM-DD]",
	Short: "Backfill stock bars, option contracts, trades, and quotes",
	Long:  "Reconciles stored date ranges against a target date per ticker and fetches missing stock bars, contract snapshots, option trades, and option quotes.",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		defer p.gw.Disconnect()

		ticker, endDate, err := parseBackfillArgs(args)
		if err != nil {
			return err
		}

		started := time.Now()

		var totals coordinator.Totals
		switch {
		case ticker == "" && endDate.IsZero():
			status("Backfilling all tickers to now...")
			totals, err = p.coord.BackfillAll(ctx)

		case ticker == "":
			status("Backfilling all tickers to %s...", endDate.Format(dateLayout))
			totals, err = p.coord.BackfillAllToDate(ctx, endDate)

		case endDate.IsZero():
			status("Backfilling %s to now...", ticker)
			totals, err = p.coord.BackfillTickerToDate(ctx, ticker, time.Now().UTC())

		default:
			status("Backfilling %s to %s...", ticker, endDate.Format(dateLayout))
			totals, err = p.coord.BackfillTickerToDate(ctx, ticker, endDate)
		}

		if err != nil {
			if ctx.Err() != nil {
				warnStatus("Backfill interrupted after %s", coordinator.FormatDuration(time.Since(started)))
				return nil
			}
			return err
		}

		status("Backfilled %d items (%d bars, %d contracts, %d trades, %d quotes) in %s",
			totals.Sum(), totals.StockBars, totals.Contracts, totals.Trades, totals.Quotes,
			coordinator.FormatDuration(time.Since(started)))
		return nil
	},
}

// parseBackfillArgs resolves the four argument shapes. A lone argument
// that parses as a date is a date; anything else is a ticker.
func parseBackfillArgs(args []string) (string, time.Time, error) {
	switch len(args) {
	case 0:
		return "", time.Time{}, nil

	case 1:
		if d, err := time.ParseInLocation(dateLayout, args[0], time.UTC); err == nil {
			return "", d, nil
		}
		return args[0], time.Time{}, nil

	default:
		d, err := time.ParseInLocation(dateLayout, args[1], time.UTC)
		if err != nil {
			return "", time.Time{}, fail("invalid date %q, expected YYYY-MM-DD", args[1])
		}
		return args[0], d, nil
	}
}

// init registers the backfill command.
func init() {
	rootCmd.AddCommand(backfillCmd)
}
