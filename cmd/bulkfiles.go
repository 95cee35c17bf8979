//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudmanic/optionflow/internal/bulkfiles"
	"github.com/cloudmanic/optionflow/internal/polygon"
	"github.com/cloudmanic/optionflow/internal/store"
	"github.com/cloudmanic/optionflow/internal/trades"
)

// bulkfilesCmd is the parent command for the bulk daily trade file path:
// listing, downloading, and ingesting gzipped CSV day files from the
// vendor's S3-compatible storage.
var bulkfilesCmd = &cobra.Command{
	Use:   "bulkfiles",
	Short: "Bulk daily option trade file commands",
	Long:  "Commands for listing, downloading, and ingesting bulk daily option trade files (gzipped CSVs) from the vendor's S3-compatible storage endpoint.",
}

// bulkfilesListCmd lists the daily trade files available for one month.
// Usage: optionflow bulkfiles list 2024 03
var bulkfilesListCmd = &cobra.Command{
	Use:   "list <year> <month>",
	Short: "List available daily trade files for a month",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}

		year, month, err := parseYearMonth(args[0], args[1])
		if err != nil {
			return err
		}

		files, err := p.newBulkClient().ListMonth(context.Background(), year, month)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tSIZE\tLAST MODIFIED")
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%d\t%s\n", f.Key, f.Size, f.LastModified.Format(time.RFC3339))
		}
		w.Flush()

		status("%d files", len(files))
		return nil
	},
}

// bulkfilesDownloadCmd downloads one day's trade file. A day the vendor
// has no file for produces a header-only blank file.
// Usage: optionflow bulkfiles download 2024-03-01
var bulkfilesDownloadCmd = &cobra.Command{
	Use:   "download <YYYY-MM-DD>",
	Short: "Download one day's trade file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}

		day, err := time.ParseInLocation(dateLayout, args[0], time.UTC)
		if err != nil {
			return fail("invalid date %q, expected YYYY-MM-DD", args[0])
		}

		dest, _ := cmd.Flags().GetString("output")
		if dest == "" {
			dest = filepath.Base(bulkfiles.DayKey(day))
		}

		if err := p.newBulkClient().DownloadDay(context.Background(), day, dest); err != nil {
			return err
		}

		status("Downloaded %s", dest)
		return nil
	},
}

// bulkfilesIngestCmd downloads one day's trade file and writes its rows
// into the store through the usual batched trade upsert, applying the
// configured notional threshold.
// Usage: optionflow bulkfiles ingest 2024-03-01
var bulkfilesIngestCmd = &cobra.Command{
	Use:   "ingest <YYYY-MM-DD>",
	Short: "Ingest one day's trade file into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}

		day, err := time.ParseInLocation(dateLayout, args[0], time.UTC)
		if err != nil {
			return fail("invalid date %q, expected YYYY-MM-DD", args[0])
		}

		ctx := context.Background()

		if err := p.gw.Connect(ctx); err != nil {
			return err
		}
		defer p.gw.Disconnect()

		if err := p.gw.RunSchema(ctx); err != nil {
			return err
		}

		rows, err := p.newBulkClient().FetchDay(ctx, day)
		if err != nil {
			return err
		}

		mapped := mapBulkTrades(rows, p.cfg.OptionTradeValueThreshold)
		if err := p.writer.BatchUpsertOptionTrades(ctx, mapped); err != nil {
			return err
		}

		status("Ingested %d of %d trades from %s", len(mapped), len(rows), day.Format(dateLayout))
		return nil
	},
}

// mapBulkTrades converts parsed file rows into trade entities, dropping
// rows with unparseable tickers and trades under the notional threshold.
// Bulk files carry no per-contract multiplier, so the standard 100 is
// used for the filter, matching the streaming path.
func mapBulkTrades(rows []bulkfiles.TradeRow, threshold float64) []store.OptionTrade {
	mapped := make([]store.OptionTrade, 0, len(rows))
	for _, row := range rows {
		underlying := trades.ExtractUnderlying(row.Ticker)
		if underlying == "" {
			continue
		}

		if row.Price*100*row.Size < threshold {
			continue
		}

		conditions := row.Conditions
		if conditions == "" {
			conditions = "[]"
		}

		mapped = append(mapped, store.OptionTrade{
			Ticker:           row.Ticker,
			UnderlyingTicker: underlying,
			Timestamp:        polygon.ConvertTimestamp(row.SipTimestamp, true),
			Price:            row.Price,
			Size:             row.Size,
			Conditions:       conditions,
			Exchange:         row.Exchange,
		})
	}
	return mapped
}

// parseYearMonth validates the list command's year and month arguments.
func parseYearMonth(yearArg, monthArg string) (int, time.Month, error) {
	t, err := time.Parse("2006 01", yearArg+" "+monthArg)
	if err != nil {
		return 0, 0, fail("invalid year/month %q %q, expected YYYY MM", yearArg, monthArg)
	}
	return t.Year(), t.Month(), nil
}

// init registers the bulkfiles command tree.
func init() {
	bulkfilesDownloadCmd.Flags().StringP("output", "o", "", "Destination path for the downloaded file")

	bulkfilesCmd.AddCommand(bulkfilesListCmd)
	bulkfilesCmd.AddCommand(bulkfilesDownloadCmd)
	bulkfilesCmd.AddCommand(bulkfilesIngestCmd)
	rootCmd.AddCommand(bulkfilesCmd)
}
