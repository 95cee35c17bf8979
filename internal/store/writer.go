//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudmanic/optionflow/internal/dateutil"
	"github.com/cloudmanic/optionflow/internal/questdb"
)

// Base table names. All access goes through Writer.Table so the test-mode
// prefix is applied in exactly one place.
const (
	TableStockAggregates      = "stock_aggregates"
	TableOptionContracts      = "option_contracts"
	TableOptionContractsIndex = "option_contracts_index"
	TableOptionTrades         = "option_trades"
	TableOptionQuotes         = "option_quotes"
	TableOptionTradesIndex    = "option_trades_index"
	TableSyncState            = "sync_state"
)

// Chunk bounds for batched writes. Aggregates ride smaller chunks than
// trades and quotes.
const (
	stockAggregateChunkSize = 50
	optionTradeChunkSize    = 100
	optionQuoteChunkSize    = 100
)

// Writer translates domain entities into SQL against the store gateway.
// It owns the upsert and insert-if-absent protocols and the chunking of
// bulk writes. Errors from the gateway surface unchanged; batch methods
// make no partial-commit guarantee across chunks.
type Writer struct {
	gw       questdb.Executor
	testMode bool
	log      zerolog.Logger
}

// NewWriter creates a write layer over the given gateway. When testMode is
// set, every table name gains the test_ prefix.
func NewWriter(gw questdb.Executor, testMode bool, log zerolog.Logger) *Writer {
	return &Writer{
		gw:       gw,
		testMode: testMode,
		log:      log.With().Str("component", "store").Logger(),
	}
}

// Table resolves a base table name for the current mode.
func (w *Writer) Table(base string) string {
	return dateutil.TableName(base, w.testMode)
}

// Gateway exposes the underlying executor for read-side queries that live
// in the engines.
func (w *Writer) Gateway() questdb.Executor {
	return w.gw
}

// UpsertStockAggregate writes a single bar. The store's dedup on
// (symbol, timestamp) absorbs duplicates, so a plain parameterized INSERT
// carries upsert semantics.
func (w *Writer) UpsertStockAggregate(ctx context.Context, row StockAggregate) error {
	sql := fmt.Sprintf(
		"INSERT INTO %s (symbol, open, high, low, close, volume, vwap, transaction_count, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		w.Table(TableStockAggregates),
	)

	_, err := w.gw.Exec(ctx, sql,
		row.Symbol, row.Open, row.High, row.Low, row.Close,
		row.Volume, row.VWAP, row.TransactionCount, row.Timestamp,
	)
	return err
}

// BatchUpsertStockAggregates writes bars in chunks of at most fifty rows
// per bulk statement. Empty input is a no-op.
func (w *Writer) BatchUpsertStockAggregates(ctx context.Context, rows []StockAggregate) error {
	return w.bulkInsertAggregates(ctx, rows)
}

// InsertIfAbsentStockAggregate writes the bar only when no row exists for
// its (symbol, timestamp) tuple.
func (w *Writer) InsertIfAbsentStockAggregate(ctx context.Context, row StockAggregate) error {
	sql := fmt.Sprintf(
		"SELECT 1 FROM %s WHERE symbol = $1 AND timestamp = $2",
		w.Table(TableStockAggregates),
	)

	result, err := w.gw.Exec(ctx, sql, row.Symbol, row.Timestamp)
	if err != nil {
		return err
	}

	if len(result.Dataset) > 0 {
		return nil
	}

	return w.UpsertStockAggregate(ctx, row)
}

// BatchInsertIfAbsentStockAggregates writes bars in chunks of at most
// fifty rows. Absence checking is delegated to the store's dedup keys, so
// each chunk is a single bulk insert. Empty input issues no SQL.
func (w *Writer) BatchInsertIfAbsentStockAggregates(ctx context.Context, rows []StockAggregate) error {
	return w.bulkInsertAggregates(ctx, rows)
}

// bulkInsertAggregates is the shared chunked multi-VALUES insert for bars.
func (w *Writer) bulkInsertAggregates(ctx context.Context, rows []StockAggregate) error {
	if len(rows) == 0 {
		return nil
	}

	table := w.Table(TableStockAggregates)
	for _, chunk := range chunkAggregates(rows, stockAggregateChunkSize) {
		values := make([]string, 0, len(chunk))
		for _, row := range chunk {
			v, err := valuesTuple(
				row.Symbol, row.Open, row.High, row.Low, row.Close,
				row.Volume, row.VWAP, row.TransactionCount, row.Timestamp,
			)
			if err != nil {
				return err
			}
			values = append(values, v)
		}

		sql := fmt.Sprintf(
			"INSERT INTO %s (symbol, open, high, low, close, volume, vwap, transaction_count, timestamp) VALUES %s",
			table, strings.Join(values, ", "),
		)

		if _, err := w.gw.BulkExec(ctx, sql); err != nil {
			return err
		}
	}

	return nil
}

// UpsertOptionContract inserts a new contract or updates the mutable
// fields of an existing one, keyed by ticker. The protocol is a presence
// check followed by INSERT or UPDATE; no as_of column participates.
func (w *Writer) UpsertOptionContract(ctx context.Context, row OptionContract) error {
	table := w.Table(TableOptionContracts)

	probe := fmt.Sprintf("SELECT ticker FROM %s WHERE ticker = $1", table)
	result, err := w.gw.Exec(ctx, probe, row.Ticker)
	if err != nil {
		return err
	}

	if len(result.Dataset) > 0 {
		sql := fmt.Sprintf(
			"UPDATE %s SET underlying_ticker = $2, contract_type = $3, exercise_style = $4, expiration_date = $5, shares_per_contract = $6, strike_price = $7 WHERE ticker = $1",
			table,
		)

		_, err := w.gw.Exec(ctx, sql,
			row.Ticker, row.UnderlyingTicker, row.ContractType, row.ExerciseStyle,
			row.ExpirationDate, row.SharesPerContract, row.StrikePrice,
		)
		return err
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (ticker, underlying_ticker, contract_type, exercise_style, expiration_date, shares_per_contract, strike_price, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		table,
	)

	_, err = w.gw.Exec(ctx, sql,
		row.Ticker, row.UnderlyingTicker, row.ContractType, row.ExerciseStyle,
		row.ExpirationDate, row.SharesPerContract, row.StrikePrice, time.Now().UTC(),
	)
	return err
}

// BatchUpsertOptionContracts upserts contracts one by one. The per-row
// presence check is what gives the upsert its semantics, so there is no
// multi-VALUES fast path here.
func (w *Writer) BatchUpsertOptionContracts(ctx context.Context, rows []OptionContract) error {
	for _, row := range rows {
		if err := w.UpsertOptionContract(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// UpsertOptionContractIndex records a snapshot marker for (underlying,
// as_of). Re-inserting an existing pair is a no-op, which keeps the
// snapshot walk idempotent.
func (w *Writer) UpsertOptionContractIndex(ctx context.Context, row OptionContractIndex) error {
	table := w.Table(TableOptionContractsIndex)

	probe := fmt.Sprintf(
		"SELECT underlying_ticker FROM %s WHERE underlying_ticker = $1 AND as_of = $2",
		table,
	)

	result, err := w.gw.Exec(ctx, probe, row.UnderlyingTicker, row.AsOf)
	if err != nil {
		return err
	}

	if len(result.Dataset) > 0 {
		return nil
	}

	sql := fmt.Sprintf("INSERT INTO %s (underlying_ticker, as_of) VALUES ($1, $2)", table)
	_, err = w.gw.Exec(ctx, sql, row.UnderlyingTicker, row.AsOf)
	return err
}

// UpsertOptionTrade writes a single trade; the store's dedup on the
// (ticker, timestamp, sequence_number) tuple absorbs duplicates.
func (w *Writer) UpsertOptionTrade(ctx context.Context, row OptionTrade) error {
	sql := fmt.Sprintf(
		"INSERT INTO %s (ticker, underlying_ticker, price, size, conditions, exchange, tape, sequence_number, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		w.Table(TableOptionTrades),
	)

	_, err := w.gw.Exec(ctx, sql,
		row.Ticker, row.UnderlyingTicker, row.Price, row.Size, row.Conditions,
		row.Exchange, row.Tape, row.SequenceNumber, row.Timestamp,
	)
	return err
}

// BatchUpsertOptionTrades writes trades in chunks of at most one hundred
// rows per bulk statement. Empty input is a no-op.
func (w *Writer) BatchUpsertOptionTrades(ctx context.Context, rows []OptionTrade) error {
	if len(rows) == 0 {
		return nil
	}

	table := w.Table(TableOptionTrades)
	for _, chunk := range chunkTrades(rows, optionTradeChunkSize) {
		values := make([]string, 0, len(chunk))
		for _, row := range chunk {
			v, err := valuesTuple(
				row.Ticker, row.UnderlyingTicker, row.Price, row.Size, row.Conditions,
				row.Exchange, row.Tape, row.SequenceNumber, row.Timestamp,
			)
			if err != nil {
				return err
			}
			values = append(values, v)
		}

		sql := fmt.Sprintf(
			"INSERT INTO %s (ticker, underlying_ticker, price, size, conditions, exchange, tape, sequence_number, timestamp) VALUES %s",
			table, strings.Join(values, ", "),
		)

		if _, err := w.gw.BulkExec(ctx, sql); err != nil {
			return err
		}
	}

	return nil
}

// UpsertOptionQuote writes a single quote.
func (w *Writer) UpsertOptionQuote(ctx context.Context, row OptionQuote) error {
	sql := fmt.Sprintf(
		"INSERT INTO %s (ticker, underlying_ticker, bid_price, bid_size, ask_price, ask_size, bid_exchange, ask_exchange, sequence_number, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		w.Table(TableOptionQuotes),
	)

	_, err := w.gw.Exec(ctx, sql,
		row.Ticker, row.UnderlyingTicker, row.BidPrice, row.BidSize,
		row.AskPrice, row.AskSize, row.BidExchange, row.AskExchange,
		row.SequenceNumber, row.Timestamp,
	)
	return err
}

// BatchUpsertOptionQuotes writes quotes in chunks of at most one hundred
// rows per bulk statement. Empty input is a no-op.
func (w *Writer) BatchUpsertOptionQuotes(ctx context.Context, rows []OptionQuote) error {
	if len(rows) == 0 {
		return nil
	}

	table := w.Table(TableOptionQuotes)
	for _, chunk := range chunkQuotes(rows, optionQuoteChunkSize) {
		values := make([]string, 0, len(chunk))
		for _, row := range chunk {
			v, err := valuesTuple(
				row.Ticker, row.UnderlyingTicker, row.BidPrice, row.BidSize,
				row.AskPrice, row.AskSize, row.BidExchange, row.AskExchange,
				row.SequenceNumber, row.Timestamp,
			)
			if err != nil {
				return err
			}
			values = append(values, v)
		}

		sql := fmt.Sprintf(
			"INSERT INTO %s (ticker, underlying_ticker, bid_price, bid_size, ask_price, ask_size, bid_exchange, ask_exchange, sequence_number, timestamp) VALUES %s",
			table, strings.Join(values, ", "),
		)

		if _, err := w.gw.BulkExec(ctx, sql); err != nil {
			return err
		}
	}

	return nil
}

// UpsertOptionTradeIndex advances the per-ticker trade high-water mark,
// inserting on first sight and updating last_sync afterwards.
func (w *Writer) UpsertOptionTradeIndex(ctx context.Context, row OptionTradeIndex) error {
	table := w.Table(TableOptionTradesIndex)

	probe := fmt.Sprintf("SELECT ticker FROM %s WHERE ticker = $1", table)
	result, err := w.gw.Exec(ctx, probe, row.Ticker)
	if err != nil {
		return err
	}

	if len(result.Dataset) > 0 {
		sql := fmt.Sprintf("UPDATE %s SET last_sync = $2 WHERE ticker = $1", table)
		_, err := w.gw.Exec(ctx, sql, row.Ticker, row.LastSync)
		return err
	}

	sql := fmt.Sprintf("INSERT INTO %s (ticker, last_sync) VALUES ($1, $2)", table)
	_, err = w.gw.Exec(ctx, sql, row.Ticker, row.LastSync)
	return err
}

// UpsertSyncState writes the streaming/catch-up state for a ticker. A nil
// LastAggregateTimestamp is stored as NULL.
func (w *Writer) UpsertSyncState(ctx context.Context, row SyncState) error {
	table := w.Table(TableSyncState)

	probe := fmt.Sprintf("SELECT ticker FROM %s WHERE ticker = $1", table)
	result, err := w.gw.Exec(ctx, probe, row.Ticker)
	if err != nil {
		return err
	}

	if len(result.Dataset) > 0 {
		sql := fmt.Sprintf(
			"UPDATE %s SET last_aggregate_timestamp = $2, is_streaming = $3, last_sync = $4 WHERE ticker = $1",
			table,
		)

		_, err := w.gw.Exec(ctx, sql, row.Ticker, row.LastAggregateTimestamp, row.IsStreaming, row.LastSync)
		return err
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (ticker, last_aggregate_timestamp, is_streaming, last_sync) VALUES ($1, $2, $3, $4)",
		table,
	)

	_, err = w.gw.Exec(ctx, sql, row.Ticker, row.LastAggregateTimestamp, row.IsStreaming, row.LastSync)
	return err
}

// valuesTuple renders one parenthesized VALUES tuple from literal values.
func valuesTuple(vals ...interface{}) (string, error) {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		lit, err := questdb.Literal(v)
		if err != nil {
			return "", err
		}
		parts = append(parts, lit)
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// chunkAggregates splits rows into slices of at most size elements.
func chunkAggregates(rows []StockAggregate, size int) [][]StockAggregate {
	var chunks [][]StockAggregate
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// chunkTrades splits rows into slices of at most size elements.
func chunkTrades(rows []OptionTrade, size int) [][]OptionTrade {
	var chunks [][]OptionTrade
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// chunkQuotes splits rows into slices of at most size elements.
func chunkQuotes(rows []OptionQuote, size int) [][]OptionQuote {
	var chunks [][]OptionQuote
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
