//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default values applied when the corresponding environment variable is
// unset. Thresholds and chunk sizes mirror the pipeline's write-path limits.
const (
	defaultPolygonBaseURL   = "https://api.polygon.io"
	defaultPolygonWSURL     = "wss://socket.polygon.io/options"
	defaultAlpacaDataURL    = "https://data.alpaca.markets"
	defaultQuestDBHost      = "localhost"
	defaultQuestDBPort      = 9000
	defaultTradeThreshold   = 10000
	defaultQuoteChunkSize   = 1000
	defaultConcurrencyLimit = 5
	defaultBackfillMaxDays  = 0
)

// Config holds the full pipeline configuration materialized from the
// environment. It is passed by value into the engines; nothing reads the
// environment after FromEnv returns.
type Config struct {
	// Polygon (options vendor) credentials and endpoints.
	PolygonAPIKey  string
	PolygonBaseURL string
	PolygonWSURL   string

	// Polygon flat-file (bulk download) S3 credentials.
	PolygonAccessKey string
	PolygonSecretKey string

	// Alpaca (equity bars vendor) credentials and endpoint.
	AlpacaAPIKeyID     string
	AlpacaAPISecretKey string
	AlpacaDataURL      string

	// QuestDB HTTP SQL endpoint.
	QuestDBHost string
	QuestDBPort int

	// Tickers is the set of configured underlyings, parsed from the
	// comma-separated TICKERS variable.
	Tickers []string

	// OptionTradeValueThreshold is the minimum notional
	// (price x shares_per_contract x size) a trade must reach to be kept.
	OptionTradeValueThreshold float64

	// Skip flags disable individual ingestion stages.
	SkipOptionContracts bool
	SkipOptionTrades    bool
	SkipOptionQuotes    bool
	SkipStockAggregates bool

	// OptionQuotesChunkSize bounds the rows per quote write chunk.
	OptionQuotesChunkSize int

	// OptionConcurrencyLimit bounds the per-option-ticker worker pool.
	OptionConcurrencyLimit int

	// BackfillMaxDays caps how many days a single backfill path may span.
	// Zero means no cap.
	BackfillMaxDays int

	// TestMode toggles the test_ table prefix. Driven by NODE_ENV=test,
	// a name kept from the original deployment environment.
	TestMode bool

	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string
}

// FromEnv builds a Config from the process environment. Unset variables
// fall back to the documented defaults; malformed numeric variables return
// an error rather than being silently ignored.
func FromEnv() (Config, error) {
	cfg := Config{
		PolygonAPIKey:      os.Getenv("POLYGON_API_KEY"),
		PolygonBaseURL:     envOrDefault("POLYGON_BASE_URL", defaultPolygonBaseURL),
		PolygonWSURL:       envOrDefault("POLYGON_WS_URL", defaultPolygonWSURL),
		PolygonAccessKey:   os.Getenv("POLYGON_ACCESS_KEY"),
		PolygonSecretKey:   os.Getenv("POLYGON_SECRET_KEY"),
		AlpacaAPIKeyID:     os.Getenv("ALPACA_API_KEY_ID"),
		AlpacaAPISecretKey: os.Getenv("ALPACA_API_SECRET_KEY"),
		AlpacaDataURL:      envOrDefault("ALPACA_DATA_URL", defaultAlpacaDataURL),
		QuestDBHost:        envOrDefault("QUESTDB_HOST", defaultQuestDBHost),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		TestMode:           os.Getenv("NODE_ENV") == "test",
	}

	cfg.Tickers = parseTickers(os.Getenv("TICKERS"))

	var err error

	cfg.QuestDBPort, err = envInt("QUESTDB_PORT", defaultQuestDBPort)
	if err != nil {
		return Config{}, err
	}

	cfg.OptionTradeValueThreshold, err = envFloat("POLYGON_OPTION_TRADE_VALUE_THRESHOLD", defaultTradeThreshold)
	if err != nil {
		return Config{}, err
	}

	cfg.OptionQuotesChunkSize, err = envInt("OPTION_QUOTES_CHUNK_SIZE", defaultQuoteChunkSize)
	if err != nil {
		return Config{}, err
	}

	cfg.OptionConcurrencyLimit, err = envInt("OPTION_CONCURRENCY_LIMIT", defaultConcurrencyLimit)
	if err != nil {
		return Config{}, err
	}

	cfg.BackfillMaxDays, err = envInt("BACKFILL_MAX_DAYS", defaultBackfillMaxDays)
	if err != nil {
		return Config{}, err
	}

	cfg.SkipOptionContracts = envBool("POLYGON_SKIP_OPTION_CONTRACTS")
	cfg.SkipOptionTrades = envBool("POLYGON_SKIP_OPTION_TRADES")
	cfg.SkipOptionQuotes = envBool("POLYGON_SKIP_OPTION_QUOTES")
	cfg.SkipStockAggregates = envBool("ALPACA_SKIP_STOCK_AGGREGATES")

	return cfg, nil
}

// QuestDBURL returns the base URL of the QuestDB HTTP SQL endpoint.
func (c Config) QuestDBURL() string {
	return fmt.Sprintf("http://%s:%d", c.QuestDBHost, c.QuestDBPort)
}

// HasTicker reports whether the given underlying is in the configured
// ticker set. Comparison is case-insensitive.
func (c Config) HasTicker(ticker string) bool {
	for _, t := range c.Tickers {
		if strings.EqualFold(t, ticker) {
			return true
		}
	}
	return false
}

// parseTickers splits a comma-separated ticker list, trimming whitespace
// and dropping empty entries. Tickers are upper-cased for consistency with
// the vendor APIs.
func parseTickers(raw string) []string {
	if raw == "" {
		return nil
	}

	var tickers []string
	for _, part := range strings.Split(raw, ",") {
		t := strings.ToUpper(strings.TrimSpace(part))
		if t != "" {
			tickers = append(tickers, t)
		}
	}
	return tickers
}

// envOrDefault returns the environment variable's value, or the fallback
// when the variable is unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt parses an integer environment variable, returning the fallback
// when unset and an error when set but unparseable.
func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, v)
	}
	return n, nil
}

// envFloat parses a float environment variable, returning the fallback
// when unset and an error when set but unparseable.
func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a number", key, v)
	}
	return f, nil
}

// envBool interprets a boolean environment variable. The values "true",
// "1", and "yes" (any case) count as true; everything else, including
// unset, is false.
func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
