//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package questdb

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

// productionTables is the fixed list of tables dropped by Reset before the
// schema is re-applied.
var productionTables = []string{
	"stock_aggregates",
	"option_contracts",
	"option_contracts_index",
	"option_trades",
	"option_quotes",
	"option_trades_index",
	"sync_state",
}

// Column describes one column of a query result as reported by the store.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is a parsed response from the store's HTTP SQL endpoint. Dataset
// rows are positional and correspond to Columns.
type Result struct {
	Columns []Column        `json:"columns"`
	Dataset [][]interface{} `json:"dataset"`
	Count   int             `json:"count"`
}

// execResponse is the raw wire shape of an /exec response, including the
// error field present when a statement is rejected.
type execResponse struct {
	Columns []Column        `json:"columns"`
	Dataset [][]interface{} `json:"dataset"`
	Count   int             `json:"count"`
	Error   string          `json:"error"`
}

// Executor is the query surface the write layer and read helpers consume.
// It is satisfied by *Gateway and by test fakes.
type Executor interface {
	Exec(ctx context.Context, sql string, params ...interface{}) (*Result, error)
	BulkExec(ctx context.Context, sql string) (*Result, error)
}

// Gateway is the single entry point to the store's HTTP SQL endpoint. It
// performs client-side placeholder substitution and surfaces store errors
// as QueryError. The gateway holds no state beyond the connected flag;
// Exec and BulkExec are safe for concurrent use from multiple goroutines.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	bulkClient *http.Client
	log        zerolog.Logger

	mu        sync.Mutex
	connected bool
}

// NewGateway creates a gateway for the QuestDB HTTP endpoint at baseURL
// (e.g. http://localhost:9000). Regular statements run with a 30-second
// timeout; bulk multi-VALUES statements get 60 seconds.
func NewGateway(baseURL string, log zerolog.Logger) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		bulkClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log.With().Str("component", "questdb").Logger(),
	}
}

// Connect probes the endpoint with SELECT 1 and marks the gateway
// connected. Calling Connect on an already-connected gateway is a no-op.
// Returns a ConnectionError if the endpoint is unreachable or the probe
// does not come back clean.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.connected {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	if _, err := g.run(ctx, g.httpClient, "SELECT 1"); err != nil {
		return &ConnectionError{URL: g.baseURL, Err: err}
	}

	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()

	g.log.Debug().Str("url", g.baseURL).Msg("connected to store")
	return nil
}

// Disconnect clears the connected flag. It never fails and is safe to call
// repeatedly.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
}

// Connected reports whether Connect has succeeded.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Exec renders the $N placeholders in sql with the given parameters and
// runs the statement against the store. Returns ErrNotConnected before
// Connect, a QueryError when the store rejects the statement, or the
// parsed result.
func (g *Gateway) Exec(ctx context.Context, sql string, params ...interface{}) (*Result, error) {
	if !g.Connected() {
		return nil, ErrNotConnected
	}

	rendered, err := RenderQuery(sql, params)
	if err != nil {
		return nil, err
	}

	return g.run(ctx, g.httpClient, rendered)
}

// BulkExec runs a statement without placeholder substitution using the
// longer bulk timeout. Used for large multi-VALUES inserts.
func (g *Gateway) BulkExec(ctx context.Context, sql string) (*Result, error) {
	if !g.Connected() {
		return nil, ErrNotConnected
	}

	return g.run(ctx, g.bulkClient, sql)
}

// RunSchema executes the embedded schema file statement by statement.
// Statements are split on semicolons and blank fragments are skipped.
func (g *Gateway) RunSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := g.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}

// Reset drops every production table and re-runs the schema. Destructive;
// intended for test and development environments only.
func (g *Gateway) Reset(ctx context.Context) error {
	for _, table := range productionTables {
		if _, err := g.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("dropping %s: %w", table, err)
		}

		g.log.Info().Str("table", table).Msg("dropped table")
	}

	return g.RunSchema(ctx)
}

// run submits a single rendered statement over GET /exec and parses the
// response. Transport errors propagate; an error field in the body becomes
// a QueryError.
func (g *Gateway) run(ctx context.Context, client *http.Client, sql string) (*Result, error) {
	u := g.baseURL + "/exec?query=" + url.QueryEscape(sql)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed execResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Non-JSON bodies only show up alongside transport-level failures.
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("store error (status %d): %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if parsed.Error != "" {
		return nil, &QueryError{Query: sql, Message: parsed.Error}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store error (status %d): %s", resp.StatusCode, string(body))
	}

	return &Result{
		Columns: parsed.Columns,
		Dataset: parsed.Dataset,
		Count:   parsed.Count,
	}, nil
}
