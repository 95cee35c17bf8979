//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cloudmanic/optionflow/internal/polygon"
	"github.com/cloudmanic/optionflow/internal/store"
	"github.com/cloudmanic/optionflow/internal/trades"
)

// ErrMaxConnections is returned when the feed rejects the session for
// exceeding the vendor's connection limit. It is fatal: no reconnect is
// attempted for this status.
var ErrMaxConnections = errors.New("stream: vendor connection limit reached")

// streamMultiplier is the shares-per-contract assumed for notional
// evaluation on the realtime path, where no contract lookup happens.
const streamMultiplier = 100

// allTradesChannel subscribes to every option trade; filtering down to
// the configured underlyings happens client-side.
const allTradesChannel = "T.*"

// Buffer and timer defaults. The buffer flushes when it reaches
// bufferFlushSize or on every periodic flush tick, whichever comes first.
const (
	bufferFlushSize       = 100
	defaultFlushInterval  = 5 * time.Second
	defaultHealthInterval = 30 * time.Second
	defaultSilenceTimeout = 90 * time.Second
	maxReconnectFailures  = 5
	reconnectWaitCap      = 30 * time.Second
)

// State is the connection lifecycle state of the engine.
type State int

// Connection states, in lifecycle order.
const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateSubscribed
)

// Conn is the feed connection surface the engine drives. Satisfied by
// *polygon.Feed and by test fakes.
type Conn interface {
	Authenticate(apiKey string) error
	Subscribe(params string) error
	Read() ([]polygon.Event, error)
	Close() error
}

// Dialer opens a feed connection. Injected so tests can supply scripted
// connections.
type Dialer func(wsURL string) (Conn, error)

// Writer is the slice of the write layer the engine needs.
type Writer interface {
	BatchUpsertOptionTrades(ctx context.Context, rows []store.OptionTrade) error
}

// Config holds the engine's connection and filtering settings.
type Config struct {
	WSURL     string
	APIKey    string
	Tickers   []string
	Threshold float64
}

// Engine streams realtime option trades: it owns the feed connection
// lifecycle (auth, subscribe, reconnect with backoff), filters events by
// notional threshold and configured underlyings, and batches surviving
// trades through a bounded buffer flushed at size or on a timer. A
// watchdog forces a reconnect after prolonged silence.
type Engine struct {
	cfg    Config
	writer Writer
	dial   Dialer
	log    zerolog.Logger

	tickerSet map[string]bool

	mu          sync.Mutex
	state       State
	conn        Conn
	buffer      []store.OptionTrade
	lastMessage time.Time

	// Timer settings, shortened in tests.
	flushInterval  time.Duration
	healthInterval time.Duration
	silenceTimeout time.Duration
	reconnectWait  time.Duration
}

// NewEngine creates a streaming trade engine. A nil dialer defaults to
// dialing the real feed.
func NewEngine(cfg Config, writer Writer, dial Dialer, log zerolog.Logger) *Engine {
	if dial == nil {
		dial = func(wsURL string) (Conn, error) {
			return polygon.DialFeed(wsURL)
		}
	}

	tickerSet := make(map[string]bool, len(cfg.Tickers))
	for _, t := range cfg.Tickers {
		tickerSet[t] = true
	}

	return &Engine{
		cfg:            cfg,
		writer:         writer,
		dial:           dial,
		log:            log.With().Str("component", "stream").Logger(),
		tickerSet:      tickerSet,
		flushInterval:  defaultFlushInterval,
		healthInterval: defaultHealthInterval,
		silenceTimeout: defaultSilenceTimeout,
		reconnectWait:  time.Second,
	}
}

// Run connects to the feed and processes events until the context is
// cancelled or the reconnect policy gives up. On cancellation the buffer
// is flushed once and Run returns nil; a vendor connection-limit
// rejection or five consecutive failed connection attempts return an
// error.
func (e *Engine) Run(ctx context.Context) error {
	flushCtx, stopTimers := context.WithCancel(context.Background())
	defer stopTimers()

	go e.flushLoop(flushCtx)
	go e.healthLoop(flushCtx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.reconnectWait
	bo.Multiplier = 2
	bo.MaxInterval = reconnectWaitCap
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	failures := 0
	firstAttempt := true

	for {
		if ctx.Err() != nil {
			e.shutdown()
			return nil
		}

		if !firstAttempt {
			wait := bo.NextBackOff()
			e.log.Info().Dur("wait", wait).Int("failures", failures).Msg("reconnecting to feed")

			select {
			case <-ctx.Done():
				e.shutdown()
				return nil
			case <-time.After(wait):
			}
		}
		firstAttempt = false

		err := e.runConnection(ctx)
		switch {
		case err == nil:
			// Context cancelled mid-connection.
			e.shutdown()
			return nil
		case errors.Is(err, ErrMaxConnections):
			e.shutdown()
			return err
		default:
			// A connection that subscribed successfully resets the policy
			// rather than counting as a failure.
			e.mu.Lock()
			subscribed := e.state == StateSubscribed
			e.state = StateDisconnected
			e.mu.Unlock()

			if subscribed {
				failures = 0
				bo.Reset()
			} else {
				failures++
			}

			e.log.Error().Err(err).Int("failures", failures).Msg("feed connection ended")
			if failures >= maxReconnectFailures {
				e.shutdown()
				return fmt.Errorf("stream: giving up after %d consecutive connection failures: %w", failures, err)
			}
		}
	}
}

// runConnection dials, authenticates, and reads events until the
// connection drops. Returns nil only when the context is cancelled.
func (e *Engine) runConnection(ctx context.Context) error {
	e.setState(StateConnecting)

	conn, err := e.dial(e.cfg.WSURL)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.lastMessage = time.Now()
	e.mu.Unlock()

	// Unblock a pending Read when the context is cancelled; Read has no
	// deadline of its own.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-connDone:
		}
	}()

	if err := conn.Authenticate(e.cfg.APIKey); err != nil {
		conn.Close()
		return fmt.Errorf("auth send failed: %w", err)
	}

	for {
		if ctx.Err() != nil {
			conn.Close()
			return nil
		}

		events, err := conn.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			conn.Close()
			return err
		}

		e.mu.Lock()
		e.lastMessage = time.Now()
		e.mu.Unlock()

		for _, ev := range events {
			if err := e.handleEvent(ctx, conn, ev); err != nil {
				conn.Close()
				return err
			}
		}
	}
}

// handleEvent dispatches one feed event. Status events drive the state
// machine; trade events go through the filter and buffer.
func (e *Engine) handleEvent(ctx context.Context, conn Conn, ev polygon.Event) error {
	switch ev.EventType {
	case "status":
		return e.handleStatus(conn, ev)
	case "T":
		e.handleTrade(ctx, ev)
		return nil
	default:
		return nil
	}
}

// handleStatus advances the connection state machine.
func (e *Engine) handleStatus(conn Conn, ev polygon.Event) error {
	switch ev.Status {
	case polygon.StatusConnected:
		return nil

	case polygon.StatusAuthSuccess:
		e.setState(StateAuthenticated)

		if err := conn.Subscribe(allTradesChannel); err != nil {
			return fmt.Errorf("subscribe send failed: %w", err)
		}

		e.setState(StateSubscribed)
		e.log.Info().Str("channel", allTradesChannel).Msg("subscribed to option trades")
		return nil

	case polygon.StatusAuthFailed:
		return fmt.Errorf("feed authentication failed: %s", ev.Message)

	case polygon.StatusMaxConnections:
		return ErrMaxConnections

	default:
		return nil
	}
}

// handleTrade validates and filters one trade event and appends the
// survivors to the buffer, flushing when the buffer reaches its size
// bound. Invalid events are dropped with a warning and never disconnect.
func (e *Engine) handleTrade(ctx context.Context, ev polygon.Event) {
	if ev.Price <= 0 || ev.Size <= 0 {
		e.log.Warn().
			Str("ticker", ev.Symbol).
			Float64("price", ev.Price).
			Float64("size", ev.Size).
			Msg("dropping trade event with non-positive price or size")
		return
	}

	underlying := trades.ExtractUnderlying(ev.Symbol)
	if underlying == "" {
		e.log.Warn().Str("ticker", ev.Symbol).Msg("dropping trade event with unparseable ticker")
		return
	}

	if !e.tickerSet[underlying] {
		return
	}

	notional := decimal.NewFromFloat(ev.Price).
		Mul(decimal.NewFromInt(streamMultiplier)).
		Mul(decimal.NewFromFloat(ev.Size))

	if notional.LessThan(decimal.NewFromFloat(e.cfg.Threshold)) {
		return
	}

	row := store.OptionTrade{
		Ticker:           ev.Symbol,
		UnderlyingTicker: underlying,
		Timestamp:        polygon.ConvertTimestamp(ev.Timestamp, false),
		Price:            ev.Price,
		Size:             ev.Size,
		Conditions:       marshalConditions(ev.Conditions),
		Exchange:         ev.Exchange,
		SequenceNumber:   ev.SequenceNumber,
	}

	e.mu.Lock()
	e.buffer = append(e.buffer, row)
	full := len(e.buffer) >= bufferFlushSize
	e.mu.Unlock()

	if full {
		e.Flush(ctx)
	}
}

// Flush drains the buffer and writes its contents in one batch. A write
// failure is logged and the drained trades are dropped; streaming is
// at-least-once only up to the store's dedup.
func (e *Engine) Flush(ctx context.Context) {
	e.mu.Lock()
	if len(e.buffer) == 0 {
		e.mu.Unlock()
		return
	}

	rows := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	if err := e.writer.BatchUpsertOptionTrades(ctx, rows); err != nil {
		e.log.Error().Err(err).Int("trades", len(rows)).Msg("stream buffer flush failed")
		return
	}

	e.log.Debug().Int("trades", len(rows)).Msg("flushed stream buffer")
}

// BufferLen reports the current buffer depth.
func (e *Engine) BufferLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

// State reports the current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// flushLoop drives the periodic buffer flush.
func (e *Engine) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Flush(ctx)
		}
	}
}

// healthLoop watches for message silence. When the feed has been quiet
// past the silence timeout in any state other than disconnected, the
// connection is closed so the run loop reconnects.
func (e *Engine) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(e.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			silent := e.state != StateDisconnected && time.Since(e.lastMessage) > e.silenceTimeout
			conn := e.conn
			e.mu.Unlock()

			if silent && conn != nil {
				e.log.Warn().Msg("feed silent past timeout, forcing reconnect")
				conn.Close()
			}
		}
	}
}

// setState updates the connection state under the engine lock.
func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// shutdown flushes the buffer one final time and closes the connection.
func (e *Engine) shutdown() {
	e.Flush(context.Background())

	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.state = StateDisconnected
	e.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// marshalConditions serializes condition codes as a JSON array string,
// writing "[]" for a missing list.
func marshalConditions(conditions []int) string {
	if len(conditions) == 0 {
		return "[]"
	}

	data, err := json.Marshal(conditions)
	if err != nil {
		return "[]"
	}

	return string(data)
}
