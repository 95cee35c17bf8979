//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package polygon

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Status values carried by "status" events on the options feed.
const (
	StatusConnected      = "connected"
	StatusAuthSuccess    = "auth_success"
	StatusAuthFailed     = "auth_failed"
	StatusMaxConnections = "max_connections"
)

// Event is one element of a WebSocket message from the options feed.
// Messages arrive as JSON arrays; trade events use EventType "T", control
// events use "status". Field tags follow the vendor's compressed keys.
type Event struct {
	EventType string `json:"ev"`

	// Status event fields.
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// Trade event fields. Timestamp is milliseconds since epoch.
	Symbol         string  `json:"sym,omitempty"`
	Price          float64 `json:"p,omitempty"`
	Size           float64 `json:"s,omitempty"`
	Conditions     []int   `json:"c,omitempty"`
	Exchange       int     `json:"x,omitempty"`
	Timestamp      int64   `json:"t,omitempty"`
	SequenceNumber int64   `json:"q,omitempty"`
}

// feedAction is the wire shape of control messages sent to the feed:
// auth and subscribe.
type feedAction struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Feed is a single WebSocket connection to the options trade feed. It
// covers dialing, the auth action, subscription management, and message
// reads; connection supervision (reconnects, health) belongs to the
// caller. Writes are serialized by a mutex.
type Feed struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialFeed opens a WebSocket connection to the given feed URL. The
// returned feed is connected but not yet authenticated.
func DialFeed(wsURL string) (*Feed, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	return &Feed{conn: conn}, nil
}

// Authenticate sends the auth action with the API key. The vendor answers
// with a status event; the caller drives the state machine off that.
func (f *Feed) Authenticate(apiKey string) error {
	return f.send(feedAction{Action: "auth", Params: apiKey})
}

// Subscribe sends a subscribe action for the given channel params, e.g.
// "T.*" for all option trades.
func (f *Feed) Subscribe(params string) error {
	return f.send(feedAction{Action: "subscribe", Params: params})
}

// Read blocks for the next message and parses it into events. Payloads
// normally arrive as a JSON array of events; a bare object is parsed as a
// single event.
func (f *Feed) Read() ([]Event, error) {
	_, message, err := f.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}

	var events []Event
	if err := json.Unmarshal(message, &events); err != nil {
		// Some control frames arrive as a bare object.
		var single Event
		if err2 := json.Unmarshal(message, &single); err2 != nil {
			return nil, fmt.Errorf("unparseable feed message: %w", err)
		}
		events = []Event{single}
	}

	return events, nil
}

// Close sends a close frame and tears down the connection.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil
	}

	err := f.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	if err != nil {
		f.conn.Close()
		return fmt.Errorf("failed to send close message: %w", err)
	}

	return f.conn.Close()
}

// send marshals and writes a control action under the write mutex.
func (f *Feed) send(action feedAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("websocket connection is not established")
	}

	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", action.Action, err)
	}

	if err := f.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s message: %w", action.Action, err)
	}

	return nil
}
