//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package questdb

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a query is attempted before Connect
// has succeeded (or after Disconnect).
var ErrNotConnected = errors.New("questdb: gateway is not connected")

// ConnectionError indicates the store endpoint was unreachable or refused
// the connection probe with a non-200 status.
type ConnectionError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("questdb: cannot connect to %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueryError indicates the store accepted the request but returned an
// error body for the submitted statement.
type QueryError struct {
	Query   string
	Message string
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("questdb: query failed: %s", e.Message)
}
