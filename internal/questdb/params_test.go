//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package questdb

import (
	"strings"
	"testing"
	"time"
)

// TestRenderQueryBasicTypes verifies literal rendering for strings,
// numbers, booleans, and nil parameters.
func TestRenderQueryBasicTypes(t *testing.T) {
	sql, err := RenderQuery(
		"INSERT INTO t VALUES ($1, $2, $3, $4, $5)",
		[]interface{}{"AAPL", 42, 1.5, true, nil},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "INSERT INTO t VALUES ('AAPL', 42, 1.5, true, NULL)"
	if sql != expected {
		t.Errorf("expected %s, got %s", expected, sql)
	}
}

// TestRenderQueryQuoteEscaping verifies that embedded single quotes in
// string parameters are doubled.
func TestRenderQueryQuoteEscaping(t *testing.T) {
	sql, err := RenderQuery("SELECT * FROM t WHERE name = $1", []interface{}{"O'HARE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(sql, "'O''HARE'") {
		t.Errorf("expected doubled quote in %s", sql)
	}
}

// TestRenderQueryTenthPlaceholder verifies that $10 is treated as index
// ten rather than $1 followed by a literal zero.
func TestRenderQueryTenthPlaceholder(t *testing.T) {
	params := []interface{}{"a", "b", "c", "d", "e", "f", "g", "h", "i", "tenth"}

	sql, err := RenderQuery("SELECT $1, $10", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SELECT 'a', 'tenth'"
	if sql != expected {
		t.Errorf("expected %s, got %s", expected, sql)
	}
}

// TestRenderQueryTimestamp verifies that time values render as quoted
// ISO-8601 UTC strings regardless of their source location.
func TestRenderQueryTimestamp(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	ts := time.Date(2024, 1, 5, 19, 30, 0, 0, loc)

	sql, err := RenderQuery("SELECT $1", []interface{}{ts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SELECT '2024-01-06T00:30:00.000000Z'"
	if sql != expected {
		t.Errorf("expected %s, got %s", expected, sql)
	}
}

// TestRenderQueryNilTimePointer verifies that a nil *time.Time renders
// as NULL, matching the nullable sync state column.
func TestRenderQueryNilTimePointer(t *testing.T) {
	var ts *time.Time

	sql, err := RenderQuery("SELECT $1", []interface{}{ts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sql != "SELECT NULL" {
		t.Errorf("expected SELECT NULL, got %s", sql)
	}
}

// TestRenderQueryBareDollar verifies that a dollar sign with no digit
// after it passes through untouched.
func TestRenderQueryBareDollar(t *testing.T) {
	sql, err := RenderQuery("SELECT '$' FROM t WHERE x = $1", []interface{}{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sql != "SELECT '$' FROM t WHERE x = 1" {
		t.Errorf("unexpected render %s", sql)
	}
}

// TestRenderQueryOutOfRange verifies that a placeholder index past the
// parameter list is rejected.
func TestRenderQueryOutOfRange(t *testing.T) {
	if _, err := RenderQuery("SELECT $2", []interface{}{1}); err == nil {
		t.Error("expected out-of-range error for $2 with one param")
	}
}

// TestRenderQueryNoParams verifies that templates run unchanged when no
// parameters are supplied.
func TestRenderQueryNoParams(t *testing.T) {
	sql, err := RenderQuery("SELECT $1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sql != "SELECT $1" {
		t.Errorf("expected template unchanged, got %s", sql)
	}
}
