//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package dateutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudmanic/optionflow/internal/questdb"
)

// timestampLayout matches the textual timestamp form QuestDB returns in
// query datasets.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// testTablePrefix is prepended to table names when the pipeline runs in
// test mode so test data never lands in production tables.
const testTablePrefix = "test_"

// RangeQuery describes where a min/max/presence lookup should run: which
// table, which column holds the ticker, and which column holds the date.
type RangeQuery struct {
	Ticker      string
	TickerField string
	DateField   string
	Table       string
}

// NormalizeToMidnight returns the UTC midnight instant of the given
// time's calendar date. All date comparisons in the pipeline normalize
// through this function first.
func NormalizeToMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the UTC midnight of the current day.
func Today() time.Time {
	return NormalizeToMidnight(time.Now())
}

// NextDay returns the instant exactly one calendar day after t.
func NextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}

// PrevDay returns the instant exactly one calendar day before t.
func PrevDay(t time.Time) time.Time {
	return t.AddDate(0, 0, -1)
}

// DaysBetween returns the number of whole days from one midnight to
// another. Negative when to precedes from. Both inputs are normalized
// before the subtraction.
func DaysBetween(from, to time.Time) int {
	f := NormalizeToMidnight(from)
	t := NormalizeToMidnight(to)
	return int(t.Sub(f).Hours() / 24)
}

// TableName resolves a base table name for the current mode. In test mode
// the name gains a test_ prefix; a name that already carries the prefix is
// returned unchanged so repeated resolution is idempotent.
func TableName(base string, testMode bool) string {
	if !testMode {
		return base
	}

	if strings.HasPrefix(base, testTablePrefix) {
		return base
	}

	return testTablePrefix + base
}

// MinDate returns the oldest stored date for a ticker. When the table has
// no rows for the ticker, it returns today's midnight: callers treat the
// sentinel as "nothing to backfill behind". Use HasData when true absence
// matters.
func MinDate(ctx context.Context, gw questdb.Executor, q RangeQuery) (time.Time, error) {
	return boundaryDate(ctx, gw, q, "MIN")
}

// MaxDate returns the newest stored date for a ticker, with ok=false when
// the table holds no rows for it.
func MaxDate(ctx context.Context, gw questdb.Executor, q RangeQuery) (time.Time, bool, error) {
	sql := fmt.Sprintf(
		"SELECT MAX(%s) FROM %s WHERE %s = $1",
		q.DateField, q.Table, q.TickerField,
	)

	result, err := gw.Exec(ctx, sql, strings.ToUpper(q.Ticker))
	if err != nil {
		return time.Time{}, false, err
	}

	ts, ok := datasetTimestamp(result)
	if !ok {
		return time.Time{}, false, nil
	}

	return ts, true, nil
}

// HasData reports whether any row exists for the ticker in the table.
func HasData(ctx context.Context, gw questdb.Executor, q RangeQuery) (bool, error) {
	sql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 LIMIT 1",
		q.TickerField, q.Table, q.TickerField,
	)

	result, err := gw.Exec(ctx, sql, strings.ToUpper(q.Ticker))
	if err != nil {
		return false, err
	}

	return len(result.Dataset) > 0, nil
}

// boundaryDate runs a MIN or MAX aggregate over the date field. A missing
// or NULL result falls back to today's midnight.
func boundaryDate(ctx context.Context, gw questdb.Executor, q RangeQuery, fn string) (time.Time, error) {
	sql := fmt.Sprintf(
		"SELECT %s(%s) FROM %s WHERE %s = $1",
		fn, q.DateField, q.Table, q.TickerField,
	)

	result, err := gw.Exec(ctx, sql, strings.ToUpper(q.Ticker))
	if err != nil {
		return time.Time{}, err
	}

	ts, ok := datasetTimestamp(result)
	if !ok {
		return Today(), nil
	}

	return ts, nil
}

// datasetTimestamp extracts the first cell of the first row as an instant.
// QuestDB returns timestamps as ISO-8601 strings; NULL aggregates come
// back as JSON null.
func datasetTimestamp(result *questdb.Result) (time.Time, bool) {
	if len(result.Dataset) == 0 || len(result.Dataset[0]) == 0 {
		return time.Time{}, false
	}

	raw, ok := result.Dataset[0][0].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}

	ts, err := ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, false
	}

	return ts, true
}

// ParseTimestamp parses a timestamp string as returned by the store,
// accepting both microsecond-precision and bare RFC3339 forms.
func ParseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(timestampLayout, raw); err == nil {
		return ts, nil
	}

	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", raw, err)
	}

	return ts.UTC(), nil
}
