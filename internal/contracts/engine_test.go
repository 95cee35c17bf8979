//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package contracts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmanic/optionflow/internal/dateutil"
	"github.com/cloudmanic/optionflow/internal/polygon"
	"github.com/cloudmanic/optionflow/internal/questdb"
	"github.com/cloudmanic/optionflow/internal/store"
)

// fakeVendor plays back canned contract snapshots per as-of date and
// records the dates requested.
type fakeVendor struct {
	byDate map[string][]polygon.Contract
	errOn  map[string]error
	calls  []string
}

func (f *fakeVendor) GetOptionContracts(ctx context.Context, underlying string, asOf time.Time) ([]polygon.Contract, error) {
	day := asOf.UTC().Format("2006-01-02")
	f.calls = append(f.calls, day)

	if err := f.errOn[day]; err != nil {
		return nil, err
	}

	return f.byDate[day], nil
}

// fakeWriter records upserted contracts and index markers, deduplicating
// index pairs the way the real write layer does.
type fakeWriter struct {
	contracts  []store.OptionContract
	index      map[string]time.Time
	newestAsOf *time.Time
}

func (f *fakeWriter) BatchUpsertOptionContracts(ctx context.Context, rows []store.OptionContract) error {
	f.contracts = append(f.contracts, rows...)
	return nil
}

func (f *fakeWriter) UpsertOptionContractIndex(ctx context.Context, row store.OptionContractIndex) error {
	if f.index == nil {
		f.index = map[string]time.Time{}
	}
	key := row.UnderlyingTicker + "|" + row.AsOf.Format("2006-01-02")
	f.index[key] = row.AsOf
	return nil
}

func (f *fakeWriter) Table(base string) string {
	return base
}

func (f *fakeWriter) Gateway() questdb.Executor {
	return &indexExecutor{newestAsOf: f.newestAsOf}
}

// indexExecutor answers MAX(as_of) lookups for CatchUp.
type indexExecutor struct {
	newestAsOf *time.Time
}

func (e *indexExecutor) Exec(ctx context.Context, sql string, params ...interface{}) (*questdb.Result, error) {
	if e.newestAsOf == nil {
		return &questdb.Result{Dataset: [][]interface{}{{nil}}}, nil
	}
	return &questdb.Result{
		Dataset: [][]interface{}{{e.newestAsOf.UTC().Format("2006-01-02T15:04:05.000000Z")}},
	}, nil
}

func (e *indexExecutor) BulkExec(ctx context.Context, sql string) (*questdb.Result, error) {
	return &questdb.Result{}, nil
}

func newTestEngine(vendor *fakeVendor, writer *fakeWriter) *Engine {
	e := NewEngine(vendor, writer, zerolog.Nop())
	e.pause = 0
	return e
}

func contract(ticker string, strike float64) polygon.Contract {
	return polygon.Contract{
		Ticker:            ticker,
		UnderlyingTicker:  "TEST",
		ContractType:      "call",
		ExerciseStyle:     "american",
		ExpirationDate:    "2024-03-15",
		SharesPerContract: 100,
		StrikePrice:       strike,
	}
}

// TestBackfillAsOfRangeWalksBackwards verifies the concrete snapshot walk
// scenario: from 2024-01-05 down to 2024-01-03, the vendor is asked for
// exactly 2024-01-04 and 2024-01-03, and the index records both pairs.
func TestBackfillAsOfRangeWalksBackwards(t *testing.T) {
	vendor := &fakeVendor{
		byDate: map[string][]polygon.Contract{
			"2024-01-04": {contract("O:TEST240315C00150000", 150), contract("O:TEST240315P00140000", 140)},
			"2024-01-03": {contract("O:TEST240315C00150000", 150), contract("O:TEST240315P00140000", 140), contract("O:TEST240315C00160000", 160)},
		},
	}
	writer := &fakeWriter{}
	engine := newTestEngine(vendor, writer)

	total, err := engine.BackfillAsOfRange(
		context.Background(), "TEST",
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-04", "2024-01-03"}, vendor.calls)
	assert.Equal(t, 5, total)

	require.Len(t, writer.index, 2)
	assert.Contains(t, writer.index, "TEST|2024-01-04")
	assert.Contains(t, writer.index, "TEST|2024-01-03")
}

// TestBackfillAsOfRangeIsolatesDayErrors verifies that a vendor failure
// on one day does not stop the walk from reaching the next day.
func TestBackfillAsOfRangeIsolatesDayErrors(t *testing.T) {
	vendor := &fakeVendor{
		byDate: map[string][]polygon.Contract{
			"2024-01-03": {contract("O:TEST240315C00150000", 150)},
		},
		errOn: map[string]error{
			"2024-01-04": errors.New("vendor unavailable"),
		},
	}
	writer := &fakeWriter{}
	engine := newTestEngine(vendor, writer)

	total, err := engine.BackfillAsOfRange(
		context.Background(), "TEST",
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-04", "2024-01-03"}, vendor.calls)
	assert.Equal(t, 1, total)
	assert.Contains(t, writer.index, "TEST|2024-01-03")
	assert.NotContains(t, writer.index, "TEST|2024-01-04")
}

// TestBackfillAsOfRangeHonorsCancellation verifies the walk stops at the
// first iteration once the context is cancelled.
func TestBackfillAsOfRangeHonorsCancellation(t *testing.T) {
	vendor := &fakeVendor{}
	writer := &fakeWriter{}
	engine := newTestEngine(vendor, writer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.BackfillAsOfRange(
		ctx, "TEST",
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, vendor.calls)
}

// TestIngestAsOfNormalizesIndexDate verifies the index marker is written
// with a midnight-normalized as_of even for a mid-day input.
func TestIngestAsOfNormalizesIndexDate(t *testing.T) {
	vendor := &fakeVendor{
		byDate: map[string][]polygon.Contract{
			"2024-01-04": {contract("O:TEST240315C00150000", 150)},
		},
	}
	writer := &fakeWriter{}
	engine := newTestEngine(vendor, writer)

	_, err := engine.IngestAsOf(
		context.Background(), "TEST",
		time.Date(2024, 1, 4, 15, 45, 30, 0, time.UTC),
	)
	require.NoError(t, err)

	asOf, ok := writer.index["TEST|2024-01-04"]
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), asOf)
}

// TestIngestAsOfSkipsBadExpiration verifies an unparseable expiration
// date drops the row without failing the snapshot.
func TestIngestAsOfSkipsBadExpiration(t *testing.T) {
	bad := contract("O:TEST240315C00170000", 170)
	bad.ExpirationDate = "not-a-date"

	vendor := &fakeVendor{
		byDate: map[string][]polygon.Contract{
			"2024-01-04": {contract("O:TEST240315C00150000", 150), bad},
		},
	}
	writer := &fakeWriter{}
	engine := newTestEngine(vendor, writer)

	count, err := engine.IngestAsOf(context.Background(), "TEST", time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	require.Len(t, writer.contracts, 1)
	assert.Equal(t, "O:TEST240315C00150000", writer.contracts[0].Ticker)
}

// TestCatchUpFirstRunIngestsToday verifies that with no recorded as_of
// the catch-up ingests exactly the current day.
func TestCatchUpFirstRunIngestsToday(t *testing.T) {
	vendor := &fakeVendor{}
	writer := &fakeWriter{}
	engine := newTestEngine(vendor, writer)

	_, err := engine.CatchUp(context.Background(), "TEST")
	require.NoError(t, err)

	require.Len(t, vendor.calls, 1)
	assert.Equal(t, dateutil.Today().Format("2006-01-02"), vendor.calls[0])
}

// TestCatchUpWalksForward verifies the forward walk runs from the day
// after the newest as_of through today.
func TestCatchUpWalksForward(t *testing.T) {
	newest := dateutil.PrevDay(dateutil.PrevDay(dateutil.Today()))

	vendor := &fakeVendor{}
	writer := &fakeWriter{newestAsOf: &newest}
	engine := newTestEngine(vendor, writer)

	_, err := engine.CatchUp(context.Background(), "TEST")
	require.NoError(t, err)

	expected := []string{
		dateutil.PrevDay(dateutil.Today()).Format("2006-01-02"),
		dateutil.Today().Format("2006-01-02"),
	}
	assert.Equal(t, expected, vendor.calls)
}
