//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package polygon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestGetAddsAPIKey verifies that the client appends the apiKey query
// parameter to every outgoing request.
func TestGetAddsAPIKey(t *testing.T) {
	var receivedKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedKey = r.URL.Query().Get("apiKey")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK"}`))
	}))
	defer server.Close()

	client := NewClient("my-secret-key")
	client.SetBaseURL(server.URL)

	var result map[string]interface{}
	err := client.get(context.Background(), "/test", nil, &result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedKey != "my-secret-key" {
		t.Errorf("expected apiKey=my-secret-key, got %s", receivedKey)
	}
}

// TestGetNon200Status verifies that a non-200 response surfaces as a
// StatusError carrying the status code and body.
func TestGetNon200Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := NewClient("key")
	client.SetBaseURL(server.URL)

	var result map[string]interface{}
	err := client.get(context.Background(), "/test", nil, &result)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}

	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", statusErr.StatusCode)
	}
}

// TestConvertTimestamp verifies nanosecond and millisecond conversion.
func TestConvertTimestamp(t *testing.T) {
	// 2024-03-01T14:30:00Z in nanoseconds.
	ns := int64(1709303400000000000)
	got := ConvertTimestamp(ns, true)
	expected := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	if !got.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}

	ms := int64(1709303400000)
	got = ConvertTimestamp(ms, false)
	if !got.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

// TestGetOptionContractsParams verifies the as_of, expired, and limit
// query parameters of the contracts listing.
func TestGetOptionContractsParams(t *testing.T) {
	var receivedParams map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedParams = map[string]string{
			"underlying_ticker": r.URL.Query().Get("underlying_ticker"),
			"as_of":             r.URL.Query().Get("as_of"),
			"expired":           r.URL.Query().Get("expired"),
			"limit":             r.URL.Query().Get("limit"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","results":[{"ticker":"O:TEST240315C00150000","underlying_ticker":"TEST","contract_type":"call","exercise_style":"american","expiration_date":"2024-03-15","shares_per_contract":100,"strike_price":150}]}`))
	}))
	defer server.Close()

	client := NewClient("key")
	client.SetBaseURL(server.URL)

	asOf := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	contracts, err := client.GetOptionContracts(context.Background(), "TEST", asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedParams["underlying_ticker"] != "TEST" {
		t.Errorf("expected underlying_ticker=TEST, got %s", receivedParams["underlying_ticker"])
	}

	if receivedParams["as_of"] != "2024-01-04" {
		t.Errorf("expected as_of=2024-01-04, got %s", receivedParams["as_of"])
	}

	if receivedParams["expired"] != "false" || receivedParams["limit"] != "1000" {
		t.Errorf("unexpected expired/limit params %v", receivedParams)
	}

	if len(contracts) != 1 || contracts[0].Ticker != "O:TEST240315C00150000" {
		t.Errorf("unexpected contracts %v", contracts)
	}
}

// TestGetOptionTradesWalksCursor verifies that pagination follows the
// vendor's next_url verbatim, re-attaching only the API key.
func TestGetOptionTradesWalksCursor(t *testing.T) {
	var requests []string

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.String())
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("cursor") == "abc" {
			w.Write([]byte(`{"status":"OK","results":[{"sip_timestamp":2000,"price":5.5,"size":2,"sequence_number":11}]}`))
			return
		}

		fmt.Fprintf(w, `{"status":"OK","next_url":"%s/v3/trades/O:TEST?cursor=abc","results":[{"sip_timestamp":1000,"price":5.0,"size":1,"sequence_number":10}]}`, server.URL)
	}))
	defer server.Close()

	client := NewClient("key")
	client.SetBaseURL(server.URL)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	trades, err := client.GetOptionTrades(context.Background(), "O:TEST", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades across pages, got %d", len(trades))
	}

	if trades[0].SequenceNumber != 10 || trades[1].SequenceNumber != 11 {
		t.Errorf("unexpected page order %v", trades)
	}

	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}

	// The cursor request must not re-add the base range filters.
	second := requests[1]
	if !strings.Contains(second, "cursor=abc") {
		t.Errorf("expected cursor in %s", second)
	}
	if strings.Contains(second, "timestamp.gte") {
		t.Errorf("did not expect base params re-added in %s", second)
	}
	if !strings.Contains(second, "apiKey=key") {
		t.Errorf("expected apiKey re-attached in %s", second)
	}
}

// TestGetOptionQuotesRange verifies the nanosecond range filter on the
// quotes listing.
func TestGetOptionQuotesRange(t *testing.T) {
	var gte, lt string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gte = r.URL.Query().Get("timestamp.gte")
		lt = r.URL.Query().Get("timestamp.lt")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","results":[{"sip_timestamp":1000,"bid_price":5.2,"bid_size":5,"ask_price":5.3,"ask_size":7,"sequence_number":3}]}`))
	}))
	defer server.Close()

	client := NewClient("key")
	client.SetBaseURL(server.URL)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	quotes, err := client.GetOptionQuotes(context.Background(), "O:TEST", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gte != fmt.Sprint(from.UnixNano()) || lt != fmt.Sprint(to.UnixNano()) {
		t.Errorf("unexpected range gte=%s lt=%s", gte, lt)
	}

	if len(quotes) != 1 || quotes[0].BidPrice != 5.2 {
		t.Errorf("unexpected quotes %v", quotes)
	}
}

// TestParseExpirationDate verifies vendor date string parsing.
func TestParseExpirationDate(t *testing.T) {
	ts, err := ParseExpirationDate("2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !ts.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", ts)
	}

	if _, err := ParseExpirationDate("03/15/2024"); err == nil {
		t.Error("expected error for malformed date")
	}
}
