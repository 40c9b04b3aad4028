package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const klinesPayload = `[
	[1735689600000, "93000.00", "95500.00", "92500.00", "95000.00", "1234.56", 1735775999999],
	[1735776000000, "95000.00", "96800.00", "94000.00", "95800.00", "2345.67", 1735862399999]
]`

func newTestClient(baseURL string) *Client {
	return NewClient(ClientOptions{
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
		RequestsPerSec: 100,
		MaxAttempts:    3,
		RetryDelay:     10 * time.Millisecond,
	})
}

func TestGetCandlesParsesKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1d" || q.Get("limit") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("startTime") == "" || q.Get("endTime") == "" {
			t.Errorf("missing time range in query %s", r.URL.RawQuery)
		}
		w.Write([]byte(klinesPayload))
	}))
	defer srv.Close()

	candles, err := newTestClient(srv.URL).GetCandles(context.Background(), "BTCUSDT", "1d", 2)
	if err != nil {
		t.Fatalf("GetCandles() error = %v", err)
	}

	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if candles[0].OpenTime >= candles[1].OpenTime {
		t.Error("candles are not ordered oldest first")
	}
	first := candles[0]
	if first.Open != 93000 || first.High != 95500 || first.Low != 92500 || first.Close != 95000 || first.Volume != 1234.56 {
		t.Errorf("first candle parsed wrong: %+v", first)
	}
}

func TestGetCandlesRetriesThenSucceeds(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(klinesPayload))
	}))
	defer srv.Close()

	candles, err := newTestClient(srv.URL).GetCandles(context.Background(), "BTCUSDT", "1d", 2)
	if err != nil {
		t.Fatalf("GetCandles() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("made %d attempts, want 3", attempts)
	}
	if len(candles) != 2 {
		t.Errorf("got %d candles, want 2", len(candles))
	}
}

func TestGetCandlesSurfacesUpstreamFailure(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetCandles(context.Background(), "BTCUSDT", "1d", 2)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("GetCandles() error = %v, want ErrUpstreamUnavailable", err)
	}
	if attempts != 3 {
		t.Errorf("made %d attempts, want exactly 3", attempts)
	}
}

func TestGetCurrentPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"symbol": "BTCUSDT", "price": "95800.42"}`))
	}))
	defer srv.Close()

	price, err := newTestClient(srv.URL).GetCurrentPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetCurrentPrice() error = %v", err)
	}
	if price != 95800.42 {
		t.Errorf("price = %v, want 95800.42", price)
	}
}

func TestParseKlineRejectsShortArrays(t *testing.T) {
	if _, err := parseKline([]any{float64(1735689600000), "93000.00"}); err == nil {
		t.Error("parseKline() accepted a truncated kline")
	}
	if _, err := parseKline([]any{"not-a-number", "1", "2", "3", "4", "5"}); err == nil {
		t.Error("parseKline() accepted a non-numeric open time")
	}
}
