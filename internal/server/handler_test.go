package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Kcubez/crypto-predictor/internal/ledger"
	"github.com/Kcubez/crypto-predictor/internal/model"
)

type fakeFetcher struct {
	klines json.RawMessage
	price  json.RawMessage
	err    error
}

func (f *fakeFetcher) FetchKlines(context.Context, string, string, int) (json.RawMessage, error) {
	return f.klines, f.err
}

func (f *fakeFetcher) FetchPrice(context.Context, string) (json.RawMessage, error) {
	return f.price, f.err
}

func newTestServer(t *testing.T, led ledger.Ledger, fetcher Fetcher) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewHandler(led, fetcher, "proxy-secret", "admin-secret").RegisterRoutes(e)
	return e
}

func seedRecord(t *testing.T, store *ledger.MemoryStore) *model.PredictionRecord {
	t.Helper()
	rec, err := store.RecordPending(context.Background(), "system", "2025-01-01", "2025-01-02", &model.ForecastResult{
		PredictedPrice: 96200,
		Confidence:     80,
		Trend:          model.TrendBullish,
		Recommendation: model.Recommendation{Action: model.ActionBuy},
		Source:         model.SourceAI,
	})
	if err != nil {
		t.Fatalf("seeding record: %v", err)
	}
	return rec
}

func TestLatestEndpoint(t *testing.T) {
	store := ledger.NewMemoryStore(nil)
	e := newTestServer(t, store, &fakeFetcher{})

	// Empty ledger is a 404, not an error payload.
	rec := httptest.NewRequest(http.MethodGet, "/api/predictions/latest", nil)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, rec)
	if res.Code != http.StatusNotFound {
		t.Errorf("empty ledger status = %d, want 404", res.Code)
	}

	seeded := seedRecord(t, store)

	res = httptest.NewRecorder()
	e.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/predictions/latest", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}

	var got model.PredictionRecord
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if got.ID != seeded.ID || got.PredictedPrice != 96200 {
		t.Errorf("latest = %+v, want seeded record", got)
	}
}

func TestHistoryEndpointIncludesStats(t *testing.T) {
	store := ledger.NewMemoryStore(nil)
	seedRecord(t, store)
	if _, err := store.Reconcile(context.Background(), "2025-01-02", 96200); err != nil {
		t.Fatalf("reconciling: %v", err)
	}

	e := newTestServer(t, store, &fakeFetcher{})
	res := httptest.NewRecorder()
	e.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/predictions/history", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}

	var body struct {
		Predictions []model.PredictionRecord `json:"predictions"`
		Stats       model.AccuracyStats      `json:"stats"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Predictions) != 1 {
		t.Errorf("got %d predictions, want 1", len(body.Predictions))
	}
	if body.Stats.Accuracy != 100 {
		t.Errorf("accuracy = %v, want 100 for a perfect prediction", body.Stats.Accuracy)
	}
}

func TestProxySharedSecret(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"missing key", "endpoint=price&symbol=BTCUSDT", http.StatusUnauthorized},
		{"wrong key", "key=guess&endpoint=price", http.StatusUnauthorized},
		{"bad endpoint", "key=proxy-secret&endpoint=account", http.StatusBadRequest},
		{"valid price", "key=proxy-secret&endpoint=price", http.StatusOK},
		{"valid klines", "key=proxy-secret&endpoint=klines&limit=10", http.StatusOK},
	}

	fetcher := &fakeFetcher{
		klines: json.RawMessage(`[[1735689600000, "93000", "95500", "92500", "95000", "1234"]]`),
		price:  json.RawMessage(`{"symbol": "BTCUSDT", "price": "95800.42"}`),
	}
	e := newTestServer(t, ledger.NewMemoryStore(nil), fetcher)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := httptest.NewRecorder()
			e.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/binance/proxy?"+tt.query, nil))
			if res.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.Code, tt.wantStatus)
			}

			var body proxyResponse
			if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if wantSuccess := tt.wantStatus == http.StatusOK; body.Success != wantSuccess {
				t.Errorf("success = %v, want %v", body.Success, wantSuccess)
			}
			if body.Timestamp == "" {
				t.Error("timestamp missing from envelope")
			}
		})
	}
}

func TestProxyUpstreamFailure(t *testing.T) {
	e := newTestServer(t, ledger.NewMemoryStore(nil), &fakeFetcher{err: errors.New("binance 451")})

	res := httptest.NewRecorder()
	e.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/binance/proxy?key=proxy-secret&endpoint=price", nil))
	if res.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", res.Code)
	}
	if !strings.Contains(res.Body.String(), "binance 451") {
		t.Errorf("error detail missing from body: %s", res.Body.String())
	}
}

func TestPurgeRequiresAdminKey(t *testing.T) {
	store := ledger.NewMemoryStore(nil)
	seedRecord(t, store)
	e := newTestServer(t, store, &fakeFetcher{})

	res := httptest.NewRecorder()
	e.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/api/predictions", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated purge status = %d, want 401", res.Code)
	}
	if rec, _ := store.Latest(context.Background()); rec == nil {
		t.Fatal("unauthenticated purge deleted records")
	}

	res = httptest.NewRecorder()
	e.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/api/predictions?key=admin-secret", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("authorized purge status = %d, want 200", res.Code)
	}
	if rec, _ := store.Latest(context.Background()); rec != nil {
		t.Fatal("authorized purge left records behind")
	}
}
