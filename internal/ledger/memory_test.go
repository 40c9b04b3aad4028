package ledger

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/Kcubez/crypto-predictor/internal/model"
)

func testForecast(price float64) *model.ForecastResult {
	return &model.ForecastResult{
		PredictedPrice: price,
		Confidence:     80,
		Trend:          model.TrendBullish,
		Reasoning:      "momentum continuation",
		Recommendation: model.Recommendation{Action: model.ActionBuy},
		Source:         model.SourceAI,
	}
}

func testClock() func() time.Time {
	t := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestRecordPendingIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testClock())

	first, err := store.RecordPending(ctx, "system", "2025-01-01", "2025-01-02", testForecast(90000))
	if err != nil {
		t.Fatalf("RecordPending() error = %v", err)
	}
	second, err := store.RecordPending(ctx, "system", "2025-01-01", "2025-01-02", testForecast(99999))
	if err != nil {
		t.Fatalf("RecordPending() second call error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("second call created a new record: id %s != %s", second.ID, first.ID)
	}
	if second.PredictedPrice != first.PredictedPrice {
		t.Errorf("second call mutated the record: price %v != %v", second.PredictedPrice, first.PredictedPrice)
	}

	history, _ := store.History(ctx)
	if len(history) != 1 {
		t.Errorf("ledger holds %d records, want 1", len(history))
	}
}

func TestReconcileComputesMetrics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testClock())

	if _, err := store.RecordPending(ctx, "system", "2025-01-01", "2025-01-02", testForecast(90000)); err != nil {
		t.Fatalf("RecordPending() error = %v", err)
	}

	rec, err := store.Reconcile(ctx, "2025-01-02", 91800)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if rec == nil {
		t.Fatal("Reconcile() returned nil record")
	}

	if rec.Status != model.StatusCompleted {
		t.Errorf("status = %v, want completed", rec.Status)
	}
	if *rec.Difference != 1800.00 {
		t.Errorf("difference = %v, want 1800.00", *rec.Difference)
	}
	if math.Abs(*rec.PercentageError-2.0) > 0.001 {
		t.Errorf("percentageError = %v, want ~2.00", *rec.PercentageError)
	}
	if *rec.ActualPrice != 91800 {
		t.Errorf("actualPrice = %v, want 91800", *rec.ActualPrice)
	}
	if rec.UpdatedAt == nil {
		t.Error("updatedAt not stamped")
	}
}

func TestReconcileAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testClock())

	if _, err := store.RecordPending(ctx, "system", "2025-01-01", "2025-01-02", testForecast(90000)); err != nil {
		t.Fatalf("RecordPending() error = %v", err)
	}
	first, err := store.Reconcile(ctx, "2025-01-02", 91800)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	// A completed record no longer matches: the second attempt is a miss.
	second, err := store.Reconcile(ctx, "2025-01-02", 50000)
	if err != nil {
		t.Fatalf("Reconcile() second call error = %v", err)
	}
	if second != nil {
		t.Errorf("second reconcile returned a record, want nil")
	}

	latest, _ := store.Latest(ctx)
	if *latest.ActualPrice != *first.ActualPrice || *latest.Difference != *first.Difference {
		t.Errorf("second reconcile mutated the record: %+v", latest)
	}
}

func TestReconcileNoMatchNoMutation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testClock())

	if _, err := store.RecordPending(ctx, "system", "2025-01-01", "2025-01-02", testForecast(90000)); err != nil {
		t.Fatalf("RecordPending() error = %v", err)
	}

	rec, err := store.Reconcile(ctx, "2025-01-05", 91800)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Reconcile() on unmatched date returned %+v, want nil", rec)
	}

	latest, _ := store.Latest(ctx)
	if latest.Status != model.StatusPending || latest.ActualPrice != nil {
		t.Errorf("unmatched reconcile mutated the ledger: %+v", latest)
	}
}

func TestAccuracyStats(t *testing.T) {
	tests := []struct {
		name         string
		actualPrices map[string]float64 // targetDate -> actual, reconciled in order
		predictions  map[string]float64 // targetDate -> predicted
		wantAvgErr   float64
		wantAccuracy float64
	}{
		{
			name:         "no completed records",
			predictions:  map[string]float64{"2025-01-02": 90000},
			wantAvgErr:   0,
			wantAccuracy: 0,
		},
		{
			name:         "ten percent error clamps to zero",
			predictions:  map[string]float64{"2025-01-02": 100000},
			actualPrices: map[string]float64{"2025-01-02": 110000},
			wantAvgErr:   10,
			wantAccuracy: 0,
		},
		{
			name:         "perfect prediction scores one hundred",
			predictions:  map[string]float64{"2025-01-02": 90000},
			actualPrices: map[string]float64{"2025-01-02": 90000},
			wantAvgErr:   0,
			wantAccuracy: 100,
		},
		{
			name: "two percent average",
			predictions: map[string]float64{
				"2025-01-02": 100000,
				"2025-01-03": 100000,
			},
			actualPrices: map[string]float64{
				"2025-01-02": 102000,
				"2025-01-03": 98000,
			},
			wantAvgErr:   2,
			wantAccuracy: 80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore(testClock())

			for target, price := range tt.predictions {
				if _, err := store.RecordPending(ctx, "system", "2025-01-01", target, testForecast(price)); err != nil {
					t.Fatalf("RecordPending() error = %v", err)
				}
			}
			for target, actual := range tt.actualPrices {
				if _, err := store.Reconcile(ctx, target, actual); err != nil {
					t.Fatalf("Reconcile() error = %v", err)
				}
			}

			stats, err := store.AccuracyStats(ctx)
			if err != nil {
				t.Fatalf("AccuracyStats() error = %v", err)
			}
			if math.IsNaN(stats.AverageError) || math.IsNaN(stats.Accuracy) {
				t.Fatal("stats contain NaN")
			}
			if math.Abs(stats.AverageError-tt.wantAvgErr) > 0.001 {
				t.Errorf("AverageError = %v, want %v", stats.AverageError, tt.wantAvgErr)
			}
			if math.Abs(stats.Accuracy-tt.wantAccuracy) > 0.001 {
				t.Errorf("Accuracy = %v, want %v", stats.Accuracy, tt.wantAccuracy)
			}
			if stats.TotalPredictions != len(tt.predictions) {
				t.Errorf("TotalPredictions = %d, want %d", stats.TotalPredictions, len(tt.predictions))
			}
			if stats.CompletedPredictions != len(tt.actualPrices) {
				t.Errorf("CompletedPredictions = %d, want %d", stats.CompletedPredictions, len(tt.actualPrices))
			}
		})
	}
}

func TestLatestAndPurge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testClock())

	if rec, err := store.Latest(ctx); err != nil || rec != nil {
		t.Fatalf("Latest() on empty ledger = (%v, %v), want (nil, nil)", rec, err)
	}

	_, _ = store.RecordPending(ctx, "system", "2025-01-01", "2025-01-02", testForecast(90000))
	_, _ = store.RecordPending(ctx, "system", "2025-01-02", "2025-01-03", testForecast(91000))

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.TargetDate != "2025-01-03" {
		t.Errorf("Latest().TargetDate = %s, want 2025-01-03", latest.TargetDate)
	}

	if err := store.PurgeLatest(ctx); err != nil {
		t.Fatalf("PurgeLatest() error = %v", err)
	}
	latest, _ = store.Latest(ctx)
	if latest == nil || latest.TargetDate != "2025-01-02" {
		t.Errorf("after PurgeLatest, latest = %+v, want target 2025-01-02", latest)
	}

	if err := store.PurgeAll(ctx); err != nil {
		t.Fatalf("PurgeAll() error = %v", err)
	}
	if rec, _ := store.Latest(ctx); rec != nil {
		t.Errorf("after PurgeAll, latest = %+v, want nil", rec)
	}
}
