// Package ledger is the prediction reconciliation ledger: it records a
// pending forecast keyed by its target date and later closes it out by
// matching an observed price to that date, computing error metrics
// exactly once.
package ledger

import (
	"context"
	"math"

	"github.com/Kcubez/crypto-predictor/internal/model"
)

// Ledger is the persistence-and-matching policy behind the forecaster.
//
// RecordPending is idempotent per target date: at most one pending record
// exists for any target date, and re-recording returns the existing record
// unchanged. Reconcile transitions a record pending -> completed exactly
// once; a date with no pending record is a miss, not an error (nil, nil).
type Ledger interface {
	RecordPending(ctx context.Context, actor, madeOnDate, targetDate string, f *model.ForecastResult) (*model.PredictionRecord, error)
	Reconcile(ctx context.Context, targetDate string, actualPrice float64) (*model.PredictionRecord, error)
	Latest(ctx context.Context) (*model.PredictionRecord, error)
	History(ctx context.Context) ([]model.PredictionRecord, error)
	AccuracyStats(ctx context.Context) (*model.AccuracyStats, error)
	PurgeAll(ctx context.Context) error
	PurgeLatest(ctx context.Context) error
}

// round2 rounds to 2 decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// reconcileMetrics computes the error metrics recorded at the
// pending -> completed transition.
func reconcileMetrics(predicted, actual float64) (difference, percentageError float64) {
	difference = round2(actual - predicted)
	percentageError = (actual - predicted) / predicted * 100
	return difference, percentageError
}

// accuracyScore converts the mean absolute percentage error into a 0-100
// score: 0% error scores 100, 10% error and above scores 0.
func accuracyScore(averageAbsError float64) float64 {
	return math.Max(0, math.Min(100, 100-averageAbsError*10))
}
