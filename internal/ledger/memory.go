package ledger

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kcubez/crypto-predictor/internal/model"
)

// MemoryStore is an in-process ledger with the same invariants as the
// Postgres store. Used for tests and local runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	records []model.PredictionRecord // insertion order
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory ledger. A nil clock defaults
// to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now}
}

// RecordPending inserts a pending forecast unless one already exists for
// targetDate, in which case the existing record is returned unchanged.
func (s *MemoryStore) RecordPending(_ context.Context, actor, madeOnDate, targetDate string, f *model.ForecastResult) (*model.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.pendingIndex(targetDate); i >= 0 {
		rec := s.records[i]
		return &rec, nil
	}

	rec := model.PredictionRecord{
		ID:             uuid.NewString(),
		Actor:          actor,
		MadeOnDate:     madeOnDate,
		TargetDate:     targetDate,
		PredictedPrice: round2(f.PredictedPrice),
		Confidence:     f.Confidence,
		Trend:          f.Trend,
		Reasoning:      f.Reasoning,
		Action:         f.Recommendation.Action,
		EntryZone:      f.Recommendation.EntryZone,
		Target:         f.Recommendation.Target,
		StopLoss:       f.Recommendation.StopLoss,
		MarketContext:  f.MarketContext,
		Source:         f.Source,
		Status:         model.StatusPending,
		CreatedAt:      s.now().UTC(),
	}
	s.records = append(s.records, rec)
	return &rec, nil
}

// Reconcile closes out the pending record for targetDate, or returns
// (nil, nil) when there is none. Completed records are never touched.
func (s *MemoryStore) Reconcile(_ context.Context, targetDate string, actualPrice float64) (*model.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.pendingIndex(targetDate)
	if i < 0 {
		return nil, nil
	}

	rec := &s.records[i]
	difference, percentageError := reconcileMetrics(rec.PredictedPrice, actualPrice)
	actual := round2(actualPrice)
	now := s.now().UTC()

	rec.ActualPrice = &actual
	rec.Difference = &difference
	rec.PercentageError = &percentageError
	rec.Status = model.StatusCompleted
	rec.UpdatedAt = &now

	out := *rec
	return &out, nil
}

// Latest returns the most recently created record, or (nil, nil).
func (s *MemoryStore) Latest(_ context.Context) (*model.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	rec := s.records[len(s.records)-1]
	return &rec, nil
}

// History returns all records, newest first.
func (s *MemoryStore) History(_ context.Context) ([]model.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.PredictionRecord, len(s.records))
	for i, rec := range s.records {
		out[len(s.records)-1-i] = rec
	}
	return out, nil
}

// AccuracyStats aggregates error metrics over completed records.
func (s *MemoryStore) AccuracyStats(_ context.Context) (*model.AccuracyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &model.AccuracyStats{TotalPredictions: len(s.records)}

	var sum float64
	for _, rec := range s.records {
		if rec.Status == model.StatusCompleted && rec.PercentageError != nil {
			stats.CompletedPredictions++
			sum += math.Abs(*rec.PercentageError)
		}
	}
	if stats.CompletedPredictions == 0 {
		return stats, nil
	}

	stats.AverageError = sum / float64(stats.CompletedPredictions)
	stats.Accuracy = accuracyScore(stats.AverageError)
	return stats, nil
}

// PurgeAll deletes every record.
func (s *MemoryStore) PurgeAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

// PurgeLatest deletes the most recently created record.
func (s *MemoryStore) PurgeLatest(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) > 0 {
		s.records = s.records[:len(s.records)-1]
	}
	return nil
}

// pendingIndex finds the pending record for targetDate. Caller holds s.mu.
func (s *MemoryStore) pendingIndex(targetDate string) int {
	for i, rec := range s.records {
		if rec.TargetDate == targetDate && rec.Status == model.StatusPending {
			return i
		}
	}
	return -1
}
