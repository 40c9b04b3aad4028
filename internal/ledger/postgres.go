package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kcubez/crypto-predictor/internal/config"
	"github.com/Kcubez/crypto-predictor/internal/model"
)

// PostgresStore is the durable ledger implementation.
type PostgresStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresStore opens a connection and creates the schema if needed.
func NewPostgresStore(params config.DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &PostgresStore{
		db:     db,
		logger: log.With().Str("component", "ledger_postgres").Logger(),
	}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			made_on_date TEXT NOT NULL,
			target_date TEXT NOT NULL,
			predicted_price DOUBLE PRECISION NOT NULL,
			actual_price DOUBLE PRECISION,
			difference DOUBLE PRECISION,
			percentage_error DOUBLE PRECISION,
			confidence INTEGER NOT NULL,
			trend TEXT NOT NULL,
			reasoning TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT 'HOLD',
			entry_zone TEXT NOT NULL DEFAULT '',
			target TEXT NOT NULL DEFAULT '',
			stop_loss TEXT NOT NULL DEFAULT '',
			market_context TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'ai',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}

	// One open forecast per future date, enforced at the store level so
	// concurrent runs cannot slip past the pre-insert existence check.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS predictions_pending_target_idx
		ON predictions (target_date) WHERE status = 'pending'
	`)
	return err
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const recordColumns = `
	id, actor, made_on_date, target_date, predicted_price,
	actual_price, difference, percentage_error,
	confidence, trend, reasoning, action, entry_zone, target, stop_loss,
	market_context, source, status, created_at, updated_at`

// RecordPending inserts a new pending forecast for targetDate. If a
// pending record for that date already exists it is returned unchanged.
func (s *PostgresStore) RecordPending(ctx context.Context, actor, madeOnDate, targetDate string, f *model.ForecastResult) (*model.PredictionRecord, error) {
	existing, err := s.pendingByTargetDate(ctx, targetDate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Info().Str("target_date", targetDate).Str("id", existing.ID).
			Msg("Pending forecast already exists, returning it unchanged")
		return existing, nil
	}

	rec := &model.PredictionRecord{
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
		CreatedAt:      time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO predictions (
			id, actor, made_on_date, target_date, predicted_price,
			confidence, trend, reasoning, action, entry_zone, target, stop_loss,
			market_context, source, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		rec.ID, rec.Actor, rec.MadeOnDate, rec.TargetDate, rec.PredictedPrice,
		rec.Confidence, rec.Trend, rec.Reasoning, rec.Action, rec.EntryZone, rec.Target, rec.StopLoss,
		rec.MarketContext, rec.Source, rec.Status, rec.CreatedAt)

	if err != nil {
		// A concurrent run may have inserted between the check and the
		// insert; the partial unique index turns that into a conflict.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return s.pendingByTargetDate(ctx, targetDate)
		}
		return nil, err
	}

	s.logger.Info().Str("target_date", targetDate).Str("id", rec.ID).Msg("Pending forecast recorded")
	return rec, nil
}

// Reconcile closes out the pending record whose target date matches.
// Returns (nil, nil) when no pending record exists for the date. The
// update is conditional on status so the transition happens at most once
// even under concurrent reconciliation attempts.
func (s *PostgresStore) Reconcile(ctx context.Context, targetDate string, actualPrice float64) (*model.PredictionRecord, error) {
	pending, err := s.pendingByTargetDate(ctx, targetDate)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		s.logger.Info().Str("target_date", targetDate).Msg("No pending forecast for date")
		return nil, nil
	}

	difference, percentageError := reconcileMetrics(pending.PredictedPrice, actualPrice)

	row := s.db.QueryRowContext(ctx, `
		UPDATE predictions
		SET actual_price = $1, difference = $2, percentage_error = $3,
		    status = $4, updated_at = $5
		WHERE id = $6 AND status = $7
		RETURNING`+recordColumns,
		round2(actualPrice), difference, percentageError,
		model.StatusCompleted, time.Now().UTC(),
		pending.ID, model.StatusPending)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent run completed it first; return the settled row.
			return s.byID(ctx, pending.ID)
		}
		return nil, err
	}

	s.logger.Info().Str("target_date", targetDate).
		Float64("actual_price", actualPrice).
		Float64("difference", difference).
		Msg("Forecast reconciled")
	return rec, nil
}

// Latest returns the most recently created record regardless of status,
// or (nil, nil) when the ledger is empty.
func (s *PostgresStore) Latest(ctx context.Context) (*model.PredictionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+recordColumns+`
		FROM predictions ORDER BY created_at DESC LIMIT 1`)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// History returns all records, newest first.
func (s *PostgresStore) History(ctx context.Context) ([]model.PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+recordColumns+`
		FROM predictions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.PredictionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// AccuracyStats aggregates error metrics over completed records.
func (s *PostgresStore) AccuracyStats(ctx context.Context) (*model.AccuracyStats, error) {
	stats := &model.AccuracyStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $1),
		       COALESCE(AVG(ABS(percentage_error)) FILTER (WHERE status = $1), 0)
		FROM predictions`,
		model.StatusCompleted,
	).Scan(&stats.TotalPredictions, &stats.CompletedPredictions, &stats.AverageError)
	if err != nil {
		return nil, err
	}

	if stats.CompletedPredictions > 0 {
		stats.Accuracy = accuracyScore(stats.AverageError)
	}
	return stats, nil
}

// PurgeAll deletes every record. Administrative, unconditional.
func (s *PostgresStore) PurgeAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM predictions`)
	return err
}

// PurgeLatest deletes the most recently created record.
func (s *PostgresStore) PurgeLatest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM predictions
		WHERE id = (SELECT id FROM predictions ORDER BY created_at DESC LIMIT 1)`)
	return err
}

func (s *PostgresStore) pendingByTargetDate(ctx context.Context, targetDate string) (*model.PredictionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+recordColumns+`
		FROM predictions WHERE target_date = $1 AND status = $2`,
		targetDate, model.StatusPending)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) byID(ctx context.Context, id string) (*model.PredictionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+recordColumns+`
		FROM predictions WHERE id = $1`, id)
	return scanRecord(row)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.PredictionRecord, error) {
	var rec model.PredictionRecord
	var actualPrice, difference, percentageError sql.NullFloat64
	var updatedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.Actor, &rec.MadeOnDate, &rec.TargetDate, &rec.PredictedPrice,
		&actualPrice, &difference, &percentageError,
		&rec.Confidence, &rec.Trend, &rec.Reasoning, &rec.Action, &rec.EntryZone, &rec.Target, &rec.StopLoss,
		&rec.MarketContext, &rec.Source, &rec.Status, &rec.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if actualPrice.Valid {
		rec.ActualPrice = &actualPrice.Float64
	}
	if difference.Valid {
		rec.Difference = &difference.Float64
	}
	if percentageError.Valid {
		rec.PercentageError = &percentageError.Float64
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		rec.UpdatedAt = &t
	}

	return &rec, nil
}
