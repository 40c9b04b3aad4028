package model

import "time"

// PredictionStatus is the lifecycle state of a stored forecast.
type PredictionStatus string

const (
	StatusPending   PredictionStatus = "pending"
	StatusCompleted PredictionStatus = "completed"
)

// PredictionRecord is the durable unit of the reconciliation ledger.
// ActualPrice, Difference and PercentageError stay nil until the record
// is reconciled against the realized close for TargetDate.
type PredictionRecord struct {
	ID              string           `json:"id"`
	Actor           string           `json:"actor"`
	MadeOnDate      string           `json:"date"`       // YYYY-MM-DD, UTC
	TargetDate      string           `json:"targetDate"` // YYYY-MM-DD, UTC
	PredictedPrice  float64          `json:"predictedPrice"`
	ActualPrice     *float64         `json:"actualPrice,omitempty"`
	Difference      *float64         `json:"difference,omitempty"`
	PercentageError *float64         `json:"percentageError,omitempty"`
	Confidence      int              `json:"confidence"`
	Trend           Trend            `json:"trend"`
	Reasoning       string           `json:"reasoning"`
	Action          Action           `json:"action"`
	EntryZone       string           `json:"entryZone,omitempty"`
	Target          string           `json:"target,omitempty"`
	StopLoss        string           `json:"stopLoss,omitempty"`
	MarketContext   string           `json:"marketContext,omitempty"`
	Source          ForecastSource   `json:"source"`
	Status          PredictionStatus `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       *time.Time       `json:"updatedAt,omitempty"`
}

// AccuracyStats summarizes ledger performance over completed records.
type AccuracyStats struct {
	TotalPredictions     int     `json:"totalPredictions"`
	CompletedPredictions int     `json:"completedPredictions"`
	AverageError         float64 `json:"averageError"` // mean |percentageError|
	Accuracy             float64 `json:"accuracy"`     // 0-100
}

// DateFormat is the calendar-date layout used throughout the ledger.
const DateFormat = "2006-01-02"
