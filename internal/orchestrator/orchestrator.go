// Package orchestrator sequences one forecasting run: reconcile today's
// pending forecast, fetch history, forecast tomorrow, persist. It is the
// only component aware of wall-clock "today".
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kcubez/crypto-predictor/internal/forecast"
	"github.com/Kcubez/crypto-predictor/internal/ledger"
	"github.com/Kcubez/crypto-predictor/internal/model"
	"github.com/Kcubez/crypto-predictor/internal/throttle"
)

// MarketData is the price-feed client used by a run.
type MarketData interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Forecaster produces a structured forecast from candle history.
type Forecaster interface {
	Forecast(ctx context.Context, candles []model.Candle) (*model.ForecastResult, error)
}

// Throttler guards the expensive forecast call.
type Throttler interface {
	Do(ctx context.Context, key string, force bool, fn func(context.Context) (*model.ForecastResult, error)) (*model.ForecastResult, error)
}

// Notifier reports run outcomes out of band. Implementations must treat
// delivery as best effort.
type Notifier interface {
	NotifyRun(ctx context.Context, reconciled, created *model.PredictionRecord)
}

// Options configures an Orchestrator.
type Options struct {
	Symbol      string
	Interval    string
	HistoryDays int
	Actor       string           // identity batch records are attributed to
	RunTimeout  time.Duration    // wall-clock budget per run, 0 disables
	Now         func() time.Time // injectable clock, defaults to time.Now
}

// Orchestrator runs the daily forecast pipeline to completion.
type Orchestrator struct {
	market   MarketData
	throttle Throttler
	ledger   ledger.Ledger
	notifier Notifier
	opts     Options
	logger   zerolog.Logger
}

// New creates an Orchestrator. notifier may be nil.
func New(market MarketData, thr Throttler, led ledger.Ledger, notifier Notifier, opts Options) *Orchestrator {
	if opts.Symbol == "" {
		opts.Symbol = "BTCUSDT"
	}
	if opts.Interval == "" {
		opts.Interval = "1d"
	}
	if opts.HistoryDays == 0 {
		opts.HistoryDays = 1000
	}
	if opts.Actor == "" {
		opts.Actor = "system"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		market:   market,
		throttle: thr,
		ledger:   led,
		notifier: notifier,
		opts:     opts,
		logger:   log.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes one forecasting cycle. Reconciliation failures are logged
// and swallowed; history-fetch, forecast and persistence failures abort
// the run. forceRefresh bypasses the memoized forecast.
//
// Date convention: a run on calendar day D (UTC) reconciles the pending
// forecast whose target date is D, using the close of the last fully
// closed daily candle, then records a new forecast targeting D+1.
func (o *Orchestrator) Run(ctx context.Context, forecaster Forecaster, forceRefresh bool) error {
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	today := o.opts.Now().UTC().Truncate(24 * time.Hour)
	todayStr := today.Format(model.DateFormat)

	// Step 1-2: close out today's pending forecast, best effort.
	reconciled := o.reconcileToday(ctx, today)

	// Step 3: fetch the bounded historical window. Fatal on failure; no
	// forecast is attempted without data.
	candles, err := o.market.GetCandles(ctx, o.opts.Symbol, o.opts.Interval, o.opts.HistoryDays)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("fetching history: empty candle series")
	}

	// Step 4: forecast through the throttle, statistical fallback when
	// rate limited.
	currentPrice := candles[len(candles)-1].Close
	key := throttle.Key(o.opts.Interval, currentPrice)

	result, err := o.throttle.Do(ctx, key, forceRefresh, func(ctx context.Context) (*model.ForecastResult, error) {
		return forecaster.Forecast(ctx, candles)
	})
	if errors.Is(err, throttle.ErrRateLimited) {
		o.logger.Warn().Msg("Model call throttled, using statistical fallback")
		result = forecast.Fallback(candles)
	} else if err != nil {
		return fmt.Errorf("generating forecast: %w", err)
	}

	// Step 5: persist, keyed by tomorrow's date. A pending record already
	// covering that date makes this a silent no-op.
	targetDate := today.AddDate(0, 0, 1).Format(model.DateFormat)
	created, err := o.ledger.RecordPending(ctx, o.opts.Actor, todayStr, targetDate, result)
	if err != nil {
		return fmt.Errorf("recording forecast: %w", err)
	}

	o.logger.Info().
		Str("target_date", targetDate).
		Float64("predicted_price", created.PredictedPrice).
		Str("source", string(result.Source)).
		Msg("Run completed")

	if o.notifier != nil {
		o.notifier.NotifyRun(ctx, reconciled, created)
	}
	return nil
}

// reconcileToday matches today's date against a forecast targeting today
// and closes it out with the last realized daily close. Never fatal: a
// missing prior forecast is expected, and upstream errors only cost us
// one reconciliation opportunity.
func (o *Orchestrator) reconcileToday(ctx context.Context, today time.Time) *model.PredictionRecord {
	closePrice, err := o.lastClosedPrice(ctx, today)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Skipping reconciliation, close price unavailable")
		return nil
	}

	rec, err := o.ledger.Reconcile(ctx, today.Format(model.DateFormat), closePrice)
	if err != nil {
		o.logger.Error().Err(err).Msg("Reconciliation failed")
		return nil
	}
	if rec == nil {
		o.logger.Info().Str("date", today.Format(model.DateFormat)).Msg("No pending forecast to reconcile")
		return nil
	}

	o.logger.Info().
		Str("date", rec.TargetDate).
		Float64("predicted", rec.PredictedPrice).
		Float64("actual", *rec.ActualPrice).
		Float64("difference", *rec.Difference).
		Msg("Forecast reconciled")
	return rec
}

// lastClosedPrice returns the close of the most recent daily candle that
// ended before today. The newest candle in the series is usually still
// open, so it is skipped.
func (o *Orchestrator) lastClosedPrice(ctx context.Context, today time.Time) (float64, error) {
	candles, err := o.market.GetCandles(ctx, o.opts.Symbol, o.opts.Interval, 2)
	if err != nil {
		return 0, err
	}
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].Day().Before(today) {
			return candles[i].Close, nil
		}
	}
	return 0, fmt.Errorf("no closed candle before %s", today.Format(model.DateFormat))
}
