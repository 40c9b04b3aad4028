package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kcubez/crypto-predictor/internal/model"
)

// ErrInvalidForecast indicates the model response failed JSON parsing or
// did not contain the required predictions array.
var ErrInvalidForecast = errors.New("invalid forecast response")

// Completer is the generative model behind the engine.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Engine builds a prompt from candle data, invokes the model once and
// validates its structured response.
type Engine struct {
	completer Completer
	count     int // expected number of predicted prices
	window    int // max candles embedded in the prompt
	validate  *validator.Validate
	logger    zerolog.Logger
}

// EngineOptions holds options for creating a new Engine
type EngineOptions struct {
	PredictionCount int // defaults to 1 (next day)
	CandleWindow    int // defaults to 1000
}

// NewEngine creates a forecast engine on top of a model client
func NewEngine(completer Completer, opts EngineOptions) *Engine {
	if opts.PredictionCount == 0 {
		opts.PredictionCount = 1
	}
	if opts.CandleWindow == 0 {
		opts.CandleWindow = 1000
	}
	return &Engine{
		completer: completer,
		count:     opts.PredictionCount,
		window:    opts.CandleWindow,
		validate:  validator.New(),
		logger:    log.With().Str("component", "forecast_engine").Logger(),
	}
}

// aiResponse mirrors the JSON object the model is instructed to return.
type aiResponse struct {
	Predictions    []float64 `json:"predictions"`
	Confidence     int       `json:"confidence"`
	Reasoning      string    `json:"reasoning"`
	Trend          string    `json:"trend"`
	Recommendation struct {
		Action    string `json:"action"`
		EntryZone string `json:"entryZone"`
		Target    string `json:"target"`
		StopLoss  string `json:"stopLoss"`
	} `json:"recommendation"`
	MarketContext string `json:"marketContext"`
}

// Forecast asks the model for the next day's closing price. A malformed
// response aborts the forecast; the caller must re-invoke to try again.
func (e *Engine) Forecast(ctx context.Context, candles []model.Candle) (*model.ForecastResult, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candle data", ErrInvalidForecast)
	}

	prompt := e.buildPrompt(candles)

	text, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("model invocation: %w", err)
	}

	result, err := e.parse(text)
	if err != nil {
		e.logger.Error().Err(err).Int("response_len", len(text)).Msg("Rejected model response")
		return nil, err
	}

	e.logger.Info().
		Float64("predicted_price", result.PredictedPrice).
		Int("confidence", result.Confidence).
		Str("trend", string(result.Trend)).
		Msg("Forecast generated")
	return result, nil
}

// parse locates the first top-level JSON object in the response text,
// decodes it and normalizes it into a ForecastResult.
func (e *Engine) parse(text string) (*model.ForecastResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidForecast)
	}

	var raw aiResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidForecast, err)
	}

	// The price array is the only hard requirement.
	if len(raw.Predictions) != e.count {
		return nil, fmt.Errorf("%w: expected %d predictions, got %d", ErrInvalidForecast, e.count, len(raw.Predictions))
	}
	for _, p := range raw.Predictions {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: prediction %v is not a finite positive number", ErrInvalidForecast, p)
		}
	}

	result := &model.ForecastResult{
		PredictedPrice: raw.Predictions[len(raw.Predictions)-1],
		Confidence:     clampConfidence(raw.Confidence),
		Trend:          normalizeTrend(raw.Trend),
		Reasoning:      raw.Reasoning,
		Recommendation: model.Recommendation{
			Action:    normalizeAction(raw.Recommendation.Action),
			EntryZone: raw.Recommendation.EntryZone,
			Target:    raw.Recommendation.Target,
			StopLoss:  raw.Recommendation.StopLoss,
		},
		MarketContext: raw.MarketContext,
		Source:        model.SourceAI,
	}

	if err := e.validate.Struct(result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidForecast, err)
	}

	return result, nil
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// normalizeTrend defaults unknown values to neutral rather than failing.
func normalizeTrend(s string) model.Trend {
	switch model.Trend(strings.ToLower(strings.TrimSpace(s))) {
	case model.TrendBullish:
		return model.TrendBullish
	case model.TrendBearish:
		return model.TrendBearish
	default:
		return model.TrendNeutral
	}
}

// normalizeAction defaults unknown values to HOLD rather than failing.
func normalizeAction(s string) model.Action {
	switch model.Action(strings.ToUpper(strings.TrimSpace(s))) {
	case model.ActionBuy:
		return model.ActionBuy
	case model.ActionSell:
		return model.ActionSell
	default:
		return model.ActionHold
	}
}
