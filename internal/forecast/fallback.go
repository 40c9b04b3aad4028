package forecast

import (
	"fmt"
	"math"

	"github.com/Kcubez/crypto-predictor/internal/model"
)

// fallbackDriftWindow is how many recent daily returns feed the drift
// estimate of the statistical fallback.
const fallbackDriftWindow = 7

// Fallback produces a non-AI next-day estimate from the recent price
// drift. Used when the throttle rejects a model call; deterministic, low
// confidence, never recommends a position.
func Fallback(candles []model.Candle) *model.ForecastResult {
	last := candles[len(candles)-1].Close

	drift := 0.0
	window := fallbackDriftWindow
	if len(candles)-1 < window {
		window = len(candles) - 1
	}
	if window > 0 {
		for i := len(candles) - window; i < len(candles); i++ {
			prev := candles[i-1].Close
			if prev > 0 {
				drift += (candles[i].Close - prev) / prev
			}
		}
		drift /= float64(window)
	}

	predicted := math.Round(last*(1+drift)*100) / 100

	trend := model.TrendNeutral
	switch {
	case drift > 0.0025:
		trend = model.TrendBullish
	case drift < -0.0025:
		trend = model.TrendBearish
	}

	return &model.ForecastResult{
		PredictedPrice: predicted,
		Confidence:     40,
		Trend:          trend,
		Reasoning: fmt.Sprintf(
			"Statistical estimate: average daily drift of %.3f%% over the last %d days applied to the latest close.",
			drift*100, window),
		Recommendation: model.Recommendation{
			Action: model.ActionHold,
		},
		MarketContext: "Generated without model analysis; AI call was throttled.",
		Source:        model.SourceStatistical,
	}
}
