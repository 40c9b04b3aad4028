package model

// Trend classifies the overall market direction of a forecast.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Action is the trading recommendation attached to a forecast.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ForecastSource records how a forecast was produced.
type ForecastSource string

const (
	SourceAI          ForecastSource = "ai"
	SourceStatistical ForecastSource = "statistical"
)

// Recommendation holds the trading guidance returned by the model.
// EntryZone, Target and StopLoss are free-text price ranges as the
// model phrases them.
type Recommendation struct {
	Action    Action `json:"action" validate:"oneof=BUY SELL HOLD"`
	EntryZone string `json:"entryZone"`
	Target    string `json:"target"`
	StopLoss  string `json:"stopLoss"`
}

// ForecastResult is the validated, normalized output of one forecast call.
type ForecastResult struct {
	PredictedPrice float64        `json:"predictedPrice" validate:"required,gt=0"`
	Confidence     int            `json:"confidence" validate:"min=0,max=100"`
	Trend          Trend          `json:"trend" validate:"oneof=bullish bearish neutral"`
	Reasoning      string         `json:"reasoning"`
	Recommendation Recommendation `json:"recommendation"`
	MarketContext  string         `json:"marketContext"`
	Source         ForecastSource `json:"source" validate:"oneof=ai statistical"`
}
