package forecast

import (
	"fmt"
	"strings"

	"github.com/Kcubez/crypto-predictor/internal/model"
)

// buildPrompt embeds the most recent window of candles, the current price
// and explicit instructions to return a single JSON object.
func (e *Engine) buildPrompt(candles []model.Candle) string {
	if len(candles) > e.window {
		candles = candles[len(candles)-e.window:]
	}
	currentPrice := candles[len(candles)-1].Close

	var sb strings.Builder
	sb.WriteString("You are an expert cryptocurrency analyst specializing in Bitcoin price prediction.\n\n")
	fmt.Fprintf(&sb, "Analyze the Bitcoin historical data and predict the NEXT DAY's closing price (UTC 00:00) with MAXIMUM ACCURACY.\n\n")
	fmt.Fprintf(&sb, "HISTORICAL DATA (%d daily candles):\n", len(candles))

	for i, c := range candles {
		fmt.Fprintf(&sb, "%d. Close: $%.2f, High: $%.2f, Low: $%.2f, Volume: %.2f\n",
			i+1, c.Close, c.High, c.Low, c.Volume)
	}

	fmt.Fprintf(&sb, "\nCURRENT PRICE: $%.2f\n\n", currentPrice)

	sb.WriteString("TASK:\n")
	fmt.Fprintf(&sb, "1. Analyze the trend, volatility, support/resistance levels, and volume patterns\n")
	fmt.Fprintf(&sb, "2. Predict the next %d closing price(s) at daily intervals\n", e.count)
	sb.WriteString("3. Provide your confidence level (0-100)\n")
	sb.WriteString("4. Explain your reasoning in 2-3 sentences\n")
	sb.WriteString("5. Classify the overall trend as bullish, bearish, or neutral\n")
	sb.WriteString("6. Provide a trading recommendation (BUY/SELL/HOLD) with entry zone, target price, and stop loss\n")
	sb.WriteString("7. Provide market context analysis\n\n")

	sb.WriteString(`RESPOND IN THIS EXACT JSON FORMAT (no markdown, just raw JSON):
{
  "predictions": [93500.50],
  "confidence": 82,
  "reasoning": "Your analysis here",
  "trend": "bullish",
  "recommendation": {
    "action": "BUY",
    "entryZone": "$92,000 - $93,000",
    "target": "$94,500",
    "stopLoss": "$91,000"
  },
  "marketContext": "Detailed market analysis here"
}

IMPORTANT:
- Predictions should be realistic and consider recent trends
- Consider market volatility and historical patterns
- Be conservative with predictions
- Entry zone should be a price range around current price
- Stop loss should protect against significant losses
- Return ONLY valid JSON, no other text`)

	return sb.String()
}
