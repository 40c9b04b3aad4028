package model

import "time"

// Candle represents a single daily OHLCV candle.
type Candle struct {
	OpenTime int64   `json:"openTime"` // epoch milliseconds
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Day returns the UTC calendar date of the candle's open.
func (c Candle) Day() time.Time {
	return time.UnixMilli(c.OpenTime).UTC().Truncate(24 * time.Hour)
}
