package model

import (
	"encoding/json"
	"time"
)

// Candle represents a fixed-width OHLC candle built from mid-price samples.
// OpenTime is the bucket start (UTC, aligned to the bucket width). A candle
// is never mutated once its bucket has closed.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Samples  int       `json:"samples"` // number of samples aggregated
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
