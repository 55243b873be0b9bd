package model

import "time"

// Sample is a single mid-price observation from the exchange feed.
// Immutable once created.
type Sample struct {
	TS    time.Time `json:"timestamp"` // UTC
	Price float64   `json:"price"`     // positive mid price
}

// Valid reports whether the sample can enter the pipeline.
// Malformed samples are discarded, not propagated (they would poison OHLC).
func (s Sample) Valid() bool {
	return !s.TS.IsZero() && s.Price > 0
}
