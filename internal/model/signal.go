package model

import (
	"encoding/json"
	"time"
)

// TradeSignal is the published per-cycle snapshot of the signal pipeline:
// the latest close, the indicator picture, and the trigger outcome.
// It is an immutable fact; each publish fully supersedes the previous one.
//
// Indicator fields are pointers: nil means the value was undefined this
// cycle (insufficient warm-up). Consumers must branch on presence, never
// treat nil as zero.
type TradeSignal struct {
	TS           time.Time `json:"timestamp"`
	Price        float64   `json:"price"`
	BandLow      *float64  `json:"wma_fib_0,omitempty"`  // smoothed support (fib 0)
	EntryLevel   *float64  `json:"fib_entry,omitempty"`  // lower boundary of the buy zone
	BandMid      *float64  `json:"wma_fib_50,omitempty"` // smoothed midpoint (fib 50)
	ATR          *float64  `json:"atr,omitempty"`
	TrendAvg     *float64  `json:"ema_trend,omitempty"`
	TriggerArmed bool      `json:"trigger_armed"`
	BuySignal    bool      `json:"buy_signal"`
}

// JSON returns the JSON-encoded signal.
func (s *TradeSignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// ParseTradeSignal decodes a published snapshot.
func ParseTradeSignal(data []byte) (*TradeSignal, error) {
	var s TradeSignal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
