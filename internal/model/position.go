package model

// Direction of a position.
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Position is a read-only view of an exchange-side position. The core
// never fabricates or mutates these records; it only observes them and
// requests closure through the order executor.
type Position struct {
	Asset          string  `json:"asset"`
	Direction      string  `json:"direction"` // LONG or SHORT
	Size           float64 `json:"size"`      // absolute size in asset units
	EntryPrice     float64 `json:"entry_price"`
	ReturnOnEquity float64 `json:"return_on_equity"` // fraction of margin, e.g. -0.15
	UnrealizedPnL  float64 `json:"unrealized_pnl"`   // USD
}

// Flat reports whether the position has zero size.
func (p *Position) Flat() bool {
	return p.Size == 0
}
