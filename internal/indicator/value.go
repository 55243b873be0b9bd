// Package indicator computes the rolling technical picture per candle:
// a smoothed support/resistance band (fib 0/50), an entry offset below the
// band, an average true range, and a long-period trend average.
//
// Every value carries explicit definedness. During warm-up the engine emits
// undefined values, never zero or stale, and callers must branch on
// Defined before comparing against thresholds.
package indicator

// Value is an indicator value with explicit definedness. The zero Value is
// undefined.
type Value struct {
	F       float64 `json:"f"`
	Defined bool    `json:"defined"`
}

// Def returns a defined Value.
func Def(f float64) Value {
	return Value{F: f, Defined: true}
}

// Ptr returns the value as a pointer for publishing, nil when undefined.
func (v Value) Ptr() *float64 {
	if !v.Defined {
		return nil
	}
	f := v.F
	return &f
}
