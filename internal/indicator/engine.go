package indicator

import (
	"math"
	"time"

	"savantbot/internal/model"
)

// Config holds the indicator window lengths and offsets.
type Config struct {
	StructureWindow int     // rolling highest-high / lowest-low window
	SmoothingWindow int     // SMA window applied to the raw fib levels
	ATRPeriod       int     // simple mean of true range
	TrendPeriod     int     // EMA period for the trend average
	BandOffsetPct   float64 // optional uniform downward offset on band low
	EntryOffsetPct  float64 // entry level = band low * (1 - EntryOffsetPct)
}

// DefaultConfig returns the production window lengths.
func DefaultConfig() Config {
	return Config{
		StructureWindow: 42,
		SmoothingWindow: 24,
		ATRPeriod:       14,
		TrendPeriod:     200,
		BandOffsetPct:   0.0,
		EntryOffsetPct:  0.005,
	}
}

// WarmupLen is the candle count below which the band levels are undefined.
func (c Config) WarmupLen() int {
	return c.StructureWindow + c.SmoothingWindow
}

// Snapshot is the indicator picture aligned to one candle.
type Snapshot struct {
	OpenTime   time.Time `json:"open_time"`
	BandLow    Value     `json:"band_low"`    // smoothed fib 0
	BandMid    Value     `json:"band_mid"`    // smoothed fib 50
	EntryLevel Value     `json:"entry_level"` // band low offset downward
	ATR        Value     `json:"atr"`
	TrendAvg   Value     `json:"trend_avg"`
}

// Engine incrementally computes snapshots, one per candle. Feeding the same
// candle history into a fresh engine yields bit-identical snapshots to an
// incremental run; see Compute. Designed for single-goroutine usage.
type Engine struct {
	cfg Config

	count int // candles processed

	// Structure window ring buffers.
	highs   []float64
	lows    []float64
	structN int // write index

	// Smoothing SMA over the raw fib levels (running-sum ring buffers).
	fib0Buf  []float64
	fib50Buf []float64
	smoothN  int
	fib0Sum  float64
	fib50Sum float64
	rawCount int

	// ATR: simple mean of true range; first candle has no true range.
	prevClose    float64
	hasPrevClose bool
	trBuf        []float64
	trN          int
	trSum        float64
	trCount      int

	// Trend EMA, seeded by the first close.
	emaMult   float64
	emaVal    float64
	emaSeeded bool
}

// NewEngine creates an indicator engine with the given config.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		highs:    make([]float64, cfg.StructureWindow),
		lows:     make([]float64, cfg.StructureWindow),
		fib0Buf:  make([]float64, cfg.SmoothingWindow),
		fib50Buf: make([]float64, cfg.SmoothingWindow),
		trBuf:    make([]float64, cfg.ATRPeriod),
		emaMult:  2.0 / float64(cfg.TrendPeriod+1),
	}
}

// Compute runs a fresh engine over the full candle history and returns one
// snapshot per candle. Recomputing from scratch is the reference behavior
// the incremental path must match exactly.
func Compute(candles []model.Candle, cfg Config) []Snapshot {
	e := NewEngine(cfg)
	snaps := make([]Snapshot, 0, len(candles))
	for i := range candles {
		snaps = append(snaps, e.Process(candles[i]))
	}
	return snaps
}

// Process consumes the next candle and returns its snapshot.
func (e *Engine) Process(c model.Candle) Snapshot {
	e.count++
	snap := Snapshot{OpenTime: c.OpenTime}

	// Structure window.
	e.highs[e.structN] = c.High
	e.lows[e.structN] = c.Low
	e.structN = (e.structN + 1) % e.cfg.StructureWindow

	if e.count >= e.cfg.StructureWindow {
		hh, ll := e.highs[0], e.lows[0]
		for i := 1; i < e.cfg.StructureWindow; i++ {
			if e.highs[i] > hh {
				hh = e.highs[i]
			}
			if e.lows[i] < ll {
				ll = e.lows[i]
			}
		}
		fib0 := ll
		fib50 := hh - 0.5*(hh-ll)

		// Smoothing SMA over the raw levels.
		if e.rawCount >= e.cfg.SmoothingWindow {
			e.fib0Sum -= e.fib0Buf[e.smoothN]
			e.fib50Sum -= e.fib50Buf[e.smoothN]
		}
		e.fib0Buf[e.smoothN] = fib0
		e.fib50Buf[e.smoothN] = fib50
		e.fib0Sum += fib0
		e.fib50Sum += fib50
		e.smoothN = (e.smoothN + 1) % e.cfg.SmoothingWindow
		e.rawCount++

		if e.count >= e.cfg.WarmupLen() {
			w := float64(e.cfg.SmoothingWindow)
			bandLow := e.fib0Sum / w
			if e.cfg.BandOffsetPct > 0 {
				bandLow *= 1 - e.cfg.BandOffsetPct
			}
			snap.BandLow = Def(bandLow)
			snap.BandMid = Def(e.fib50Sum / w)
			snap.EntryLevel = Def(bandLow * (1 - e.cfg.EntryOffsetPct))
		}
	}

	// ATR. The first candle has no previous close, so no true range.
	if e.hasPrevClose {
		tr := c.High - c.Low
		if d := math.Abs(c.High - e.prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(c.Low - e.prevClose); d > tr {
			tr = d
		}
		if e.trCount >= e.cfg.ATRPeriod {
			e.trSum -= e.trBuf[e.trN]
		}
		e.trBuf[e.trN] = tr
		e.trSum += tr
		e.trN = (e.trN + 1) % e.cfg.ATRPeriod
		e.trCount++

		if e.trCount >= e.cfg.ATRPeriod {
			snap.ATR = Def(e.trSum / float64(e.cfg.ATRPeriod))
		}
	}
	e.prevClose = c.Close
	e.hasPrevClose = true

	// Trend EMA, seeded by the first close.
	if !e.emaSeeded {
		e.emaVal = c.Close
		e.emaSeeded = true
	} else {
		e.emaVal = c.Close*e.emaMult + e.emaVal*(1-e.emaMult)
	}
	snap.TrendAvg = Def(e.emaVal)

	return snap
}

// Count returns the number of candles processed.
func (e *Engine) Count() int { return e.count }
