package indicator

import (
	"math"
	"testing"
	"time"

	"savantbot/internal/model"
)

func makeCandle(i int, close float64) model.Candle {
	return model.Candle{
		OpenTime: time.Unix(int64(i)*300, 0).UTC(),
		Open:     close,
		High:     close + 1,
		Low:      close - 1,
		Close:    close,
		Samples:  5,
	}
}

func flatSeries(n int, price float64) []model.Candle {
	candles := make([]model.Candle, 0, n)
	for i := 0; i < n; i++ {
		candles = append(candles, makeCandle(i, price))
	}
	return candles
}

func wobbleSeries(n int) []model.Candle {
	candles := make([]model.Candle, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		// Deterministic pseudo-noise, enough to move every window.
		price += math.Sin(float64(i)*0.7)*0.9 + math.Cos(float64(i)*0.13)*0.4
		candles = append(candles, makeCandle(i, price))
	}
	return candles
}

func TestEngine_BandUndefinedDuringWarmup(t *testing.T) {
	cfg := DefaultConfig()
	snaps := Compute(flatSeries(cfg.WarmupLen()-1, 100), cfg)

	for i, s := range snaps {
		if s.BandLow.Defined || s.BandMid.Defined || s.EntryLevel.Defined {
			t.Fatalf("candle %d: band levels defined before warm-up (%d candles)", i, cfg.WarmupLen())
		}
	}
}

func TestEngine_BandDefinedAtWarmup(t *testing.T) {
	cfg := DefaultConfig()
	snaps := Compute(flatSeries(cfg.WarmupLen(), 100), cfg)

	last := snaps[len(snaps)-1]
	if !last.BandLow.Defined || !last.BandMid.Defined || !last.EntryLevel.Defined {
		t.Fatal("band levels must be defined at the warm-up length")
	}
	// Flat series: hh=101, ll=99 → fib0=99, fib50=100, smoothing is a no-op.
	if math.Abs(last.BandLow.F-99) > 1e-9 {
		t.Errorf("band low: expected 99, got %v", last.BandLow.F)
	}
	if math.Abs(last.BandMid.F-100) > 1e-9 {
		t.Errorf("band mid: expected 100, got %v", last.BandMid.F)
	}
	wantEntry := 99 * (1 - cfg.EntryOffsetPct)
	if math.Abs(last.EntryLevel.F-wantEntry) > 1e-9 {
		t.Errorf("entry level: expected %v, got %v", wantEntry, last.EntryLevel.F)
	}
}

func TestEngine_BandOffsetApplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BandOffsetPct = 0.01
	snaps := Compute(flatSeries(cfg.WarmupLen(), 100), cfg)

	last := snaps[len(snaps)-1]
	want := 99 * (1 - 0.01)
	if math.Abs(last.BandLow.F-want) > 1e-9 {
		t.Errorf("offset band low: expected %v, got %v", want, last.BandLow.F)
	}
	// Entry applies on top of the offset band low.
	wantEntry := want * (1 - cfg.EntryOffsetPct)
	if math.Abs(last.EntryLevel.F-wantEntry) > 1e-9 {
		t.Errorf("entry level: expected %v, got %v", wantEntry, last.EntryLevel.F)
	}
	// Band mid is not offset.
	if math.Abs(last.BandMid.F-100) > 1e-9 {
		t.Errorf("band mid must not be offset, got %v", last.BandMid.F)
	}
}

func TestEngine_ATRDefinedness(t *testing.T) {
	cfg := DefaultConfig()
	snaps := Compute(flatSeries(cfg.ATRPeriod+2, 100), cfg)

	// The first candle has no previous close, so the ATR window starts one
	// candle late: undefined through candle ATRPeriod, defined after.
	for i := 0; i < cfg.ATRPeriod; i++ {
		if snaps[i].ATR.Defined {
			t.Fatalf("candle %d: ATR defined before %d true ranges exist", i, cfg.ATRPeriod)
		}
	}
	last := snaps[cfg.ATRPeriod]
	if !last.ATR.Defined {
		t.Fatal("ATR must be defined once ATRPeriod true ranges exist")
	}
	// Flat series: TR = max(2, 1, 1) = 2 every candle.
	if math.Abs(last.ATR.F-2) > 1e-9 {
		t.Errorf("ATR: expected 2, got %v", last.ATR.F)
	}
}

func TestEngine_TrendSeededByFirstClose(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg)

	s := e.Process(makeCandle(0, 123.45))
	if !s.TrendAvg.Defined {
		t.Fatal("trend average must be defined from the first candle")
	}
	if s.TrendAvg.F != 123.45 {
		t.Errorf("trend average seed: expected 123.45, got %v", s.TrendAvg.F)
	}

	s2 := e.Process(makeCandle(1, 125))
	mult := 2.0 / float64(cfg.TrendPeriod+1)
	want := 125*mult + 123.45*(1-mult)
	if math.Abs(s2.TrendAvg.F-want) > 1e-12 {
		t.Errorf("trend average: expected %v, got %v", want, s2.TrendAvg.F)
	}
}

func TestEngine_IncrementalMatchesBatch(t *testing.T) {
	cfg := DefaultConfig()
	candles := wobbleSeries(150)

	batch := Compute(candles, cfg)

	e := NewEngine(cfg)
	for i := range candles {
		inc := e.Process(candles[i])
		if inc != batch[i] {
			t.Fatalf("candle %d: incremental snapshot differs from batch:\n inc=%+v\nbatch=%+v", i, inc, batch[i])
		}
	}
}

func TestEngine_StateRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	candles := wobbleSeries(100)

	e := NewEngine(cfg)
	for i := 0; i < 80; i++ {
		e.Process(candles[i])
	}

	data, err := e.StateJSON()
	if err != nil {
		t.Fatalf("state json: %v", err)
	}
	restored, err := RestoreJSON(data, cfg)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	for i := 80; i < 100; i++ {
		a := e.Process(candles[i])
		b := restored.Process(candles[i])
		if a != b {
			t.Fatalf("candle %d: restored engine diverged:\n orig=%+v\n rest=%+v", i, a, b)
		}
	}
}

func TestRestoreJSON_ConfigMismatch(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg)
	e.Process(makeCandle(0, 100))

	data, err := e.StateJSON()
	if err != nil {
		t.Fatalf("state json: %v", err)
	}

	other := cfg
	other.StructureWindow = 10
	if _, err := RestoreJSON(data, other); err == nil {
		t.Fatal("expected error restoring under a different config")
	}
}
