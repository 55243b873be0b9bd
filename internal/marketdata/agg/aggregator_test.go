package agg

import (
	"testing"
	"time"

	"savantbot/internal/model"
)

func sample(sec int64, price float64) model.Sample {
	return model.Sample{TS: time.Unix(sec, 0).UTC(), Price: price}
}

func TestAggregate_Empty(t *testing.T) {
	candles := Aggregate(nil, 5*time.Minute)
	if len(candles) != 0 {
		t.Fatalf("expected 0 candles for empty input, got %d", len(candles))
	}
}

func TestAggregate_OHLC(t *testing.T) {
	base := int64(1700000100) // not bucket-aligned on purpose
	samples := []model.Sample{
		sample(base, 100),
		sample(base+60, 104),
		sample(base+120, 98),
		sample(base+170, 101),
	}
	candles := Aggregate(samples, 5*time.Minute)
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
	c := candles[0]
	if c.Open != 100 || c.High != 104 || c.Low != 98 || c.Close != 101 {
		t.Errorf("bad OHLC: %+v", c)
	}
	if c.Samples != 4 {
		t.Errorf("expected 4 samples, got %d", c.Samples)
	}
	want := base - base%300
	if c.OpenTime.Unix() != want {
		t.Errorf("expected bucket start %d, got %d", want, c.OpenTime.Unix())
	}
}

func TestAggregate_GapProducesNoCandle(t *testing.T) {
	// Samples in bucket 0 and bucket 2; bucket 1 is empty.
	samples := []model.Sample{
		sample(0, 10),
		sample(299, 11),
		sample(600, 12),
		sample(650, 13),
	}
	candles := Aggregate(samples, 5*time.Minute)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles (gap skipped), got %d", len(candles))
	}
	if candles[0].OpenTime.Unix() != 0 || candles[1].OpenTime.Unix() != 600 {
		t.Errorf("unexpected bucket starts: %v, %v", candles[0].OpenTime, candles[1].OpenTime)
	}
	if !candles[0].OpenTime.Before(candles[1].OpenTime) {
		t.Error("candles not in ascending time order")
	}
}

func TestAggregate_DuplicateTimestamps(t *testing.T) {
	// Duplicates collapse into the same bucket deterministically by arrival.
	samples := []model.Sample{
		sample(100, 50),
		sample(100, 52),
		sample(100, 49),
	}
	candles := Aggregate(samples, 5*time.Minute)
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
	c := candles[0]
	if c.Open != 50 || c.Close != 49 || c.High != 52 || c.Low != 49 {
		t.Errorf("bad OHLC for duplicate timestamps: %+v", c)
	}
}

func TestAggregate_SkipsInvalidSamples(t *testing.T) {
	samples := []model.Sample{
		sample(0, 10),
		{TS: time.Unix(10, 0).UTC(), Price: 0}, // malformed: discarded
		sample(20, 12),
	}
	candles := Aggregate(samples, 5*time.Minute)
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
	if candles[0].Samples != 2 {
		t.Errorf("expected 2 valid samples aggregated, got %d", candles[0].Samples)
	}
}

func TestAggregator_DropsLateSamples(t *testing.T) {
	a := New(5 * time.Minute)
	a.Add(sample(600, 10))
	if done := a.Add(sample(100, 9)); done != nil {
		t.Error("late sample must not finalize a candle")
	}
	c := a.Flush()
	if c == nil || c.Samples != 1 {
		t.Fatalf("late sample leaked into candle: %+v", c)
	}
}

func TestAggregator_MatchesBatch(t *testing.T) {
	samples := make([]model.Sample, 0, 50)
	for i := int64(0); i < 50; i++ {
		samples = append(samples, sample(i*73, 100+float64(i%7)))
	}

	batch := Aggregate(samples, 5*time.Minute)

	a := New(5 * time.Minute)
	inc := make([]model.Candle, 0, len(batch))
	for _, s := range samples {
		if done := a.Add(s); done != nil {
			inc = append(inc, *done)
		}
	}
	if last := a.Flush(); last != nil {
		inc = append(inc, *last)
	}

	if len(batch) != len(inc) {
		t.Fatalf("batch=%d candles, incremental=%d", len(batch), len(inc))
	}
	for i := range batch {
		if batch[i] != inc[i] {
			t.Errorf("candle %d differs: batch=%+v incremental=%+v", i, batch[i], inc[i])
		}
	}
}
