// Package agg builds fixed-width OHLC candles from an ordered stream of
// mid-price samples. Buckets are aligned to the bucket width; a bucket with
// no samples produces no candle, so gaps in candle time are legal and the
// downstream rolling windows operate on available candles only.
package agg

import (
	"time"

	"savantbot/internal/model"
)

// Aggregate buckets an ordered sample sequence into candles of the given
// width. Open is the first sample in the bucket, close the last, high/low
// the running extremes. Duplicate timestamps collapse into the same bucket
// by arrival order. Invalid samples are skipped. Empty input yields an
// empty output, not an error.
func Aggregate(samples []model.Sample, width time.Duration) []model.Candle {
	a := New(width)
	candles := make([]model.Candle, 0, len(samples)/4+1)
	for _, s := range samples {
		if done := a.Add(s); done != nil {
			candles = append(candles, *done)
		}
	}
	if last := a.Flush(); last != nil {
		candles = append(candles, *last)
	}
	return candles
}

// Aggregator is the incremental form of Aggregate. Feeding the same ordered
// samples through Add/Flush yields exactly the candles Aggregate returns.
// Designed for single-goroutine use.
type Aggregator struct {
	widthSec int64

	bucket  int64 // bucket start in unix seconds
	candle  model.Candle
	started bool
}

// New creates an Aggregator with the given bucket width.
func New(width time.Duration) *Aggregator {
	sec := int64(width / time.Second)
	if sec <= 0 {
		sec = 1
	}
	return &Aggregator{widthSec: sec}
}

// Add incorporates one sample. When the sample opens a new bucket, the
// previous bucket's candle is finalized and returned; otherwise nil.
// Samples older than the current bucket are dropped (out of order).
func (a *Aggregator) Add(s model.Sample) *model.Candle {
	if !s.Valid() {
		return nil
	}

	ts := s.TS.Unix()
	bucket := ts - ts%a.widthSec

	if !a.started {
		a.start(bucket, s)
		return nil
	}

	if bucket < a.bucket {
		// Late sample from an already-closed bucket; drop it.
		return nil
	}

	if bucket > a.bucket {
		done := a.candle
		a.start(bucket, s)
		return &done
	}

	// Same bucket: update OHLC.
	c := &a.candle
	if s.Price > c.High {
		c.High = s.Price
	}
	if s.Price < c.Low {
		c.Low = s.Price
	}
	c.Close = s.Price
	c.Samples++
	return nil
}

// Flush finalizes and returns the in-progress candle, if any.
// The aggregator is reset afterwards.
func (a *Aggregator) Flush() *model.Candle {
	if !a.started {
		return nil
	}
	done := a.candle
	a.started = false
	return &done
}

func (a *Aggregator) start(bucket int64, s model.Sample) {
	a.bucket = bucket
	a.started = true
	a.candle = model.Candle{
		OpenTime: time.Unix(bucket, 0).UTC(),
		Open:     s.Price,
		High:     s.Price,
		Low:      s.Price,
		Close:    s.Price,
		Samples:  1,
	}
}
