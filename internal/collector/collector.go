// Package collector ingests mid prices over the websocket feed, falls
// back to HTTP polling when the stream goes quiet, and batches samples
// into SQLite.
package collector

import (
	"context"
	"log"
	"log/slog"
	"sync"
	"time"

	"savantbot/internal/exchange"
	"savantbot/internal/metrics"
	"savantbot/internal/model"
)

const pruneInterval = 6 * time.Hour

// Collector runs the price ingestion loop.
type Collector struct {
	feed    *exchange.Feed
	prices  model.PriceSource
	store   batchStore
	asset   string
	poll    time.Duration
	metrics *metrics.Metrics

	mu         sync.Mutex
	lastSample time.Time
}

// batchStore is the slice of the sqlite store the collector needs.
type batchStore interface {
	AppendSamples(ctx context.Context, samples []model.Sample) error
	Run(ctx context.Context, sampleCh <-chan model.Sample)
	PruneSamples(ctx context.Context) error
}

// New creates a collector. poll is the fallback polling interval, also
// the silence threshold after which the feed is considered stale.
func New(feed *exchange.Feed, prices model.PriceSource, store batchStore, asset string, poll time.Duration, m *metrics.Metrics) *Collector {
	return &Collector{
		feed:    feed,
		prices:  prices,
		store:   store,
		asset:   asset,
		poll:    poll,
		metrics: m,
	}
}

// Run blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	slog.Info("collector starting", "asset", c.asset, "poll", c.poll.String())

	sampleCh := make(chan model.Sample, 256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.store.Run(ctx, sampleCh)
	}()

	if c.feed != nil {
		c.feed.OnReconnect = func() {
			if c.metrics != nil {
				c.metrics.WSReconnects.Inc()
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.feed.Run(ctx)
		}()
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	pruner := time.NewTicker(pruneInterval)
	defer pruner.Stop()

	var feedOut chan model.Sample
	if c.feed != nil {
		feedOut = c.feed.Out
	}

	for {
		select {
		case <-ctx.Done():
			close(sampleCh)
			wg.Wait()
			slog.Info("collector stopped")
			return

		case s, ok := <-feedOut:
			if !ok {
				feedOut = nil
				continue
			}
			c.accept(sampleCh, s)

		case <-ticker.C:
			// Poll only when the websocket has been quiet for a full
			// interval, so HTTP is the fallback, not a duplicate source.
			c.mu.Lock()
			stale := time.Since(c.lastSample) >= c.poll
			c.mu.Unlock()
			if !stale {
				continue
			}
			pollCtx, cancel := context.WithTimeout(ctx, c.poll)
			mid, err := c.prices.Mid(pollCtx, c.asset)
			cancel()
			if err != nil {
				log.Printf("[collector] poll error: %v", err)
				if c.metrics != nil {
					c.metrics.SamplesDropped.Inc()
				}
				continue
			}
			c.accept(sampleCh, model.Sample{TS: time.Now().UTC(), Price: mid})

		case <-pruner.C:
			if err := c.store.PruneSamples(ctx); err != nil {
				log.Printf("[collector] prune error: %v", err)
			}
		}
	}
}

func (c *Collector) accept(out chan<- model.Sample, s model.Sample) {
	if !s.Valid() {
		if c.metrics != nil {
			c.metrics.SamplesDropped.Inc()
		}
		return
	}
	c.mu.Lock()
	c.lastSample = time.Now()
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.SamplesTotal.Inc()
	}
	select {
	case out <- s:
	default:
		if c.metrics != nil {
			c.metrics.SamplesDropped.Inc()
		}
	}
}
