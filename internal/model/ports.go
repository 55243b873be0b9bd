package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the core pipeline from concrete collaborators
// (Redis, SQLite, the exchange). Each implementation satisfies one or more.

// SampleStore persists and serves the raw mid-price history.
type SampleStore interface {
	// AppendSamples durably appends a batch of samples.
	AppendSamples(ctx context.Context, samples []Sample) error

	// ReadSamples returns all samples at or after the cutoff, in ascending
	// time order. An empty result is not an error.
	ReadSamples(ctx context.Context, since time.Time) ([]Sample, error)
}

// EventLogger appends structured pipeline events.
type EventLogger interface {
	LogEvent(ctx context.Context, ev Event) error
}

// SignalPublisher publishes the latest trade-signal snapshot.
// Each publish fully replaces the previous value; readers must never
// observe a partially-written snapshot.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig TradeSignal) error
}

// SignalReader resolves the last fully-published snapshot.
// Returns nil, nil when no snapshot has ever been published.
type SignalReader interface {
	LatestSignal(ctx context.Context) (*TradeSignal, error)
}

// StateStore persists opaque JSON state blobs (trigger state, indicator
// engine snapshots) across process restarts.
type StateStore interface {
	SaveStateJSON(ctx context.Context, key string, data []byte) error

	// LoadStateJSON returns nil, nil when no state exists under key.
	LoadStateJSON(ctx context.Context, key string) ([]byte, error)
}

// PriceSource serves the current mid price for an asset.
type PriceSource interface {
	Mid(ctx context.Context, asset string) (float64, error)
}

// PositionSource serves a read-only view of currently open positions.
type PositionSource interface {
	OpenPositions(ctx context.Context) ([]Position, error)
}

// OrderResult is the outcome of a market order submission.
type OrderResult struct {
	OK       bool    `json:"ok"`
	AvgPrice float64 `json:"avg_price,omitempty"` // average fill, when reported
	Message  string  `json:"message,omitempty"`   // rejection / error detail
}

// OrderExecutor submits market orders. Fire-and-forget from the core's
// perspective: the result reports success/failure and an optional fill.
type OrderExecutor interface {
	// MarketOrder opens (isBuy=true) or closes size of asset at market.
	MarketOrder(ctx context.Context, asset string, isBuy bool, size float64) (OrderResult, error)
}
