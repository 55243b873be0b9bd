// Package notification provides alert delivery to external channels
// (Discord webhooks) for trading events.
package notification

import (
	"context"
	"log"

	"savantbot/internal/model"
)

// Alert represents a notification to be sent.
type Alert struct {
	Kind    model.EventKind `json:"kind"`
	Title   string          `json:"title"`
	Message string          `json:"message"`

	// Optional context attached as embed fields.
	Signal    *model.TradeSignal `json:"signal,omitempty"`
	Positions []model.Position   `json:"positions,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them (useful for
// development and as the fallback when no webhook is configured).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Kind, alert.Title, alert.Message)
	return nil
}
