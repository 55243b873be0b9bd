package model

import (
	"encoding/json"
	"time"
)

// EventKind enumerates the structured events the pipeline emits to the
// logging and notification collaborators.
type EventKind string

const (
	EventTriggerArmed    EventKind = "TRIGGER_ARMED"
	EventTriggerDisarmed EventKind = "TRIGGER_DISARMED"
	EventBuySignal       EventKind = "BUY_SIGNAL"
	EventTradeExecuted   EventKind = "TRADE_EXECUTED"
	EventStopLossHit     EventKind = "STOP_LOSS_HIT"
	EventTakeProfitHit   EventKind = "TAKE_PROFIT_HIT"
	EventTrailingStopHit EventKind = "TRAILING_STOP_HIT"
	EventFibTrailStopHit EventKind = "FIB_TRAIL_STOP_HIT"
	EventBotStarted      EventKind = "BOT_STARTED"
	EventBotStopped      EventKind = "BOT_STOPPED"
	EventStatusReport    EventKind = "STATUS_REPORT"
)

// Event is an append-only record of something significant the pipeline did.
type Event struct {
	TS      time.Time       `json:"timestamp"`
	Kind    EventKind       `json:"event_type"`
	Details json.RawMessage `json:"details,omitempty"`
}

// NewEvent builds an Event, marshaling details to JSON. A details value
// that fails to marshal is dropped rather than failing the event.
func NewEvent(kind EventKind, details any) Event {
	ev := Event{TS: time.Now().UTC(), Kind: kind}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			ev.Details = b
		}
	}
	return ev
}

// CloseDetails is the payload for position-close events.
type CloseDetails struct {
	Asset        string  `json:"asset"`
	Size         float64 `json:"size"`
	ROE          float64 `json:"roe"`
	Reason       string  `json:"reason"`
	TriggerValue float64 `json:"trigger_value"` // the level that fired
}
