// Package signal implements the two-phase ARM→FIRE trigger that turns
// indicator crossings into one-shot buy signals.
//
// The trigger arms when the close dips below the entry level, and fires
// exactly once per arm when the close recovers above the band low. A
// close above the reset threshold disarms it unconditionally.
package signal

import (
	"encoding/json"
	"fmt"

	"savantbot/internal/indicator"
	"savantbot/internal/model"
)

// State is the persistable trigger state.
type State struct {
	Armed bool `json:"armed"`
}

// Trigger is the ARM/FIRE state machine. One logical instance per tracked
// asset; single-goroutine usage.
type Trigger struct {
	resetPct float64
	armed    bool
}

// New creates a disarmed trigger with the given reset threshold percentage.
func New(resetPct float64) *Trigger {
	return &Trigger{resetPct: resetPct}
}

// Restore creates a trigger from persisted state.
func Restore(resetPct float64, st State) *Trigger {
	return &Trigger{resetPct: resetPct, armed: st.Armed}
}

// Armed reports the current (post-transition) trigger state.
func (t *Trigger) Armed() bool { return t.armed }

// State returns the persistable state.
func (t *Trigger) State() State { return State{Armed: t.armed} }

// StateJSON serializes the trigger state for checkpointing.
func (t *Trigger) StateJSON() ([]byte, error) {
	return json.Marshal(t.State())
}

// ParseState decodes persisted trigger state.
func ParseState(data []byte) (State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("signal: decode trigger state: %w", err)
	}
	return st, nil
}

// Step evaluates one cycle against the latest close and indicator levels.
// Rules, in order: reset (close above band low by resetPct) disarms
// unconditionally; otherwise a disarmed trigger arms when close < entry
// level; an armed trigger fires when close > band low, consuming the arm.
//
// When the band levels are undefined (warm-up, stale data) the trigger
// holds its prior state and emits nothing; data unavailability is not a
// reset.
func (t *Trigger) Step(close float64, bandLow, entryLevel indicator.Value) (buy bool, events []model.EventKind) {
	if !bandLow.Defined || !entryLevel.Defined {
		return false, nil
	}

	wasArmed := t.armed

	if close > bandLow.F*(1+t.resetPct) {
		t.armed = false
	} else if !t.armed && close < entryLevel.F {
		t.armed = true
	}

	if t.armed && close > bandLow.F {
		buy = true
		t.armed = false
	}

	switch {
	case buy:
		events = append(events, model.EventBuySignal)
	case !wasArmed && t.armed:
		events = append(events, model.EventTriggerArmed)
	case wasArmed && !t.armed:
		events = append(events, model.EventTriggerDisarmed)
	}
	return buy, events
}
