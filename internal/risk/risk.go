// Package risk manages the life of an open position through a layered
// exit policy: fixed stop-loss, fixed take-profit, and one of two
// mutually-exclusive trailing strategies: a percentage trail on return
// on equity, or a structure trail pinned to the support band.
package risk

import (
	"encoding/json"
	"fmt"

	"savantbot/internal/indicator"
	"savantbot/internal/model"
)

// TrailingStrategy selects which trailing variant is active.
type TrailingStrategy string

const (
	// TrailPercent trails a stop level below the peak observed ROE.
	TrailPercent TrailingStrategy = "percent"
	// TrailStructure pins a stop to the band low once the entry level has
	// risen above the position's entry price.
	TrailStructure TrailingStrategy = "structure"
)

// Config holds the exit policy thresholds. All percentages are fractions
// (0.15 = 15%).
type Config struct {
	StopLossPct   float64          `json:"stop_loss_pct"`
	TakeProfitPct float64          `json:"take_profit_pct"`
	Trailing      TrailingStrategy `json:"trailing_strategy"`
	ActivationPct float64          `json:"trailing_activation_pct"` // peak ROE that activates the percent trail
	DistancePct   float64          `json:"trailing_distance_pct"`   // stop level = peak ROE - distance
}

// Validate rejects configurations that could place live risk.
func (c Config) Validate() error {
	if c.StopLossPct <= 0 || c.TakeProfitPct <= 0 {
		return fmt.Errorf("risk: stop-loss and take-profit must be positive")
	}
	switch c.Trailing {
	case TrailPercent:
		if c.ActivationPct <= 0 || c.DistancePct <= 0 {
			return fmt.Errorf("risk: percent trailing requires positive activation and distance")
		}
	case TrailStructure:
	default:
		return fmt.Errorf("risk: unknown trailing strategy %q", c.Trailing)
	}
	return nil
}

// Reason names why a position was closed.
type Reason string

const (
	ReasonStopLoss     Reason = "STOP_LOSS"
	ReasonTakeProfit   Reason = "TAKE_PROFIT"
	ReasonTrailingStop Reason = "TRAILING_STOP"
	ReasonFibTrailStop Reason = "FIB_TRAIL_STOP"
)

// EventKind maps a close reason to its pipeline event.
func (r Reason) EventKind() model.EventKind {
	switch r {
	case ReasonStopLoss:
		return model.EventStopLossHit
	case ReasonTakeProfit:
		return model.EventTakeProfitHit
	case ReasonTrailingStop:
		return model.EventTrailingStopHit
	default:
		return model.EventFibTrailStopHit
	}
}

// Decision is a close verdict for one position.
type Decision struct {
	Reason       Reason
	TriggerValue float64 // the level or threshold that fired
}

// State is the per-position risk state, created when a position is first
// observed and discarded when it closes to zero size.
type State struct {
	PeakROE        float64 `json:"peak_roe"`
	TrailingActive bool    `json:"trailing_active"`
	StopLevel      float64 `json:"stop_level"` // ROE units; never relaxed once active
	FibStopActive  bool    `json:"fib_stop_active"`
	FibStopPrice   float64 `json:"fib_stop_price"` // price units; never relaxed once active
}

// Manager evaluates the exit policy for every observed position.
// Single-goroutine usage; one instance per process.
type Manager struct {
	cfg    Config
	states map[string]*State // key = asset
}

// NewManager creates a Manager with the given exit policy.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, states: make(map[string]*State)}
}

// Evaluate runs one risk cycle for a position against the current mark
// price and the latest indicator levels. Returns a close decision, or nil
// to keep holding. Undefined indicator levels degrade to the fixed
// stop-loss/take-profit rules only; a freshly observed position must not
// close on stale or missing indicator data.
func (m *Manager) Evaluate(pos model.Position, mark float64, bandLow, entryLevel indicator.Value) *Decision {
	if pos.Flat() {
		m.Forget(pos.Asset)
		return nil
	}

	st, ok := m.states[pos.Asset]
	if !ok {
		st = &State{PeakROE: pos.ReturnOnEquity}
		m.states[pos.Asset] = st
	}
	roe := pos.ReturnOnEquity

	// Take-profit is evaluated every cycle regardless of phase.
	if roe >= m.cfg.TakeProfitPct {
		return &Decision{Reason: ReasonTakeProfit, TriggerValue: m.cfg.TakeProfitPct}
	}

	switch m.cfg.Trailing {
	case TrailStructure:
		if !st.FibStopActive && bandLow.Defined && entryLevel.Defined && entryLevel.F > pos.EntryPrice {
			st.FibStopActive = true
			st.FibStopPrice = bandLow.F
		} else if st.FibStopActive && bandLow.Defined && bandLow.F > st.FibStopPrice {
			// The pinned stop only ever rises.
			st.FibStopPrice = bandLow.F
		}

		if st.FibStopActive {
			if mark <= st.FibStopPrice {
				return &Decision{Reason: ReasonFibTrailStop, TriggerValue: st.FibStopPrice}
			}
			// The structure stop replaces the fixed stop-loss once active.
			return nil
		}
		if roe <= -m.cfg.StopLossPct {
			return &Decision{Reason: ReasonStopLoss, TriggerValue: -m.cfg.StopLossPct}
		}

	default: // TrailPercent
		if roe > st.PeakROE {
			st.PeakROE = roe
		}
		if !st.TrailingActive && st.PeakROE >= m.cfg.ActivationPct {
			st.TrailingActive = true
			st.StopLevel = st.PeakROE - m.cfg.DistancePct
		}
		if st.TrailingActive {
			if lvl := st.PeakROE - m.cfg.DistancePct; lvl > st.StopLevel {
				st.StopLevel = lvl
			}
			if roe <= st.StopLevel {
				return &Decision{Reason: ReasonTrailingStop, TriggerValue: st.StopLevel}
			}
		}
		if roe <= -m.cfg.StopLossPct {
			return &Decision{Reason: ReasonStopLoss, TriggerValue: -m.cfg.StopLossPct}
		}
	}

	return nil
}

// Forget discards the risk state for an asset (position closed to flat).
func (m *Manager) Forget(asset string) {
	delete(m.states, asset)
}

// Prune discards state for every tracked asset absent from the open
// position set and returns the assets dropped. Stale state must never
// survive a vanished position: a later position in the same asset would
// inherit the dead position's peak and close on sight.
func (m *Manager) Prune(open map[string]bool) []string {
	var dropped []string
	for asset := range m.states {
		if !open[asset] {
			delete(m.states, asset)
			dropped = append(dropped, asset)
		}
	}
	return dropped
}

// PositionState returns the tracked state for an asset, or nil.
func (m *Manager) PositionState(asset string) *State {
	return m.states[asset]
}

// StatesJSON serializes all per-position states for checkpointing.
func (m *Manager) StatesJSON() ([]byte, error) {
	return json.Marshal(m.states)
}

// RestoreStates loads per-position states from a checkpoint, replacing any
// current tracking.
func (m *Manager) RestoreStates(data []byte) error {
	states := make(map[string]*State)
	if err := json.Unmarshal(data, &states); err != nil {
		return fmt.Errorf("risk: decode states: %w", err)
	}
	m.states = states
	return nil
}
