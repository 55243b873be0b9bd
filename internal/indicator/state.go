package indicator

import (
	"encoding/json"
	"fmt"
)

// EngineState is the serialized state of an Engine, persisted across
// process restarts so a warm indicator picture survives a restart without
// replaying the full candle history.
type EngineState struct {
	Version int    `json:"version"`
	Config  Config `json:"config"`

	Count int `json:"count"`

	Highs   []float64 `json:"highs"`
	Lows    []float64 `json:"lows"`
	StructN int       `json:"struct_n"`

	Fib0Buf  []float64 `json:"fib0_buf"`
	Fib50Buf []float64 `json:"fib50_buf"`
	SmoothN  int       `json:"smooth_n"`
	Fib0Sum  float64   `json:"fib0_sum"`
	Fib50Sum float64   `json:"fib50_sum"`
	RawCount int       `json:"raw_count"`

	PrevClose    float64   `json:"prev_close"`
	HasPrevClose bool      `json:"has_prev_close"`
	TRBuf        []float64 `json:"tr_buf"`
	TRN          int       `json:"tr_n"`
	TRSum        float64   `json:"tr_sum"`
	TRCount      int       `json:"tr_count"`

	EMAVal    float64 `json:"ema_val"`
	EMASeeded bool    `json:"ema_seeded"`
}

const stateVersion = 1

// State captures the engine's full state for checkpoint persistence.
func (e *Engine) State() *EngineState {
	st := &EngineState{
		Version:      stateVersion,
		Config:       e.cfg,
		Count:        e.count,
		Highs:        append([]float64(nil), e.highs...),
		Lows:         append([]float64(nil), e.lows...),
		StructN:      e.structN,
		Fib0Buf:      append([]float64(nil), e.fib0Buf...),
		Fib50Buf:     append([]float64(nil), e.fib50Buf...),
		SmoothN:      e.smoothN,
		Fib0Sum:      e.fib0Sum,
		Fib50Sum:     e.fib50Sum,
		RawCount:     e.rawCount,
		PrevClose:    e.prevClose,
		HasPrevClose: e.hasPrevClose,
		TRBuf:        append([]float64(nil), e.trBuf...),
		TRN:          e.trN,
		TRSum:        e.trSum,
		TRCount:      e.trCount,
		EMAVal:       e.emaVal,
		EMASeeded:    e.emaSeeded,
	}
	return st
}

// StateJSON serializes the engine state.
func (e *Engine) StateJSON() ([]byte, error) {
	return json.Marshal(e.State())
}

// Restore rebuilds an engine from a persisted state. A state recorded
// under a different config cannot be restored; callers fall back to a
// cold start and replay history instead.
func Restore(st *EngineState) (*Engine, error) {
	if st.Version != stateVersion {
		return nil, fmt.Errorf("indicator: unsupported state version %d", st.Version)
	}
	if st.Config != (Config{}) && len(st.Highs) != st.Config.StructureWindow {
		return nil, fmt.Errorf("indicator: state buffers do not match config")
	}
	e := NewEngine(st.Config)
	e.count = st.Count
	copy(e.highs, st.Highs)
	copy(e.lows, st.Lows)
	e.structN = st.StructN
	copy(e.fib0Buf, st.Fib0Buf)
	copy(e.fib50Buf, st.Fib50Buf)
	e.smoothN = st.SmoothN
	e.fib0Sum = st.Fib0Sum
	e.fib50Sum = st.Fib50Sum
	e.rawCount = st.RawCount
	e.prevClose = st.PrevClose
	e.hasPrevClose = st.HasPrevClose
	copy(e.trBuf, st.TRBuf)
	e.trN = st.TRN
	e.trSum = st.TRSum
	e.trCount = st.TRCount
	e.emaVal = st.EMAVal
	e.emaSeeded = st.EMASeeded
	return e, nil
}

// RestoreJSON rebuilds an engine from serialized state. The expected config
// guards against restoring a checkpoint taken under different windows.
func RestoreJSON(data []byte, expected Config) (*Engine, error) {
	var st EngineState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("indicator: decode state: %w", err)
	}
	if st.Config != expected {
		return nil, fmt.Errorf("indicator: state config mismatch")
	}
	return Restore(&st)
}
