// Package signalengine runs the candle → indicator → trigger pipeline
// on a fixed interval and publishes the resulting trade signal.
package signalengine

import (
	"context"
	"log"
	"log/slog"
	"strconv"
	"time"

	"savantbot/internal/indicator"
	"savantbot/internal/marketdata/agg"
	"savantbot/internal/metrics"
	"savantbot/internal/model"
	"savantbot/internal/notification"
	"savantbot/internal/signal"
)

const (
	triggerStateKey = "trigger"
	engineStateKey  = "indicator:engine"
	cursorStateKey  = "signal:last_candle"
)

// Config configures the signal engine service.
type Config struct {
	Indicator     indicator.Config
	ResetPct      float64
	BucketWidth   time.Duration
	HistoryWindow time.Duration
	Interval      time.Duration
}

// Engine owns the signal pipeline loop.
type Engine struct {
	cfg       Config
	samples   model.SampleStore
	publisher model.SignalPublisher
	state     model.StateStore
	events    model.EventLogger
	notifier  notification.Notifier
	metrics   *metrics.Metrics

	trigger     *signal.Trigger
	lastCandle  time.Time // open time of the last candle fed to the trigger
	prevCandles int       // candle count of the previous cycle, for the candle counter
}

// New creates the signal engine.
func New(cfg Config, samples model.SampleStore, publisher model.SignalPublisher, state model.StateStore, events model.EventLogger, notifier notification.Notifier, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:       cfg,
		samples:   samples,
		publisher: publisher,
		state:     state,
		events:    events,
		notifier:  notifier,
		metrics:   m,
	}
}

// Run restores persisted state and loops until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.restore(ctx)
	slog.Info("signal engine starting",
		"bucket", e.cfg.BucketWidth.String(),
		"warmup_candles", e.cfg.Indicator.WarmupLen(),
		"armed", e.trigger.Armed())

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("signal engine stopped")
			return
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

// restore loads the trigger state and candle cursor, falling back to a
// cold start when nothing was persisted or the blob is unreadable.
func (e *Engine) restore(ctx context.Context) {
	e.trigger = signal.New(e.cfg.ResetPct)

	if data, err := e.state.LoadStateJSON(ctx, triggerStateKey); err != nil {
		log.Printf("[signal] trigger state load error, cold start: %v", err)
	} else if data != nil {
		st, err := signal.ParseState(data)
		if err != nil {
			log.Printf("[signal] trigger state parse error, cold start: %v", err)
		} else {
			e.trigger = signal.Restore(e.cfg.ResetPct, st)
			log.Printf("[signal] trigger state restored (armed=%v)", st.Armed)
		}
	}

	if data, err := e.state.LoadStateJSON(ctx, cursorStateKey); err == nil && data != nil {
		if unix, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			e.lastCandle = time.Unix(unix, 0).UTC()
			log.Printf("[signal] candle cursor restored at %s", e.lastCandle.Format(time.RFC3339))
		}
	}
}

// cycle runs one full pipeline pass. State is checkpointed only after
// the signal has been published, so a crash mid-cycle replays the
// candle instead of losing it.
func (e *Engine) cycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.SignalCycleDur.Observe(time.Since(start).Seconds())
		}
	}()

	since := time.Now().Add(-e.cfg.HistoryWindow)
	samples, err := e.samples.ReadSamples(ctx, since)
	if err != nil {
		log.Printf("[signal] read samples error: %v", err)
		return
	}
	if len(samples) == 0 {
		return
	}

	candles := agg.Aggregate(samples, e.cfg.BucketWidth)
	// The last bucket may still be forming; act on closed candles only.
	if n := len(candles); n > 0 {
		last := candles[n-1]
		if last.OpenTime.Add(e.cfg.BucketWidth).After(time.Now()) {
			candles = candles[:n-1]
		}
	}
	if len(candles) == 0 {
		return
	}
	if e.metrics != nil && len(candles) > e.prevCandles {
		e.metrics.CandlesTotal.Add(float64(len(candles) - e.prevCandles))
	}
	e.prevCandles = len(candles)

	latest := candles[len(candles)-1]
	if !latest.OpenTime.After(e.lastCandle) {
		return // nothing new since the last cycle
	}

	// Indicators are rebuilt from the full candle history every cycle, so
	// a restart re-derives identical values from the sample log alone.
	eng := indicator.NewEngine(e.cfg.Indicator)
	var snap indicator.Snapshot
	for _, c := range candles {
		snap = eng.Process(c)
	}

	prevTrigger := e.trigger.State()
	buy, kinds := e.trigger.Step(latest.Close, snap.BandLow, snap.EntryLevel)

	sig := model.TradeSignal{
		TS:           latest.OpenTime.Add(e.cfg.BucketWidth),
		Price:        latest.Close,
		BandLow:      snap.BandLow.Ptr(),
		EntryLevel:   snap.EntryLevel.Ptr(),
		BandMid:      snap.BandMid.Ptr(),
		ATR:          snap.ATR.Ptr(),
		TrendAvg:     snap.TrendAvg.Ptr(),
		TriggerArmed: e.trigger.Armed(),
		BuySignal:    buy,
	}

	if err := e.publisher.PublishSignal(ctx, sig); err != nil {
		// Roll the trigger back so the retry replays this candle with the
		// same pre-step state; a fired buy must not vanish into a failed
		// publish.
		e.trigger = signal.Restore(e.cfg.ResetPct, prevTrigger)
		log.Printf("[signal] publish error: %v", err)
		return
	}

	if e.metrics != nil {
		e.metrics.SignalsTotal.Inc()
		if buy {
			e.metrics.BuySignalsTotal.Inc()
		}
		if e.trigger.Armed() {
			e.metrics.TriggerArmed.Set(1)
		} else {
			e.metrics.TriggerArmed.Set(0)
		}
	}

	for _, kind := range kinds {
		e.emit(ctx, kind, &sig)
	}

	e.lastCandle = latest.OpenTime
	e.checkpoint(ctx, eng)
}

func (e *Engine) emit(ctx context.Context, kind model.EventKind, sig *model.TradeSignal) {
	ev := model.NewEvent(kind, sig)
	if err := e.events.LogEvent(ctx, ev); err != nil {
		log.Printf("[signal] event log error: %v", err)
	}

	var title, message string
	switch kind {
	case model.EventTriggerArmed:
		title = "Trigger Armed"
		message = "Price dipped below the entry level. Watching for reclaim."
	case model.EventTriggerDisarmed:
		title = "Trigger Disarmed"
		message = "Price moved back above the reset band."
	case model.EventBuySignal:
		title = "BUY SIGNAL"
		message = "Armed trigger fired: price reclaimed the band."
	default:
		return
	}
	if err := e.notifier.Send(ctx, notification.Alert{
		Kind:    kind,
		Title:   title,
		Message: message,
		Signal:  sig,
	}); err != nil {
		log.Printf("[signal] notify error: %v", err)
	}
}

func (e *Engine) checkpoint(ctx context.Context, eng *indicator.Engine) {
	if data, err := e.trigger.StateJSON(); err == nil {
		if err := e.state.SaveStateJSON(ctx, triggerStateKey, data); err != nil {
			log.Printf("[signal] trigger state save error: %v", err)
		}
	}
	if data, err := eng.StateJSON(); err == nil {
		if err := e.state.SaveStateJSON(ctx, engineStateKey, data); err != nil {
			log.Printf("[signal] engine state save error: %v", err)
		}
	}
	cursor := strconv.FormatInt(e.lastCandle.Unix(), 10)
	if err := e.state.SaveStateJSON(ctx, cursorStateKey, []byte(cursor)); err != nil {
		log.Printf("[signal] cursor save error: %v", err)
	}
}
