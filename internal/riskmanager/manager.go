// Package riskmanager polls open positions and the latest trade signal,
// enforces the layered exit policy, and executes entries on buy signals.
package riskmanager

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strconv"
	"time"

	"savantbot/internal/indicator"
	"savantbot/internal/metrics"
	"savantbot/internal/model"
	"savantbot/internal/notification"
	"savantbot/internal/risk"
)

const (
	riskStateKey    = "risk:states"
	entryCursorKey  = "risk:last_entry_signal"
	signalStaleness = 3 // signal older than staleness * bucket width is ignored for band levels
)

// Config configures the risk manager service.
type Config struct {
	Asset          string
	Risk           risk.Config
	Interval       time.Duration
	StatusInterval time.Duration // 0 disables periodic status reports
	BucketWidth    time.Duration
	TradeCooldown  time.Duration
	TradeNotional  float64 // USD notional per entry
}

// Manager owns the position management loop.
type Manager struct {
	cfg       Config
	positions model.PositionSource
	prices    model.PriceSource
	executor  model.OrderExecutor
	signals   model.SignalReader
	state     model.StateStore
	events    model.EventLogger
	notifier  notification.Notifier
	metrics   *metrics.Metrics

	risk        *risk.Manager
	lastTradeAt time.Time
	lastEntryTS time.Time // TS of the last buy signal acted on
}

// New creates the risk manager.
func New(cfg Config, positions model.PositionSource, prices model.PriceSource, executor model.OrderExecutor, signals model.SignalReader, state model.StateStore, events model.EventLogger, notifier notification.Notifier, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:       cfg,
		positions: positions,
		prices:    prices,
		executor:  executor,
		signals:   signals,
		state:     state,
		events:    events,
		notifier:  notifier,
		metrics:   m,
		risk:      risk.NewManager(cfg.Risk),
	}
}

// Run restores persisted state, announces startup, and loops until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.restore(ctx)
	slog.Info("risk manager starting",
		"asset", m.cfg.Asset,
		"stop_loss", m.cfg.Risk.StopLossPct,
		"take_profit", m.cfg.Risk.TakeProfitPct,
		"trailing", string(m.cfg.Risk.Trailing))

	m.announce(ctx, model.EventBotStarted, "Bot Started", "Risk manager online.")
	defer m.announce(context.Background(), model.EventBotStopped, "Bot Stopped", "Risk manager shutting down.")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	var statusCh <-chan time.Time
	if m.cfg.StatusInterval > 0 {
		status := time.NewTicker(m.cfg.StatusInterval)
		defer status.Stop()
		statusCh = status.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("risk manager stopped")
			return
		case <-ticker.C:
			m.cycle(ctx)
		case <-statusCh:
			m.statusReport(ctx)
		}
	}
}

// statusReport posts a periodic summary of open positions and the
// latest snapshot to the notifier.
func (m *Manager) statusReport(ctx context.Context) {
	positions, err := m.positions.OpenPositions(ctx)
	if err != nil {
		log.Printf("[risk] status report positions error: %v", err)
		return
	}
	sig, err := m.signals.LatestSignal(ctx)
	if err != nil {
		log.Printf("[risk] status report signal error: %v", err)
	}

	msg := fmt.Sprintf("%d open position(s).", len(positions))
	if len(positions) == 0 {
		msg = "Flat. Watching for signals."
	}
	if err := m.notifier.Send(ctx, notification.Alert{
		Kind:      model.EventStatusReport,
		Title:     "Status Report",
		Message:   msg,
		Signal:    sig,
		Positions: positions,
	}); err != nil {
		log.Printf("[risk] notify error: %v", err)
	}
}

func (m *Manager) restore(ctx context.Context) {
	if data, err := m.state.LoadStateJSON(ctx, riskStateKey); err != nil {
		log.Printf("[risk] state load error, cold start: %v", err)
	} else if data != nil {
		if err := m.risk.RestoreStates(data); err != nil {
			log.Printf("[risk] state parse error, cold start: %v", err)
		} else {
			log.Printf("[risk] exit state restored")
		}
	}

	if data, err := m.state.LoadStateJSON(ctx, entryCursorKey); err == nil && data != nil {
		if nanos, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			m.lastEntryTS = time.Unix(0, nanos).UTC()
		}
	}
}

func (m *Manager) cycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.RiskCycleDur.Observe(time.Since(start).Seconds())
		}
	}()

	positions, err := m.positions.OpenPositions(ctx)
	if err != nil {
		log.Printf("[risk] positions error: %v", err)
		return
	}
	if m.metrics != nil {
		m.metrics.OpenPositions.Set(float64(len(positions)))
	}

	sig, err := m.signals.LatestSignal(ctx)
	if err != nil {
		log.Printf("[risk] latest signal error: %v", err)
		sig = nil
	}

	bandLow, entryLevel := m.bandLevels(sig)

	tracked := map[string]bool{}
	for _, pos := range positions {
		tracked[pos.Asset] = true
		m.managePosition(ctx, pos, sig, bandLow, entryLevel)
	}

	// Discard exit state for positions that disappeared outside our
	// control (manual close, liquidation).
	for _, asset := range m.risk.Prune(tracked) {
		log.Printf("[risk] position %s vanished, exit state discarded", asset)
	}

	if !tracked[m.cfg.Asset] {
		m.maybeEnter(ctx, sig)
	}

	m.checkpoint(ctx)
}

// bandLevels extracts indicator levels from the latest signal, treating
// a missing or stale snapshot as undefined. Structure-based exits then
// fall back to the fixed rules rather than act on outdated levels.
func (m *Manager) bandLevels(sig *model.TradeSignal) (bandLow, entryLevel indicator.Value) {
	if sig == nil {
		return indicator.Value{}, indicator.Value{}
	}
	if time.Since(sig.TS) > signalStaleness*m.cfg.BucketWidth {
		return indicator.Value{}, indicator.Value{}
	}
	if sig.BandLow != nil {
		bandLow = indicator.Def(*sig.BandLow)
	}
	if sig.EntryLevel != nil {
		entryLevel = indicator.Def(*sig.EntryLevel)
	}
	return bandLow, entryLevel
}

func (m *Manager) managePosition(ctx context.Context, pos model.Position, sig *model.TradeSignal, bandLow, entryLevel indicator.Value) {
	mark, err := m.prices.Mid(ctx, pos.Asset)
	if err != nil {
		// Fall back to the signal's candle close rather than skip the
		// cycle entirely.
		if sig == nil {
			log.Printf("[risk] no mark price for %s: %v", pos.Asset, err)
			return
		}
		mark = sig.Price
	}

	decision := m.risk.Evaluate(pos, mark, bandLow, entryLevel)
	if decision == nil {
		return
	}

	log.Printf("[risk] closing %s %s: %s (trigger=%.4f, roe=%.4f)",
		pos.Direction, pos.Asset, decision.Reason, decision.TriggerValue, pos.ReturnOnEquity)

	isBuy := pos.Direction == model.DirectionShort
	res, err := m.executor.MarketOrder(ctx, pos.Asset, isBuy, pos.Size)
	if err != nil || !res.OK {
		if m.metrics != nil {
			m.metrics.OrderFailures.Inc()
		}
		if err != nil {
			log.Printf("[risk] close order error for %s: %v", pos.Asset, err)
		} else {
			log.Printf("[risk] close order rejected for %s: %s", pos.Asset, res.Message)
		}
		return // keep exit state, retry next cycle
	}

	m.risk.Forget(pos.Asset)
	m.lastTradeAt = time.Now()
	if m.metrics != nil {
		m.metrics.ClosesTotal.WithLabelValues(string(decision.Reason)).Inc()
	}

	details := model.CloseDetails{
		Asset:        pos.Asset,
		Size:         pos.Size,
		ROE:          pos.ReturnOnEquity,
		Reason:       string(decision.Reason),
		TriggerValue: decision.TriggerValue,
	}
	kind := decision.Reason.EventKind()
	if err := m.events.LogEvent(ctx, model.NewEvent(kind, details)); err != nil {
		log.Printf("[risk] event log error: %v", err)
	}

	title := "Position Closed: " + string(decision.Reason)
	msg := fmt.Sprintf("Closed %s %.4f %s at ROE %.2f%% (trigger %.4f).",
		pos.Direction, pos.Size, pos.Asset, pos.ReturnOnEquity*100, decision.TriggerValue)
	if err := m.notifier.Send(ctx, notification.Alert{
		Kind: kind, Title: title, Message: msg, Positions: []model.Position{pos},
	}); err != nil {
		log.Printf("[risk] notify error: %v", err)
	}
}

// maybeEnter opens a long when the latest snapshot carries a fresh buy
// signal, the cooldown has elapsed, and the signal has not already been
// acted on.
func (m *Manager) maybeEnter(ctx context.Context, sig *model.TradeSignal) {
	if sig == nil || !sig.BuySignal {
		return
	}
	if !sig.TS.After(m.lastEntryTS) {
		return // this snapshot was already executed (or predates it)
	}
	if time.Since(sig.TS) > signalStaleness*m.cfg.BucketWidth {
		return
	}
	if !m.lastTradeAt.IsZero() && time.Since(m.lastTradeAt) < m.cfg.TradeCooldown {
		log.Printf("[risk] buy signal ignored: cooldown active (%s left)",
			(m.cfg.TradeCooldown - time.Since(m.lastTradeAt)).Round(time.Second))
		return
	}
	if sig.Price <= 0 {
		return
	}

	size := m.cfg.TradeNotional / sig.Price
	log.Printf("[risk] executing buy signal: %.4f %s @ ~%.4f", size, m.cfg.Asset, sig.Price)

	res, err := m.executor.MarketOrder(ctx, m.cfg.Asset, true, size)
	if err != nil || !res.OK {
		if m.metrics != nil {
			m.metrics.OrderFailures.Inc()
		}
		if err != nil {
			log.Printf("[risk] entry order error: %v", err)
		} else {
			log.Printf("[risk] entry order rejected: %s", res.Message)
		}
		return // cooldown and cursor advance only on success
	}

	m.lastEntryTS = sig.TS
	m.lastTradeAt = time.Now()
	if m.metrics != nil {
		m.metrics.TradesTotal.WithLabelValues("buy").Inc()
	}

	details := map[string]any{
		"asset":     m.cfg.Asset,
		"size":      size,
		"signal_ts": sig.TS,
	}
	if res.AvgPrice > 0 {
		details["avg_price"] = res.AvgPrice
	}
	if err := m.events.LogEvent(ctx, model.NewEvent(model.EventTradeExecuted, details)); err != nil {
		log.Printf("[risk] event log error: %v", err)
	}

	fill := sig.Price
	if res.AvgPrice > 0 {
		fill = res.AvgPrice
	}
	msg := fmt.Sprintf("Opened LONG %.4f %s at ~$%.4f.", size, m.cfg.Asset, fill)
	if err := m.notifier.Send(ctx, notification.Alert{
		Kind: model.EventTradeExecuted, Title: "Trade Executed", Message: msg, Signal: sig,
	}); err != nil {
		log.Printf("[risk] notify error: %v", err)
	}
}

func (m *Manager) checkpoint(ctx context.Context) {
	if data, err := m.risk.StatesJSON(); err == nil {
		if err := m.state.SaveStateJSON(ctx, riskStateKey, data); err != nil {
			log.Printf("[risk] state save error: %v", err)
		}
	}
	cursor := strconv.FormatInt(m.lastEntryTS.UnixNano(), 10)
	if err := m.state.SaveStateJSON(ctx, entryCursorKey, []byte(cursor)); err != nil {
		log.Printf("[risk] cursor save error: %v", err)
	}
}

func (m *Manager) announce(ctx context.Context, kind model.EventKind, title, msg string) {
	if err := m.events.LogEvent(ctx, model.NewEvent(kind, nil)); err != nil {
		log.Printf("[risk] event log error: %v", err)
	}
	if err := m.notifier.Send(ctx, notification.Alert{Kind: kind, Title: title, Message: msg}); err != nil {
		log.Printf("[risk] notify error: %v", err)
	}
}
