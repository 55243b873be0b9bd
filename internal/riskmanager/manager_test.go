package riskmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"savantbot/internal/model"
	"savantbot/internal/notification"
	"savantbot/internal/risk"
)

type fakePositions struct {
	positions []model.Position
}

func (f *fakePositions) OpenPositions(ctx context.Context) ([]model.Position, error) {
	return f.positions, nil
}

type fakePrices struct {
	mid float64
	err error
}

func (f *fakePrices) Mid(ctx context.Context, asset string) (float64, error) {
	return f.mid, f.err
}

type fakeExecutor struct {
	fail   bool
	orders []struct {
		Asset string
		IsBuy bool
		Size  float64
	}
}

func (f *fakeExecutor) MarketOrder(ctx context.Context, asset string, isBuy bool, size float64) (model.OrderResult, error) {
	if f.fail {
		return model.OrderResult{}, errors.New("exchange down")
	}
	f.orders = append(f.orders, struct {
		Asset string
		IsBuy bool
		Size  float64
	}{asset, isBuy, size})
	return model.OrderResult{OK: true, AvgPrice: 42.0}, nil
}

type fakeSignals struct {
	sig *model.TradeSignal
}

func (f *fakeSignals) LatestSignal(ctx context.Context) (*model.TradeSignal, error) {
	return f.sig, nil
}

type fakeState struct {
	blobs map[string][]byte
}

func newFakeState() *fakeState { return &fakeState{blobs: map[string][]byte{}} }

func (f *fakeState) SaveStateJSON(ctx context.Context, key string, data []byte) error {
	f.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeState) LoadStateJSON(ctx context.Context, key string) ([]byte, error) {
	return f.blobs[key], nil
}

type fakeEvents struct {
	kinds []model.EventKind
}

func (f *fakeEvents) LogEvent(ctx context.Context, ev model.Event) error {
	f.kinds = append(f.kinds, ev.Kind)
	return nil
}

func testConfig() Config {
	return Config{
		Asset: "HYPE",
		Risk: risk.Config{
			StopLossPct:   0.15,
			TakeProfitPct: 0.30,
			Trailing:      risk.TrailPercent,
			ActivationPct: 0.50,
			DistancePct:   0.25,
		},
		Interval:      time.Second,
		BucketWidth:   5 * time.Minute,
		TradeCooldown: 10 * time.Minute,
		TradeNotional: 625,
	}
}

type fixture struct {
	m         *Manager
	positions *fakePositions
	prices    *fakePrices
	executor  *fakeExecutor
	signals   *fakeSignals
	state     *fakeState
	events    *fakeEvents
}

func newFixture() *fixture {
	f := &fixture{
		positions: &fakePositions{},
		prices:    &fakePrices{mid: 42.0},
		executor:  &fakeExecutor{},
		signals:   &fakeSignals{},
		state:     newFakeState(),
		events:    &fakeEvents{},
	}
	f.m = New(testConfig(), f.positions, f.prices, f.executor, f.signals,
		f.state, f.events, notification.NewLogNotifier(), nil)
	return f
}

func positionFor(asset string, roe float64) model.Position {
	return model.Position{
		Asset:          asset,
		Direction:      model.DirectionLong,
		Size:           10,
		EntryPrice:     40,
		ReturnOnEquity: roe,
	}
}

func longPosition(roe float64) model.Position {
	return positionFor("HYPE", roe)
}

func freshSignal(buy bool, price float64) *model.TradeSignal {
	band := price * 0.98
	entry := band * 0.995
	return &model.TradeSignal{
		TS:         time.Now().UTC(),
		Price:      price,
		BandLow:    &band,
		EntryLevel: &entry,
		BuySignal:  buy,
	}
}

func TestCycle_StopLossCloses(t *testing.T) {
	f := newFixture()
	f.positions.positions = []model.Position{longPosition(-0.16)}

	ctx := context.Background()
	f.m.restore(ctx)
	f.m.cycle(ctx)

	if len(f.executor.orders) != 1 {
		t.Fatalf("expected 1 close order, got %d", len(f.executor.orders))
	}
	o := f.executor.orders[0]
	if o.Asset != "HYPE" || o.IsBuy || o.Size != 10 {
		t.Errorf("unexpected close order: %+v", o)
	}
	if !containsKind(f.events.kinds, model.EventStopLossHit) {
		t.Errorf("expected STOP_LOSS_HIT event, got %v", f.events.kinds)
	}
	if f.m.risk.PositionState("HYPE") != nil {
		t.Error("expected exit state discarded after close")
	}
}

func TestCycle_HealthyPositionHeld(t *testing.T) {
	f := newFixture()
	f.positions.positions = []model.Position{longPosition(0.05)}

	ctx := context.Background()
	f.m.restore(ctx)
	f.m.cycle(ctx)

	if len(f.executor.orders) != 0 {
		t.Fatalf("expected no orders, got %+v", f.executor.orders)
	}
	if f.m.risk.PositionState("HYPE") == nil {
		t.Error("expected exit state to be tracked for the open position")
	}
}

func TestCycle_FailedCloseRetries(t *testing.T) {
	f := newFixture()
	f.positions.positions = []model.Position{longPosition(-0.20)}
	f.executor.fail = true

	ctx := context.Background()
	f.m.restore(ctx)
	f.m.cycle(ctx)

	if f.m.risk.PositionState("HYPE") == nil {
		t.Fatal("exit state must survive a failed close")
	}
	if containsKind(f.events.kinds, model.EventStopLossHit) {
		t.Error("no close event until the order succeeds")
	}

	f.executor.fail = false
	f.m.cycle(ctx)
	if len(f.executor.orders) != 1 {
		t.Fatalf("expected the close to be retried, got %d orders", len(f.executor.orders))
	}
	if !containsKind(f.events.kinds, model.EventStopLossHit) {
		t.Error("expected STOP_LOSS_HIT event after retry")
	}
}

func TestCycle_VanishedPositionStateDiscarded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.m.restore(ctx)

	// A profitable position in another asset; the close attempt fails, so
	// its exit state is retained for the retry.
	f.positions.positions = []model.Position{positionFor("OTHER", 0.60)}
	f.executor.fail = true
	f.m.cycle(ctx)
	if f.m.risk.PositionState("OTHER") == nil {
		t.Fatal("exit state must survive the failed close")
	}

	// The position disappears outside our control (manual close,
	// liquidation) before the retry lands.
	f.positions.positions = nil
	f.m.cycle(ctx)
	if f.m.risk.PositionState("OTHER") != nil {
		t.Fatal("exit state must be discarded when the position vanishes")
	}

	// A fresh position in the same asset must not inherit the dead
	// position's peak ROE and get flattened on sight.
	f.positions.positions = []model.Position{positionFor("OTHER", 0.0)}
	f.executor.fail = false
	f.m.cycle(ctx)
	if len(f.executor.orders) != 0 {
		t.Fatalf("fresh position closed using stale exit state: %+v", f.executor.orders)
	}
}

func TestCycle_ExecutesBuySignalOnce(t *testing.T) {
	f := newFixture()
	f.signals.sig = freshSignal(true, 42.0)

	ctx := context.Background()
	f.m.restore(ctx)
	f.m.cycle(ctx)

	if len(f.executor.orders) != 1 {
		t.Fatalf("expected 1 entry order, got %d", len(f.executor.orders))
	}
	o := f.executor.orders[0]
	if !o.IsBuy || o.Asset != "HYPE" {
		t.Errorf("unexpected entry order: %+v", o)
	}
	wantSize := 625.0 / 42.0
	if diff := o.Size - wantSize; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected size %.6f, got %.6f", wantSize, o.Size)
	}
	if !containsKind(f.events.kinds, model.EventTradeExecuted) {
		t.Error("expected TRADE_EXECUTED event")
	}

	// Same snapshot must not be executed twice.
	f.m.cycle(ctx)
	if len(f.executor.orders) != 1 {
		t.Fatalf("expected no re-entry on the same signal, got %d orders", len(f.executor.orders))
	}
}

func TestCycle_CooldownBlocksEntry(t *testing.T) {
	f := newFixture()
	f.m.lastTradeAt = time.Now().Add(-time.Minute) // traded recently
	f.signals.sig = freshSignal(true, 42.0)

	ctx := context.Background()
	f.m.cycle(ctx)

	if len(f.executor.orders) != 0 {
		t.Fatalf("cooldown must block the entry, got %+v", f.executor.orders)
	}
}

func TestCycle_StaleBuySignalIgnored(t *testing.T) {
	f := newFixture()
	sig := freshSignal(true, 42.0)
	sig.TS = time.Now().Add(-time.Hour)
	f.signals.sig = sig

	ctx := context.Background()
	f.m.restore(ctx)
	f.m.cycle(ctx)

	if len(f.executor.orders) != 0 {
		t.Fatalf("stale signal must not trade, got %+v", f.executor.orders)
	}
}

func TestCycle_NoEntryWhilePositionOpen(t *testing.T) {
	f := newFixture()
	f.positions.positions = []model.Position{longPosition(0.05)}
	f.signals.sig = freshSignal(true, 42.0)

	ctx := context.Background()
	f.m.restore(ctx)
	f.m.cycle(ctx)

	if len(f.executor.orders) != 0 {
		t.Fatalf("must not add to an open position, got %+v", f.executor.orders)
	}
}

func TestCycle_EntryCursorSurvivesRestart(t *testing.T) {
	f := newFixture()
	f.signals.sig = freshSignal(true, 42.0)

	ctx := context.Background()
	f.m.restore(ctx)
	f.m.cycle(ctx)
	if len(f.executor.orders) != 1 {
		t.Fatalf("expected entry, got %d orders", len(f.executor.orders))
	}

	// New manager over the same state store: the executed signal must
	// not fire again after restart.
	m2 := New(testConfig(), f.positions, f.prices, f.executor, f.signals,
		f.state, f.events, notification.NewLogNotifier(), nil)
	m2.restore(ctx)
	m2.cycle(ctx)
	if len(f.executor.orders) != 1 {
		t.Fatalf("restart must not re-execute the signal, got %d orders", len(f.executor.orders))
	}
}

type captureNotifier struct {
	alerts []notification.Alert
}

func (c *captureNotifier) Send(ctx context.Context, alert notification.Alert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}

func TestStatusReport_IncludesPositionsAndSignal(t *testing.T) {
	f := newFixture()
	notifier := &captureNotifier{}
	f.m.notifier = notifier
	f.positions.positions = []model.Position{longPosition(0.05)}
	f.signals.sig = freshSignal(false, 42.0)

	f.m.statusReport(context.Background())

	if len(notifier.alerts) != 1 {
		t.Fatalf("expected 1 status alert, got %d", len(notifier.alerts))
	}
	a := notifier.alerts[0]
	if a.Kind != model.EventStatusReport {
		t.Errorf("expected STATUS_REPORT kind, got %s", a.Kind)
	}
	if len(a.Positions) != 1 || a.Signal == nil {
		t.Errorf("expected positions and signal attached, got %+v", a)
	}
}

func containsKind(kinds []model.EventKind, k model.EventKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
