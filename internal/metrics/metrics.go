// Package metrics exposes Prometheus metrics for the savant services.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	SamplesTotal    prometheus.Counter
	SamplesDropped  prometheus.Counter
	CandlesTotal    prometheus.Counter
	SignalsTotal    prometheus.Counter
	BuySignalsTotal prometheus.Counter
	TradesTotal     *prometheus.CounterVec // labels: side
	ClosesTotal     *prometheus.CounterVec // labels: reason
	OrderFailures   prometheus.Counter
	WSReconnects    prometheus.Counter

	TriggerArmed  prometheus.Gauge
	OpenPositions prometheus.Gauge

	SignalCycleDur prometheus.Histogram
	RiskCycleDur   prometheus.Histogram
}

// New registers and returns all metrics on the default registry.
func New(service string) *Metrics {
	m := &Metrics{
		SamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_samples_total",
			Help: "Total price samples ingested",
		}),
		SamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_samples_dropped_total",
			Help: "Malformed or late samples discarded",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_candles_total",
			Help: "Total candles aggregated",
		}),
		SignalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_signals_published_total",
			Help: "Total trade-signal snapshots published",
		}),
		BuySignalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_buy_signals_total",
			Help: "Total one-shot buy signals fired",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_trades_total",
			Help: "Total executed trades",
		}, []string{"side"}),
		ClosesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_position_closes_total",
			Help: "Total position closes by reason",
		}, []string{"reason"}),
		OrderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_order_failures_total",
			Help: "Total rejected or failed order submissions",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_ws_reconnects_total",
			Help: "Total websocket reconnection attempts",
		}),
		TriggerArmed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: service + "_trigger_armed",
			Help: "1 when the trigger is armed",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: service + "_open_positions",
			Help: "Currently observed open positions",
		}),
		SignalCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    service + "_signal_cycle_seconds",
			Help:    "Signal pipeline cycle duration",
			Buckets: prometheus.DefBuckets,
		}),
		RiskCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    service + "_risk_cycle_seconds",
			Help:    "Risk manager cycle duration",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.SamplesTotal, m.SamplesDropped, m.CandlesTotal,
		m.SignalsTotal, m.BuySignalsTotal, m.TradesTotal, m.ClosesTotal,
		m.OrderFailures, m.WSReconnects,
		m.TriggerArmed, m.OpenPositions,
		m.SignalCycleDur, m.RiskCycleDur,
	)
	return m
}

// Serve starts the /metrics HTTP server and shuts it down with ctx.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Printf("[metrics] serving on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}
