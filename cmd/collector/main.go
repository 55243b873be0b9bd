package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"savantbot/config"
	"savantbot/internal/collector"
	"savantbot/internal/exchange"
	"savantbot/internal/logger"
	"savantbot/internal/metrics"
	sqlitestore "savantbot/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	cfg.Validate()
	logger.Init("collector", slog.LevelInfo, cfg.LogFile)
	log.Println("[collector] starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prom := metrics.New("collector")
	metrics.Serve(ctx, cfg.MetricsAddr)

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[collector] sqlite init failed: %v", err)
	}
	defer store.Close()

	client := exchange.NewClient(exchange.Config{APIURL: cfg.APIURL})
	feed := exchange.NewFeed(cfg.WSURL, cfg.Asset)

	c := collector.New(feed, client, store, cfg.Asset, cfg.CollectInterval, prom)
	c.Run(ctx)

	log.Println("[collector] shutdown complete")
}
