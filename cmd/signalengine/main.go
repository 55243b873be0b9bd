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
	"savantbot/internal/logger"
	"savantbot/internal/metrics"
	"savantbot/internal/notification"
	"savantbot/internal/signalengine"
	redisstore "savantbot/internal/store/redis"
	sqlitestore "savantbot/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	cfg.Validate()
	logger.Init("signalengine", slog.LevelInfo, cfg.LogFile)
	log.Println("[signalengine] starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prom := metrics.New("signalengine")
	metrics.Serve(ctx, cfg.MetricsAddr)

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[signalengine] sqlite init failed: %v", err)
	}
	defer store.Close()

	rds, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[signalengine] redis init failed: %v", err)
	}
	defer rds.Close()

	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewDiscordNotifier(cfg.WebhookURL)
	}

	engine := signalengine.New(signalengine.Config{
		Indicator:     cfg.Indicator(),
		ResetPct:      cfg.ResetPct,
		BucketWidth:   cfg.BucketWidth,
		HistoryWindow: cfg.HistoryWindow,
		Interval:      cfg.SignalInterval,
	}, store, rds, rds, store, notifier, prom)

	engine.Run(ctx)
	log.Println("[signalengine] shutdown complete")
}
