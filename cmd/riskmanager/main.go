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
	"savantbot/internal/admin"
	"savantbot/internal/exchange"
	"savantbot/internal/logger"
	"savantbot/internal/metrics"
	"savantbot/internal/notification"
	"savantbot/internal/riskmanager"
	redisstore "savantbot/internal/store/redis"
	sqlitestore "savantbot/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	cfg.Validate()
	cfg.RequireTrading()
	logger.Init("riskmanager", slog.LevelInfo, cfg.LogFile)
	log.Println("[riskmanager] starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prom := metrics.New("riskmanager")
	metrics.Serve(ctx, cfg.MetricsAddr)

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[riskmanager] sqlite init failed: %v", err)
	}
	defer store.Close()

	rds, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[riskmanager] redis init failed: %v", err)
	}
	defer rds.Close()

	client := exchange.NewClient(exchange.Config{
		APIURL:        cfg.APIURL,
		WalletAddress: cfg.WalletAddress,
		PrivateKey:    cfg.PrivateKey,
	})

	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewDiscordNotifier(cfg.WebhookURL)
	}

	if cfg.AdminTOTP != "" {
		adminSrv := admin.New(admin.Config{
			Addr:       cfg.AdminAddr,
			TOTPSecret: cfg.AdminTOTP,
		}, client, client, store)
		adminSrv.Serve(ctx)
	} else {
		log.Println("[riskmanager] ADMIN_TOTP_SECRET not set, panic endpoint disabled")
	}

	m := riskmanager.New(riskmanager.Config{
		Asset:          cfg.Asset,
		Risk:           cfg.Risk(),
		Interval:       cfg.RiskInterval,
		StatusInterval: cfg.StatusInterval,
		BucketWidth:    cfg.BucketWidth,
		TradeCooldown:  cfg.TradeCooldown,
		TradeNotional:  cfg.TradeNotional,
	}, client, client, client, rds, rds, store, notifier, prom)

	m.Run(ctx)
	log.Println("[riskmanager] shutdown complete")
}
