// Package config loads all service configuration from environment
// variables (optionally via a .env file) into one typed struct with
// explicit defaults, validated once at startup. Missing credentials or
// unparseable numeric options are fatal; the process refuses to start
// rather than run with defaults that could place live risk.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"savantbot/internal/indicator"
	"savantbot/internal/risk"
)

// Config holds all application configuration.
type Config struct {
	// Exchange
	APIURL        string
	WSURL         string
	WalletAddress string
	PrivateKey    string
	Asset         string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	AdminAddr     string
	AdminTOTP     string // TOTP secret guarding the panic-close endpoint
	WebhookURL    string // Discord webhook for notifications, empty = log only
	LogFile       string // rotating log file, empty = stdout only

	// Candle aggregation
	BucketWidth   time.Duration
	HistoryWindow time.Duration // sample history read per signal cycle

	// Indicator windows
	StructureWindow int
	SmoothingWindow int
	ATRPeriod       int
	TrendPeriod     int
	BandOffsetPct   float64
	EntryOffsetPct  float64

	// Signal
	ResetPct float64

	// Risk / execution
	StopLossPct      float64
	TakeProfitPct    float64
	TrailingStrategy string
	ActivationPct    float64
	DistancePct      float64
	TradeCooldown    time.Duration
	TradeNotional    float64 // USD per entry

	// Loop intervals
	CollectInterval time.Duration
	SignalInterval  time.Duration
	RiskInterval    time.Duration
	StatusInterval  time.Duration // periodic status report, 0 disables
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIURL:        getEnv("HL_API_URL", "https://api.hyperliquid.xyz"),
		WSURL:         getEnv("HL_WS_URL", "wss://api.hyperliquid.xyz/ws"),
		WalletAddress: getEnv("HL_WALLET_ADDRESS", ""),
		PrivateKey:    getEnv("HL_PRIVATE_KEY", ""),
		Asset:         getEnv("TRADE_ASSET", "SOL"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/savant.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		AdminAddr:     getEnv("ADMIN_ADDR", ":8070"),
		AdminTOTP:     getEnv("ADMIN_TOTP_SECRET", ""),
		WebhookURL:    getEnv("DISCORD_WEBHOOK_URL", ""),
		LogFile:       getEnv("LOG_FILE", ""),

		BucketWidth:   envDuration("BUCKET_WIDTH", 5*time.Minute),
		HistoryWindow: envDuration("HISTORY_WINDOW", 48*time.Hour),

		StructureWindow: envInt("STRUCTURE_WINDOW", 42),
		SmoothingWindow: envInt("SMOOTHING_WINDOW", 24),
		ATRPeriod:       envInt("ATR_PERIOD", 14),
		TrendPeriod:     envInt("TREND_PERIOD", 200),
		BandOffsetPct:   envFloat("BAND_OFFSET_PCT", 0.0),
		EntryOffsetPct:  envFloat("ENTRY_OFFSET_PCT", 0.005),

		ResetPct: envFloat("RESET_PCT", 0.005),

		StopLossPct:      envFloat("STOP_LOSS_PCT", 0.15),
		TakeProfitPct:    envFloat("TAKE_PROFIT_PCT", 0.30),
		TrailingStrategy: getEnv("TRAILING_STRATEGY", "percent"),
		ActivationPct:    envFloat("TRAILING_ACTIVATION_PCT", 0.50),
		DistancePct:      envFloat("TRAILING_DISTANCE_PCT", 0.25),
		TradeCooldown:    envDuration("TRADE_COOLDOWN", 10*time.Minute),
		TradeNotional:    envFloat("TRADE_NOTIONAL_USD", 625),

		CollectInterval: envDuration("COLLECT_INTERVAL", 60*time.Second),
		SignalInterval:  envDuration("SIGNAL_INTERVAL", 30*time.Second),
		RiskInterval:    envDuration("RISK_INTERVAL", 5*time.Second),
		StatusInterval:  envDuration("STATUS_INTERVAL", 15*time.Minute),
	}
}

// RequireTrading fatals unless the exchange credentials are present.
// Only the service that places orders calls this.
func (c *Config) RequireTrading() {
	if c.WalletAddress == "" {
		log.Fatal("[config] required env var HL_WALLET_ADDRESS not set")
	}
	if c.PrivateKey == "" {
		log.Fatal("[config] required env var HL_PRIVATE_KEY not set")
	}
}

// Indicator returns the indicator engine configuration.
func (c *Config) Indicator() indicator.Config {
	return indicator.Config{
		StructureWindow: c.StructureWindow,
		SmoothingWindow: c.SmoothingWindow,
		ATRPeriod:       c.ATRPeriod,
		TrendPeriod:     c.TrendPeriod,
		BandOffsetPct:   c.BandOffsetPct,
		EntryOffsetPct:  c.EntryOffsetPct,
	}
}

// Risk returns the validated exit-policy configuration. Fatal on an
// invalid policy: live risk must not start half-configured.
func (c *Config) Risk() risk.Config {
	rc := risk.Config{
		StopLossPct:   c.StopLossPct,
		TakeProfitPct: c.TakeProfitPct,
		Trailing:      risk.TrailingStrategy(c.TrailingStrategy),
		ActivationPct: c.ActivationPct,
		DistancePct:   c.DistancePct,
	}
	if err := rc.Validate(); err != nil {
		log.Fatalf("[config] %v", err)
	}
	return rc
}

// Validate checks the pipeline knobs shared by all services.
func (c *Config) Validate() {
	if c.BucketWidth < time.Second {
		log.Fatalf("[config] BUCKET_WIDTH too small: %v", c.BucketWidth)
	}
	if c.StructureWindow <= 0 || c.SmoothingWindow <= 0 || c.ATRPeriod <= 0 || c.TrendPeriod <= 0 {
		log.Fatal("[config] indicator windows must be positive")
	}
	if c.EntryOffsetPct < 0 || c.ResetPct < 0 || c.BandOffsetPct < 0 {
		log.Fatal("[config] offsets must be non-negative")
	}
	if c.Asset == "" {
		log.Fatal("[config] TRADE_ASSET must not be empty")
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[config] invalid %s=%q: %v", key, v, err)
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("[config] invalid %s=%q: %v", key, v, err)
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("[config] invalid %s=%q: %v", key, v, err)
	}
	return d
}
