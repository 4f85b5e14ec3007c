package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"signal-systemv1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Persistence. Backend is one of "sqlite", "postgres", "memory".
	StoreBackend string
	SQLitePath   string
	PostgresDSN  string

	// Redis publishing (optional; empty addr disables).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Market data. Empty WSURL runs without a live source.
	WSURL string

	// Pairs to track, comma-separated "SYMBOL:TF" (e.g. "RELIANCE:1h,INFY:15m").
	Pairs string

	// Tick loop.
	TickInterval time.Duration
	Workers      int

	// Levels.
	LevelLookbackDays int

	// Observability and admin.
	MetricsAddr string
	AdminAddr   string
	LogLevel    string

	// Only tick while the market is open.
	MarketHoursOnly bool

	// Notifications (optional).
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		StoreBackend: getEnv("STORE_BACKEND", "sqlite"),
		SQLitePath:   getEnv("SQLITE_PATH", "data/signals.db"),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		WSURL: getEnv("WS_URL", ""),

		Pairs: getEnv("PAIRS", "RELIANCE:1h"),

		TickInterval: getEnvDuration("TICK_INTERVAL", time.Minute),
		Workers:      getEnvInt("WORKERS", 4),

		LevelLookbackDays: getEnvInt("LEVEL_LOOKBACK_DAYS", 30),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		AdminAddr:   getEnv("ADMIN_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		MarketHoursOnly: getEnvBool("MARKET_HOURS_ONLY", false),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// ParsePairs parses the Pairs string into tracked pairs. Malformed items
// are skipped with a warning.
func (c *Config) ParsePairs() []model.Pair {
	parts := strings.Split(c.Pairs, ",")
	pairs := make([]model.Pair, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		sym, tf, ok := strings.Cut(p, ":")
		if !ok || sym == "" || tf == "" {
			log.Printf("[config] skipping invalid pair: %q", p)
			continue
		}
		pairs = append(pairs, model.Pair{Symbol: sym, Timeframe: model.Timeframe(tf)})
	}
	return pairs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
