package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	DB DBConfig

	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	// SessionIdle is how long an unused session stays in memory before it
	// is flushed and dropped.
	SessionIdle       time.Duration
	SessionSweepEvery time.Duration

	// RabbitMQURL is optional; lifecycle events stay in-process without it.
	RabbitMQURL string

	CatalogURL     string
	CatalogTimeout time.Duration

	// WebhookSecret signs processor capture callbacks; the callback route
	// is off without it.
	WebhookSecret string

	Currency          string
	PersistDebounce   time.Duration
	CaptureTimeout    time.Duration
	ReconcileInterval time.Duration
	StuckAfter        time.Duration
	ShutdownTimeout   time.Duration

	CORSAllowOrigins []string
}

type DBConfig struct {
	Database string
	Password string
	Username string
	Port     string
	Host     string
	Schema   string
}

// DSN builds a pgx connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Schema,
	)
}

func Load() Config {
	return Config{
		Port:     getenv("PORT", "8080"),
		AppEnv:   getenv("APP_ENV", "local"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DB: DBConfig{
			Database: getenv("BLUEPRINT_DB_DATABASE", "storefront"),
			Password: getenv("BLUEPRINT_DB_PASSWORD", "password"),
			Username: getenv("BLUEPRINT_DB_USERNAME", "postgres"),
			Port:     getenv("BLUEPRINT_DB_PORT", "5432"),
			Host:     getenv("BLUEPRINT_DB_HOST", "localhost"),
			Schema:   getenv("BLUEPRINT_DB_SCHEMA", "public"),
		},

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		SessionTTL:    parseDuration(getenv("SESSION_TIER_TTL", "30m"), 30*time.Minute),

		SessionIdle:       parseDuration(getenv("SESSION_IDLE_TIMEOUT", "30m"), 30*time.Minute),
		SessionSweepEvery: parseDuration(getenv("SESSION_SWEEP_INTERVAL", "1m"), time.Minute),

		RabbitMQURL: os.Getenv("RABBITMQ_URL"),

		CatalogURL:     getenv("CATALOG_URL", "http://localhost:3001"),
		CatalogTimeout: parseDuration(getenv("CATALOG_TIMEOUT", "5s"), 5*time.Second),

		WebhookSecret: os.Getenv("CAPTURE_WEBHOOK_SECRET"),

		Currency:          getenv("CURRENCY", "USD"),
		PersistDebounce:   parseDuration(getenv("PERSIST_DEBOUNCE", "250ms"), 250*time.Millisecond),
		CaptureTimeout:    parseDuration(getenv("CAPTURE_TIMEOUT", "5m"), 5*time.Minute),
		ReconcileInterval: parseDuration(getenv("RECONCILE_INTERVAL", "10s"), 10*time.Second),
		StuckAfter:        parseDuration(getenv("STUCK_AFTER", "30s"), 30*time.Second),
		ShutdownTimeout:   parseDuration(getenv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),

		CORSAllowOrigins: splitCSV(getenv("CORS_ALLOW_ORIGINS", "*")),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
