package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the trading desk.
// Only this package reads the process environment.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Core
	Desk DeskConfig
	Feed FeedConfig

	// Optional infrastructure
	Database DatabaseConfig
	Redis    RedisConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DeskConfig holds order manager and account settings
type DeskConfig struct {
	AccountID      string
	Owner          string
	InitialCash    float64
	DefaultSymbols []string

	// Simulated exchange timings
	AcceptDelay time.Duration
	FillDelay   time.Duration
	CancelDelay time.Duration

	// Cron expression (with seconds) that expires active DAY orders
	MarketCloseCron string
}

// FeedConfig holds market data feed settings
type FeedConfig struct {
	Mode              string // simulation, live
	WebSocketURL      string
	RestURL           string
	TickInterval      time.Duration
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	SnapshotRate      float64 // REST snapshot requests per second
	SymbolsFile       string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	QuoteTTL time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the audit journal.
// The journal is disabled when URL is empty.
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a journal database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// Live reports whether the feed should try the live transport first
func (f FeedConfig) Live() bool {
	return f.Mode == "live"
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Desk: DeskConfig{
			AccountID:       getEnv("DESK_ACCOUNT_ID", "DEMO-001"),
			Owner:           getEnv("DESK_OWNER", "demo"),
			InitialCash:     getEnvAsFloat("DESK_INITIAL_CASH", 100000),
			DefaultSymbols:  getEnvAsList("DESK_DEFAULT_SYMBOLS", DefaultSymbols),
			AcceptDelay:     getEnvAsDuration("DESK_ACCEPT_DELAY", "50ms"),
			FillDelay:       getEnvAsDuration("DESK_FILL_DELAY", "200ms"),
			CancelDelay:     getEnvAsDuration("DESK_CANCEL_DELAY", "100ms"),
			MarketCloseCron: getEnv("DESK_MARKET_CLOSE_CRON", "0 0 16 * * 1-5"),
		},

		Feed: FeedConfig{
			Mode:              getEnv("FEED_MODE", "simulation"),
			WebSocketURL:      getEnv("FEED_WS_URL", "wss://stream.example.com/market"),
			RestURL:           getEnv("FEED_REST_URL", "https://api.example.com/v1"),
			TickInterval:      getEnvAsDuration("FEED_TICK_INTERVAL", "1s"),
			HeartbeatInterval: getEnvAsDuration("FEED_HEARTBEAT_INTERVAL", "30s"),
			ReconnectDelay:    getEnvAsDuration("FEED_RECONNECT_DELAY", "5s"),
			SnapshotRate:      getEnvAsFloat("FEED_SNAPSHOT_RATE", 5),
			SymbolsFile:       getEnv("FEED_SYMBOLS_FILE", ""),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			QuoteTTL: getEnvAsDuration("REDIS_QUOTE_TTL", "1m"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Feed.Mode != "simulation" && c.Feed.Mode != "live" {
		return fmt.Errorf("FEED_MODE must be one of: simulation, live")
	}

	if c.Feed.TickInterval <= 0 || c.Feed.HeartbeatInterval <= 0 || c.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed intervals must be positive")
	}

	if c.Desk.AcceptDelay < 0 || c.Desk.FillDelay < 0 || c.Desk.CancelDelay < 0 {
		return fmt.Errorf("exchange delays must not be negative")
	}

	if c.Desk.InitialCash < 0 {
		return fmt.Errorf("DESK_INITIAL_CASH must not be negative")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if s := strings.ToUpper(strings.TrimSpace(part)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
