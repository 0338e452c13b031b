package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Run modes.
const (
	ModeFetch = "fetch" // pull historical series, then exit
	ModeLive  = "live"  // stream quotes for the watchlist monitors
)

// Config holds environment-driven settings.
type Config struct {
	Port string

	// Broker (TWS / IB Gateway, reached through the websocket bridge)
	TWSHost            string
	TWSPort            int
	HistoricalClientID int
	LiveClientID       int
	UseMockFeed        bool
	MockTickInterval   time.Duration

	Mode          string
	WatchlistPath string

	// Waiting
	PollInterval time.Duration
	WaitCeiling  time.Duration
	ReadyCeiling time.Duration
	DrainGrace   time.Duration

	// Historical requests per ten minutes; 0 disables pacing.
	HistoricalPacing int

	// Default lookback in years per kind when nothing is stored yet.
	DefaultWindowIV    int
	DefaultWindowHV    int
	DefaultWindowStock int

	// Database
	DBPath          string
	BatchSize       int
	BatchFlushEvery time.Duration

	// API
	EnableAPI bool
	JWTSecret string

	// Localization
	Language string // "en" or "zh"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		TWSHost:            getEnv("TWS_HOST", "127.0.0.1"),
		TWSPort:            getEnvInt("TWS_PORT", 7496),
		HistoricalClientID: getEnvInt("HISTORICAL_CLIENT_ID", 0),
		LiveClientID:       getEnvInt("LIVE_CLIENT_ID", 2),
		UseMockFeed:        getEnv("USE_MOCK_FEED", "false") == "true",
		MockTickInterval:   getEnvDuration("MOCK_TICK_INTERVAL", time.Second),
		Mode:               strings.ToLower(getEnv("MODE", ModeFetch)),
		WatchlistPath:      getEnv("WATCHLIST_PATH", "./watchlist.yaml"),
		PollInterval:       getEnvDuration("POLL_INTERVAL", time.Second),
		WaitCeiling:        getEnvDuration("WAIT_CEILING", 120*time.Second),
		ReadyCeiling:       getEnvDuration("READY_CEILING", 120*time.Second),
		DrainGrace:         getEnvDuration("DRAIN_GRACE", 5*time.Second),
		HistoricalPacing:   getEnvInt("HISTORICAL_PACING", 60),
		DefaultWindowIV:    getEnvInt("DEFAULT_WINDOW_IV", 1),
		DefaultWindowHV:    getEnvInt("DEFAULT_WINDOW_HV", 1),
		DefaultWindowStock: getEnvInt("DEFAULT_WINDOW_STOCK", 2),
		DBPath:             getEnv("DB_PATH", "./data/volcore.db"),
		BatchSize:          getEnvInt("BATCH_SIZE", 250),
		BatchFlushEvery:    getEnvDuration("BATCH_FLUSH_INTERVAL", 500*time.Millisecond),
		EnableAPI:          getEnv("ENABLE_API", "true") == "true",
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
		Language:           getEnv("LANGUAGE", "en"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the gateways cannot run with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeFetch, ModeLive:
	default:
		return fmt.Errorf("MODE must be %q or %q, got %q", ModeFetch, ModeLive, c.Mode)
	}
	if c.TWSPort <= 0 || c.TWSPort > 65535 {
		return fmt.Errorf("TWS_PORT out of range: %d", c.TWSPort)
	}
	if c.HistoricalClientID == c.LiveClientID {
		return fmt.Errorf("HISTORICAL_CLIENT_ID and LIVE_CLIENT_ID must differ (both %d)", c.LiveClientID)
	}
	if c.PollInterval <= 0 || c.WaitCeiling < c.PollInterval {
		return fmt.Errorf("POLL_INTERVAL (%s) must be positive and not exceed WAIT_CEILING (%s)", c.PollInterval, c.WaitCeiling)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SplitAndTrim parses a comma separated list, dropping blanks.
func SplitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("1500ms") or bare seconds ("120").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
