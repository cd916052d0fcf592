package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"breakout-systemv1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Venue credentials
	VenueAPIKey     string
	VenueClientID   string
	VenuePassword   string
	VenueTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	JournalPath   string
	MetricsAddr   string

	// Instruments: primary leg and inverse hedge leg
	Venue         string
	PrimarySymbol string
	HedgeSymbol   string

	// Resampled timeframes (comma-separated seconds, e.g. "3600,86400")
	EnabledTFs string
	// Timeframe the strategy decides on (seconds)
	DecisionTF int

	// Strategy parameters
	SignalSource  string  // emaregime | momentum | renko
	AllocFraction float64 // fraction of balance per entry, e.g. 0.95
}

// Load reads configuration from environment variables with sensible defaults.
// Venue credentials are required; everything else has a default.
func Load() *Config {
	return &Config{
		VenueAPIKey:     mustEnv("VENUE_API_KEY"),
		VenueClientID:   mustEnv("VENUE_CLIENT_ID"),
		VenuePassword:   mustEnv("VENUE_PASSWORD"),
		VenueTOTPSecret: mustEnv("VENUE_TOTP_SECRET"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		Venue:         getEnv("VENUE", "NYSE"),
		PrimarySymbol: getEnv("PRIMARY_SYMBOL", "VOO"),
		HedgeSymbol:   getEnv("HEDGE_SYMBOL", "SH"),

		EnabledTFs: getEnv("ENABLED_TFS", "3600,86400"),
		DecisionTF: getEnvInt("DECISION_TF", 3600),

		SignalSource:  getEnv("SIGNAL_SOURCE", "emaregime"),
		AllocFraction: getEnvFloat("ALLOC_FRACTION", 0.95),
	}
}

// LoadStaging reads configuration without requiring venue credentials.
// Used when ingesting from the local tick simulator instead of the venue.
func LoadStaging() *Config {
	cfg := &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		Venue:         getEnv("VENUE", "NYSE"),
		PrimarySymbol: getEnv("PRIMARY_SYMBOL", "VOO"),
		HedgeSymbol:   getEnv("HEDGE_SYMBOL", "SH"),

		EnabledTFs: getEnv("ENABLED_TFS", "3600,86400"),
		DecisionTF: getEnvInt("DECISION_TF", 3600),

		SignalSource:  getEnv("SIGNAL_SOURCE", "emaregime"),
		AllocFraction: getEnvFloat("ALLOC_FRACTION", 0.95),
	}
	return cfg
}

// Instruments returns the configured primary + hedge instruments.
func (c *Config) Instruments() []model.Instrument {
	return []model.Instrument{
		{Venue: c.Venue, Symbol: c.PrimarySymbol},
		{Venue: c.Venue, Symbol: c.HedgeSymbol},
	}
}

// ParseTFs parses the EnabledTFs string into a slice of timeframes in seconds.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}
