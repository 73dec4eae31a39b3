// Package config loads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings of the marketsim process.
type Config struct {
	Port string `json:"port"`

	// Storage. DATABASE_URL selects Postgres, otherwise SQLITE_PATH selects
	// SQLite, otherwise everything stays in memory.
	DatabaseURL string        `json:"database_url"`
	RedisURL    string        `json:"redis_url"`
	SQLitePath  string        `json:"sqlite_path"`
	CacheTTL    time.Duration `json:"cache_ttl"`

	CatalogPath string `json:"catalog_path"`

	// Simulation. Seed 0 seeds from the clock.
	Seed              uint64        `json:"seed"`
	Speed             float64       `json:"speed"`
	TickInterval      time.Duration `json:"tick_interval"`
	Autostart         bool          `json:"autostart"`
	SnapshotEveryDays int           `json:"snapshot_every_days"`
	MaxRealTime       time.Duration `json:"max_real_time"`
	Realistic         bool          `json:"realistic"`

	LogLevel string `json:"log_level"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Port:              "8080",
		CacheTTL:          30 * time.Second,
		Speed:             86400,
		TickInterval:      time.Second,
		SnapshotEveryDays: 30,
		MaxRealTime:       100 * time.Millisecond,
		LogLevel:          "info",
	}
}

// Load returns Default overridden by the environment. A .env file in the
// working directory is read first when present.
func Load() *Config {
	cfg := Default()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PORT"); val != "" {
		c.Port = val
	}

	if val := os.Getenv("DATABASE_URL"); val != "" {
		c.DatabaseURL = val
	}
	if val := os.Getenv("REDIS_URL"); val != "" {
		c.RedisURL = val
	}
	if val := os.Getenv("SQLITE_PATH"); val != "" {
		c.SQLitePath = val
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		if v, err := time.ParseDuration(val); err == nil {
			c.CacheTTL = v
		}
	}

	if val := os.Getenv("CATALOG_PATH"); val != "" {
		c.CatalogPath = val
	}

	if val := os.Getenv("SIM_SEED"); val != "" {
		if v, err := strconv.ParseUint(val, 10, 64); err == nil {
			c.Seed = v
		}
	}
	if val := os.Getenv("SIM_SPEED"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil && v > 0 {
			c.Speed = v
		}
	}
	if val := os.Getenv("SIM_TICK_INTERVAL"); val != "" {
		if v, err := time.ParseDuration(val); err == nil && v > 0 {
			c.TickInterval = v
		}
	}
	if val := os.Getenv("SIM_AUTOSTART"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Autostart = enabled
		}
	}
	if val := os.Getenv("SIM_REALISTIC"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Realistic = enabled
		}
	}
	if val := os.Getenv("SNAPSHOT_EVERY_DAYS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.SnapshotEveryDays = v
		}
	}
	if val := os.Getenv("MAX_REAL_TIME_MS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxRealTime = time.Duration(v) * time.Millisecond
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
