package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingJWTSecret = errors.New("config: RITMO_JWT_SECRET is required")

type Config struct {
	Addr      string
	DBPath    string
	JWTSecret string

	// Sweep schedule: one run at SweepHour local time, plus redundancy
	// re-runs every SweepRedundancy.
	SweepHour       int
	SweepRedundancy time.Duration
	Timezone        string

	// Daily energy budget a user can plan against.
	EnergyBudget int

	// Optional integrations; empty means disabled.
	RedisAddr  string
	RedisQueue string

	BackupBucket   string
	BackupPrefix   string
	BackupInterval time.Duration
}

// Load reads configuration from the environment, with a .env file as a
// convenience for local runs.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            getEnv("RITMO_ADDR", ":8080"),
		DBPath:          getEnv("RITMO_DB_PATH", "ritmo.db"),
		JWTSecret:       os.Getenv("RITMO_JWT_SECRET"),
		Timezone:        getEnv("RITMO_TIMEZONE", "UTC"),
		RedisAddr:       os.Getenv("RITMO_REDIS_ADDR"),
		RedisQueue:      getEnv("RITMO_REDIS_QUEUE", "ritmo:streak-events"),
		BackupBucket:    os.Getenv("RITMO_BACKUP_BUCKET"),
		BackupPrefix:    getEnv("RITMO_BACKUP_PREFIX", "backups/"),
	}

	var err error
	if cfg.SweepHour, err = getEnvInt("RITMO_SWEEP_HOUR", 0); err != nil {
		return Config{}, err
	}
	if cfg.SweepHour < 0 || cfg.SweepHour > 23 {
		return Config{}, fmt.Errorf("config: RITMO_SWEEP_HOUR must be 0-23, got %d", cfg.SweepHour)
	}
	if cfg.SweepRedundancy, err = getEnvDuration("RITMO_SWEEP_REDUNDANCY", 6*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.EnergyBudget, err = getEnvInt("RITMO_ENERGY_BUDGET", 12); err != nil {
		return Config{}, err
	}
	if cfg.EnergyBudget <= 0 {
		return Config{}, fmt.Errorf("config: RITMO_ENERGY_BUDGET must be positive, got %d", cfg.EnergyBudget)
	}
	if cfg.BackupInterval, err = getEnvDuration("RITMO_BACKUP_INTERVAL", 24*time.Hour); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, ErrMissingJWTSecret
	}
	return cfg, nil
}

// Location resolves the configured timezone for sweep scheduling.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid RITMO_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, raw)
	}
	return value, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration, got %q", key, raw)
	}
	return value, nil
}
