// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the process needs at startup.
type Config struct {
	Addr string
	DSN  string

	// AuthSecret signs access tokens; RecoveryKey (32 bytes, base64 in
	// the environment) seals recoverable passwords. Both are loaded once
	// and injected, never read ambiently.
	AuthSecret  []byte
	RecoveryKey []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	MigrationsDir string
	SeedsDir      string

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// Load reads configuration. A missing .env is not an error; missing
// required values are.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:               getenv("CREWDOCK_ADDR", ":8080"),
		DSN:                os.Getenv("CREWDOCK_PG_DSN"),
		AccessTTL:          getDuration("CREWDOCK_ACCESS_TTL", 4*time.Hour),
		RefreshTTL:         getDuration("CREWDOCK_REFRESH_TTL", 14*24*time.Hour),
		ResetTTL:           getDuration("CREWDOCK_RESET_TTL", 15*time.Minute),
		MigrationsDir:      getenv("CREWDOCK_MIGRATIONS_DIR", "migrations"),
		SeedsDir:           getenv("CREWDOCK_SEEDS_DIR", "migrations/seeds"),
		RateLimitPerSecond: getInt("CREWDOCK_RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getInt("CREWDOCK_RATE_LIMIT_BURST", 40),
		MaxBodyBytes:       int64(getInt("CREWDOCK_MAX_BODY_BYTES", 1<<20)),
	}

	secret := strings.TrimSpace(os.Getenv("CREWDOCK_AUTH_SECRET"))
	if secret == "" {
		return Config{}, fmt.Errorf("CREWDOCK_AUTH_SECRET is required")
	}
	cfg.AuthSecret = []byte(secret)

	if raw := strings.TrimSpace(os.Getenv("CREWDOCK_RECOVERY_KEY")); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("CREWDOCK_RECOVERY_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return Config{}, fmt.Errorf("CREWDOCK_RECOVERY_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.RecoveryKey = key
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
