// Package config reads the service configuration from the environment.
// Which storage variant runs is decided here, at configuration-read time:
// a DATABASE_URL selects the remote-backed store, its absence selects the
// local key-value fallback. There is no mid-operation fallback.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is everything main needs to wire the service.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string
	// DatabaseURL selects the remote-backed variant when non-empty.
	DatabaseURL string
	// RedisAddr enables the advisory health/points cache when non-empty.
	RedisAddr string
	// RedisDB is the Redis database index.
	RedisDB int
	// LocalStorePath is the SQLite file backing the local fallback and the
	// device-local settings.
	LocalStorePath string
	// PollInterval is the observation channel cadence.
	PollInterval time.Duration
	// RequestTimeout bounds each storage round trip.
	RequestTimeout time.Duration
}

// Remote reports whether the remote-backed store is configured.
func (c Config) Remote() bool {
	return c.DatabaseURL != ""
}

// Load reads the configuration from environment variables, applying
// defaults for everything optional.
func Load() Config {
	return Config{
		Addr:           ":" + getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		LocalStorePath: getEnv("LOCAL_STORE_PATH", "buddy.db"),
		PollInterval:   getEnvDuration("POLL_INTERVAL", 3*time.Second),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 20*time.Second),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration is a helper to parse an environment variable as a duration.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
