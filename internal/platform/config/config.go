// Package config loads runtime configuration from the environment so main
// stays lean. Every knob has a development default; production overrides via
// RELAY_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "relay/pkg/platform/strings"
)

// RedisConfig tunes the go-redis client backing the result cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Config is the full runtime configuration.
type Config struct {
	// Addr the HTTP API listens on.
	Addr string
	// JWTSigningKey verifies bearer tokens on the API.
	JWTSigningKey string

	// CacheBackend selects the result cache: "memory" or "redis".
	CacheBackend string
	Redis        RedisConfig
	// DefaultCacheTTL applies to cacheable queries without an override.
	DefaultCacheTTL time.Duration
	// DispatchTimeout bounds handler execution.
	DispatchTimeout time.Duration

	// PostgresURL enables the Postgres account store when set; empty keeps the
	// in-memory store.
	PostgresURL string

	// KafkaBrokers enables the Kafka event publisher when non-empty.
	KafkaBrokers []string
	// EventTopicPartitions used when auto-creating topics.
	EventTopicPartitions int32

	// LogJSON switches the logger to JSON output.
	LogJSON bool
	// LogLevel is debug, info, warn or error.
	LogLevel string
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Addr:                 envString("RELAY_ADDR", ":8080"),
		JWTSigningKey:        envString("RELAY_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		CacheBackend:         envString("RELAY_CACHE_BACKEND", "memory"),
		DefaultCacheTTL:      envDuration("RELAY_CACHE_TTL", 5*time.Minute),
		DispatchTimeout:      envDuration("RELAY_DISPATCH_TIMEOUT", 30*time.Second),
		PostgresURL:          os.Getenv("RELAY_POSTGRES_URL"),
		KafkaBrokers:         envList("RELAY_KAFKA_BROKERS"),
		EventTopicPartitions: int32(envInt("RELAY_EVENT_PARTITIONS", 3)),
		LogJSON:              os.Getenv("RELAY_LOG_JSON") == "true",
		LogLevel:             envString("RELAY_LOG_LEVEL", "info"),
		Redis: RedisConfig{
			URL:          os.Getenv("RELAY_REDIS_URL"),
			PoolSize:     envInt("RELAY_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("RELAY_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("RELAY_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("RELAY_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("RELAY_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	out := platformstrings.DedupeAndTrim(strings.Split(v, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}
