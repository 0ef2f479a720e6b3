package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment. Optional
// backends (postgres, redis, kafka) fall back to in-memory implementations
// when their URLs are absent, which keeps local development broker-free.
type Config struct {
	Addr string
	// DatabaseURL is a postgres DSN; empty selects the in-memory stores.
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	// AssertionSigningKey verifies the HS256 identity assertions presented
	// on the federated callback. Shared with the provider gateway.
	AssertionSigningKey string
	// AdminSigningKey verifies admin bearer tokens.
	AdminSigningKey string
	LoginStateTTL   time.Duration
	// DocumentRoot is where uploaded application artifacts land.
	DocumentRoot string
}

// RedisConfig configures the login-state store connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit publisher.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:        envOr("MERCATO_ADDR", ":8080"),
		DatabaseURL: os.Getenv("MERCATO_DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("MERCATO_REDIS_URL"),
			PoolSize:     envInt("MERCATO_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("MERCATO_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			TopicPrefix: envOr("MERCATO_KAFKA_TOPIC_PREFIX", "mercato.audit"),
		},
		AssertionSigningKey: envOr("MERCATO_ASSERTION_KEY", "dev-assertion-key-change-in-production"),
		AdminSigningKey:     envOr("MERCATO_ADMIN_KEY", "dev-admin-key-change-in-production"),
		LoginStateTTL:       time.Duration(envInt("MERCATO_LOGIN_STATE_TTL_SECONDS", 300)) * time.Second,
		DocumentRoot:        envOr("MERCATO_DOCUMENT_ROOT", "data/documents"),
	}
	if brokers := os.Getenv("MERCATO_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
