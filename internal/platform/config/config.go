package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures top-level configuration so main stays lean. Everything comes
// from the environment; sensible development defaults apply when unset.
type Server struct {
	Addr          string
	JWTSigningKey string

	// DemoMode runs the portal against in-memory fixtures with no external
	// backends. Selected once here, never branched per call site.
	DemoMode bool

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// Issue creation rate limit: N creations per rolling window per actor.
	IssueCreateLimit  int
	IssueCreateWindow time.Duration

	ShutdownTimeout time.Duration
}

// RedisConfig holds connection tuning for the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the change-feed outbox publisher. Empty brokers
// disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:              envDefault("CIVICDESK_ADDR", ":8080"),
		JWTSigningKey:     envDefault("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		DemoMode:          os.Getenv("CIVICDESK_DEMO_MODE") == "true",
		PostgresURL:       os.Getenv("CIVICDESK_POSTGRES_URL"),
		IssueCreateLimit:  envInt("ISSUE_CREATE_LIMIT", 5),
		IssueCreateWindow: envDuration("ISSUE_CREATE_WINDOW", time.Hour),
		ShutdownTimeout:   envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("CIVICDESK_REDIS_URL"),
		PoolSize:     envInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}

	if brokers := os.Getenv("CIVICDESK_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   envDefault("CIVICDESK_KAFKA_TOPIC", "civicdesk.feed"),
		}
	}

	return cfg
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
