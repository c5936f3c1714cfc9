// Package config collects the scheduling service's environment into one struct.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/elizahq/eliza/libs/config"
)

type Config struct {
	ServiceName string
	Port        string
	GRPCPort    string
	LogLevel    string

	DatabaseURL    string
	UseMemoryStore bool
	DBMaxConns     int

	RedisAddr         string
	PublicRateLimit   int
	PublicRateWindow  time.Duration
	RateLimitFailOpen bool
	TrustedProxyHops  int
	CORSOrigins       []string

	KafkaBrokers string
	KafkaGroupID string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxBackoff      time.Duration

	EvolutionAPIURL   string
	EvolutionAPIKey   string
	EvolutionInstance string

	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Load reads the environment. DATABASE_URL is required unless USE_MEMORY_STORE is set.
func Load(defaultService, defaultPort string) (Config, error) {
	cfg := Config{
		ServiceName:        config.String("SERVICE_NAME", defaultService),
		LogLevel:           config.String("LOG_LEVEL", "info"),
		DatabaseURL:        config.String("DATABASE_URL", ""),
		UseMemoryStore:     config.Bool("USE_MEMORY_STORE", false),
		DBMaxConns:         config.Int("DB_MAX_CONNS", 10),
		RedisAddr:          config.String("REDIS_ADDR", ""),
		PublicRateLimit:    config.Int("PUBLIC_RATE_LIMIT", 60),
		PublicRateWindow:   config.Duration("PUBLIC_RATE_WINDOW", time.Minute),
		RateLimitFailOpen:  config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		TrustedProxyHops:   config.Int("TRUSTED_PROXY_HOPS", 1),
		CORSOrigins:        splitList(config.String("CORS_ALLOWED_ORIGINS", "*")),
		KafkaBrokers:       config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:       config.String("KAFKA_GROUP_ID", "notification-worker"),
		OutboxPollInterval: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    config.Int("OUTBOX_BATCH_SIZE", 50),
		OutboxMaxAttempts:  config.Int("OUTBOX_MAX_ATTEMPTS", 10),
		OutboxBackoff:      config.Duration("OUTBOX_BACKOFF", 30*time.Second),
		EvolutionAPIURL:    config.String("EVOLUTION_API_URL", ""),
		EvolutionAPIKey:    config.String("EVOLUTION_API_KEY", ""),
		EvolutionInstance:  config.String("EVOLUTION_INSTANCE", ""),
		RequestTimeout:     config.Duration("REQUEST_TIMEOUT", 10*time.Second),
		MaxBodyBytes:       int64(config.Int("MAX_BODY_BYTES", 1<<20)),
	}

	var err error
	if cfg.Port, err = config.Port("PORT", defaultPort); err != nil {
		return Config{}, err
	}
	if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9090"); err != nil {
		return Config{}, err
	}
	if !cfg.UseMemoryStore && cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required unless USE_MEMORY_STORE=true")
	}
	if cfg.OutboxBatchSize <= 0 {
		return Config{}, errors.New("OUTBOX_BATCH_SIZE must be positive")
	}
	if cfg.PublicRateLimit < 0 {
		return Config{}, errors.New("PUBLIC_RATE_LIMIT must not be negative")
	}
	return cfg, nil
}

// NotificationsEnabled reports whether an Evolution gateway is configured.
func (c Config) NotificationsEnabled() bool {
	return c.EvolutionAPIURL != "" && c.EvolutionInstance != ""
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
