package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL"`
	Port        int    `env:"PORT" envDefault:"8080"`
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	KafkaBrokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	TopicOrderCreated  string   `env:"KAFKA_TOPIC_ORDER_CREATED" envDefault:"order-created"`
	TopicOrderApproved string   `env:"KAFKA_TOPIC_ORDER_APPROVED" envDefault:"order-approved"`
	TopicDeadLetter    string   `env:"KAFKA_TOPIC_DLQ" envDefault:"delivery-terms-dlq"`
	ConsumerGroup      string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"delivery-terms"`

	ConsumerConcurrency  int           `env:"CONSUMER_CONCURRENCY" envDefault:"4"`
	ConsumerRetries      int           `env:"CONSUMER_RETRIES" envDefault:"3"`
	ConsumerRetryBackoff time.Duration `env:"CONSUMER_RETRY_BACKOFF" envDefault:"1s"`

	BreakerThreshold uint32        `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
	PublishRetries   int           `env:"PUBLISH_RETRIES" envDefault:"2"`
	PublishBackoff   time.Duration `env:"PUBLISH_BACKOFF" envDefault:"200ms"`
	PublishTimeout   time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`

	HealthProbeTimeout  time.Duration `env:"HEALTH_PROBE_TIMEOUT" envDefault:"3s"`
	HealthProbeInterval time.Duration `env:"HEALTH_PROBE_INTERVAL" envDefault:"15s"`

	DeliveryCacheTTL time.Duration `env:"DELIVERY_CACHE_TTL" envDefault:"24h"`

	DBMaxConns int32 `env:"DB_MAX_CONNS" envDefault:"10"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.ConsumerConcurrency < 1 {
		return nil, fmt.Errorf("config.Load: CONSUMER_CONCURRENCY must be at least 1, got %d", cfg.ConsumerConcurrency)
	}
	if cfg.BreakerThreshold < 1 {
		return nil, fmt.Errorf("config.Load: BREAKER_THRESHOLD must be at least 1")
	}
	return &cfg, nil
}

// KafkaEnabled reports whether a broker endpoint was configured. When false
// the publishers fall back to no-ops and the worker has nothing to consume.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
