// Package config loads greetday's configuration from environment
// variables (optionally via a .env file for local runs), the same pattern
// hookdeck uses: struct tags drive both parsing and the self-documenting
// surface, so every tunable's default and meaning lives in exactly one
// place in the source.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config is the complete runtime configuration for every greetday process
// (scheduler, worker, or the combined `serve` command).
type Config struct {
	PostgresURL string `env:"POSTGRES_URL,required" desc:"Postgres connection string for the message log store"`
	RedisURL    string `env:"REDIS_URL,required" desc:"Redis connection string for locks and the idempotency guard"`
	RabbitMQURL string `env:"RABBITMQ_URL,required" desc:"AMQP connection string for the delivery queue"`

	DeliveryEndpoint string `env:"DELIVERY_ENDPOINT,required" desc:"Notification endpoint the delivery client posts composed greetings to"`

	SendHour   int `env:"SEND_HOUR" envDefault:"9" desc:"Not read by any component; greetings are sent at the fixed tz.SendHour (09 local)"`
	SendMinute int `env:"SEND_MINUTE" envDefault:"0" desc:"Not read by any component; greetings are sent at the fixed tz.SendMinute (:00 local)"`

	EnqueueLookahead time.Duration `env:"ENQUEUE_LOOKAHEAD" envDefault:"60s" desc:"How far ahead of a scheduled send time the minute enqueuer publishes"`
	EnqueueInterval  time.Duration `env:"ENQUEUE_INTERVAL" envDefault:"1m" desc:"Minute enqueuer tick interval"`

	RecoveryInterval time.Duration `env:"RECOVERY_INTERVAL" envDefault:"15m" desc:"Recovery loop tick interval"`
	RecoveryGrace    time.Duration `env:"RECOVERY_GRACE" envDefault:"5m" desc:"Grace period past its scheduled send time before a SCHEDULED, QUEUED or SENDING log is considered stuck"`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"5" desc:"Delivery attempts before a message is marked FAILED"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"16" desc:"Max in-flight deliveries per message-type consumer"`

	IdempotencyGuardTimeout       time.Duration `env:"IDEMPOTENCY_GUARD_TIMEOUT" envDefault:"30s" desc:"How long an in-flight delivery holds its idempotency lock"`
	IdempotencyGuardSuccessfulTTL time.Duration `env:"IDEMPOTENCY_GUARD_SUCCESSFUL_TTL" envDefault:"24h" desc:"How long a successful delivery is remembered to absorb redeliveries"`

	CircuitBreakerWindow       time.Duration `env:"CIRCUIT_BREAKER_WINDOW" envDefault:"10s" desc:"Rolling window over which failure ratio is evaluated"`
	CircuitBreakerMinRequests  uint32        `env:"CIRCUIT_BREAKER_MIN_REQUESTS" envDefault:"10" desc:"Minimum requests in the window before the breaker can trip"`
	CircuitBreakerFailureRatio float64       `env:"CIRCUIT_BREAKER_FAILURE_RATIO" envDefault:"0.5" desc:"Failure ratio in the window that trips the breaker"`
	CircuitBreakerCooldown     time.Duration `env:"CIRCUIT_BREAKER_COOLDOWN" envDefault:"30s" desc:"How long the breaker stays open before allowing a trial request"`

	LogDevelopment bool `env:"LOG_DEVELOPMENT" envDefault:"false" desc:"Use a human-readable console log encoder instead of JSON"`
}

// Load reads .env (if present, ignored if not) and then the process
// environment into a Config, applying defaults for unset optional fields.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
