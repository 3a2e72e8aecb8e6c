package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tradinglab/pkg/errors"
)

type Config struct {
	App           AppConfig
	Server        ServerConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Backend       BackendConfig
	Onboarding    OnboardingConfig
	Sequencer     SequencerConfig
	Workers       WorkerConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"tradinglab"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type ServerConfig struct {
	Port    int    `envconfig:"HTTP_PORT" default:"8080"`
	Version string `envconfig:"APP_VERSION" default:"dev"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" required:"true"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"tradinglab"`
}

// BackendConfig points at the trading backend that owns broker connections,
// the manual-mode index, and strategy activation submission.
type BackendConfig struct {
	BaseURL   string        `envconfig:"BACKEND_BASE_URL" required:"true"`
	APIToken  string        `envconfig:"BACKEND_API_TOKEN"`
	Timeout   time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`
	RateLimit float64       `envconfig:"BACKEND_RATE_LIMIT" default:"10"`
	RateBurst int           `envconfig:"BACKEND_RATE_BURST" default:"20"`
}

type OnboardingConfig struct {
	// StateTTL bounds how long a dormant onboarding session survives in Redis
	StateTTL time.Duration `envconfig:"ONBOARDING_STATE_TTL" default:"720h"`
}

type SequencerConfig struct {
	TickInterval time.Duration `envconfig:"SEQUENCER_TICK_INTERVAL" default:"50ms"`
	StageHold    time.Duration `envconfig:"SEQUENCER_STAGE_HOLD" default:"1s"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	AccountSyncInterval time.Duration `envconfig:"WORKER_ACCOUNT_SYNC_INTERVAL" default:"1m"`
	AccountSyncEnabled  bool          `envconfig:"WORKER_ACCOUNT_SYNC_ENABLED" default:"true"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
