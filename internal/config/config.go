package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Classifier ClassifierConfig
	Notifier   NotifierConfig
	Worker     WorkerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	QueueKey string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines admin authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	AdminEmail            string
	AdminPasswordHash     string
}

// ClassifierConfig points at the Ollama-compatible classification service.
type ClassifierConfig struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// NotifierConfig holds the Teams webhook endpoint.
type NotifierConfig struct {
	WebhookURL     string
	TimeoutSeconds int
	AdminBaseURL   string
}

// WorkerConfig tunes the processing pipeline.
type WorkerConfig struct {
	Concurrency            int
	MaxAttempts            int
	RetryBackoffMillis     int
	PollTimeoutSeconds     int
	ReclaimIntervalSeconds int
	ReclaimAfterSeconds    int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-intake-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			QueueKey: getEnv("REDIS_QUEUE_KEY", "support:processing"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			AdminEmail:            getEnv("ADMIN_EMAIL", "admin@example.com"),
			AdminPasswordHash:     os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		Classifier: ClassifierConfig{
			BaseURL:        getEnv("OLLAMA_URL", "http://127.0.0.1:11434"),
			Model:          getEnv("OLLAMA_MODEL", "llama3.1:8b"),
			TimeoutSeconds: getEnvAsInt("CLASSIFIER_TIMEOUT_SECONDS", 60),
		},
		Notifier: NotifierConfig{
			WebhookURL:     os.Getenv("TEAMS_WEBHOOK_URL"),
			TimeoutSeconds: getEnvAsInt("TEAMS_TIMEOUT_SECONDS", 30),
			AdminBaseURL:   getEnv("ADMIN_BASE_URL", "http://localhost:8080"),
		},
		Worker: WorkerConfig{
			Concurrency:            getEnvAsInt("WORKER_CONCURRENCY", 4),
			MaxAttempts:            getEnvAsInt("WORKER_MAX_ATTEMPTS", 3),
			RetryBackoffMillis:     getEnvAsInt("WORKER_RETRY_BACKOFF_MILLIS", 2000),
			PollTimeoutSeconds:     getEnvAsInt("WORKER_POLL_TIMEOUT_SECONDS", 5),
			ReclaimIntervalSeconds: getEnvAsInt("WORKER_RECLAIM_INTERVAL_SECONDS", 60),
			ReclaimAfterSeconds:    getEnvAsInt("WORKER_RECLAIM_AFTER_SECONDS", 300),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the classification call deadline.
func (c ClassifierConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the webhook delivery deadline.
func (n NotifierConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial delay between classification attempts.
func (w WorkerConfig) RetryBackoff() time.Duration {
	if w.RetryBackoffMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(w.RetryBackoffMillis) * time.Millisecond
}

// ReclaimInterval returns how often the stale-processing sweep runs.
func (w WorkerConfig) ReclaimInterval() time.Duration {
	if w.ReclaimIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(w.ReclaimIntervalSeconds) * time.Second
}

// ReclaimAfter returns how long a request may sit in processing before the
// sweep returns it to pending.
func (w WorkerConfig) ReclaimAfter() time.Duration {
	if w.ReclaimAfterSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(w.ReclaimAfterSeconds) * time.Second
}

// PollTimeout returns how long a dequeue may block waiting for work.
func (w WorkerConfig) PollTimeout() time.Duration {
	if w.PollTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.PollTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
