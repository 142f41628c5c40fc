package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"5000"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	DatabaseURL   string `env:"DATABASE_URL"`
	MongoURL      string `env:"MONGO_URL"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"startup-genie"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`
	CookieSecure         bool   `env:"COOKIE_SECURE" envDefault:"false"`
	ResetURLBase         string `env:"RESET_URL_BASE"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Startup Genie"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"prompts.created"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"startup-genie-worker"`

	LLMBaseURL     string  `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMAPIKey      string  `env:"LLM_API_KEY"`
	LLMModel       string  `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTemperature float64 `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMMaxTokens   int     `env:"LLM_MAX_TOKENS" envDefault:"4096"`

	StreamPollInterval      time.Duration `env:"STREAM_POLL_INTERVAL" envDefault:"500ms"`
	StreamMaxPromptAttempts int           `env:"STREAM_MAX_PROMPT_ATTEMPTS" envDefault:"20"`
	StreamResponseGrace     time.Duration `env:"STREAM_RESPONSE_GRACE" envDefault:"5s"`
	StreamInactivityTimeout time.Duration `env:"STREAM_INACTIVITY_TIMEOUT" envDefault:"60s"`

	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`
	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"2"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"LOG_FILE"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa los requisitos que dependen del driver elegido.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for postgres store")
		}
	case StoreDriverMongo:
		if strings.TrimSpace(c.MongoURL) == "" {
			return errors.New("MONGO_URL is required for mongo store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StreamPollInterval <= 0 {
		return errors.New("STREAM_POLL_INTERVAL must be positive")
	}
	if c.StreamMaxPromptAttempts <= 0 {
		return errors.New("STREAM_MAX_PROMPT_ATTEMPTS must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return errors.New("WORKER_CONCURRENCY must be positive")
	}
	return nil
}

// IsProduction indica si APP_ENV apunta a produccion.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// KafkaEnabled indica si hay brokers configurados.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaBrokers[0]) != ""
}
