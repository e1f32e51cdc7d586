package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/STRATINT/eventcatalog/internal/models"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Enrichment EnrichmentConfig
	Sources    SourcesConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the catalog database connection settings.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// RedisConfig selects the enrichment queue backend. An empty URL uses the
// in-process queue.
type RedisConfig struct {
	URL      string
	QueueKey string
}

// EnrichmentConfig controls how derived fields are produced.
type EnrichmentConfig struct {
	Mode         models.EnrichmentMode
	AIEnabled    bool
	Provider     string
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
	RateInterval time.Duration
	MaxAttempts  int
	Workers      int
	SweepLimit   int
}

// SourcesConfig locates the source registry.
type SourcesConfig struct {
	File string
	// GracePeriod is how long after its end an event stays active.
	GracePeriod time.Duration
}

// AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"
)

// environment is the raw variable set; Load validates it into Config.
type environment struct {
	Port                   string `env:"PORT"`
	ServerPort             string `env:"SERVER_PORT" envDefault:"8080"`
	ServerReadTimeout      string `env:"SERVER_READ_TIMEOUT_SECONDS"`
	ServerWriteTimeout     string `env:"SERVER_WRITE_TIMEOUT_SECONDS"`
	ServerShutdownTimeout  string `env:"SERVER_SHUTDOWN_TIMEOUT_SECONDS"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat              string `env:"LOG_FORMAT" envDefault:"json"`
	DatabaseURL            string `env:"DATABASE_URL"`
	DatabaseMaxConnections int    `env:"DATABASE_MAX_CONNECTIONS" envDefault:"20"`
	RedisURL               string `env:"REDIS_URL"`
	RedisQueueKey          string `env:"REDIS_QUEUE_KEY" envDefault:"eventcatalog:enrich:queue"`

	EnrichmentMode    string        `env:"ENRICHMENT_MODE" envDefault:"ai"`
	AIEnabled         bool          `env:"AI_ENABLED" envDefault:"true"`
	AIProvider        string        `env:"AI_PROVIDER" envDefault:"gemini"`
	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIModel       string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GeminiAPIKey      string        `env:"GEMINI_API_KEY"`
	GeminiModel       string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	AITimeout         time.Duration `env:"AI_TIMEOUT" envDefault:"45s"`
	AIRateInterval    time.Duration `env:"AI_RATE_INTERVAL" envDefault:"3s"`
	EnrichMaxAttempts int           `env:"ENRICH_MAX_ATTEMPTS" envDefault:"5"`
	EnrichWorkers     int           `env:"ENRICH_WORKERS" envDefault:"2"`
	EnrichSweepLimit  int           `env:"ENRICH_SWEEP_LIMIT" envDefault:"15"`

	SourcesFile     string        `env:"SOURCES_FILE"`
	DeactivateGrace time.Duration `env:"DEACTIVATE_GRACE" envDefault:"2h"`
}

// Load reads configuration from environment variables, applying defaults when
// values are not provided.
func Load() (Config, error) {
	var raw environment
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	// PORT is set by the hosting platform; SERVER_PORT is the local override.
	port := raw.Port
	if port == "" {
		port = raw.ServerPort
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{Format: raw.LogFormat},
		Database: DatabaseConfig{
			URL:            raw.DatabaseURL,
			MaxConnections: raw.DatabaseMaxConnections,
		},
		Redis: RedisConfig{URL: raw.RedisURL, QueueKey: raw.RedisQueueKey},
		Enrichment: EnrichmentConfig{
			Mode:         models.EnrichmentMode(raw.EnrichmentMode),
			AIEnabled:    raw.AIEnabled,
			Provider:     raw.AIProvider,
			OpenAIAPIKey: raw.OpenAIAPIKey,
			OpenAIModel:  raw.OpenAIModel,
			GeminiAPIKey: raw.GeminiAPIKey,
			GeminiModel:  raw.GeminiModel,
			Timeout:      raw.AITimeout,
			RateInterval: raw.AIRateInterval,
			MaxAttempts:  raw.EnrichMaxAttempts,
			Workers:      raw.EnrichWorkers,
			SweepLimit:   raw.EnrichSweepLimit,
		},
		Sources: SourcesConfig{File: raw.SourcesFile, GracePeriod: raw.DeactivateGrace},
	}

	for _, v := range []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", raw.ServerReadTimeout, &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", raw.ServerWriteTimeout, &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", raw.ServerShutdownTimeout, &cfg.Server.ShutdownTimeout},
	} {
		if v.value == "" {
			continue
		}
		d, err := parseSeconds(v.value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", v.key, err)
		}
		*v.dst = d
	}

	level, err := parseLogLevel(raw.LogLevel)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.Logging.Level = level

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
	}

	if err := cfg.Enrichment.validate(); err != nil {
		return Config{}, err
	}
	if cfg.Database.MaxConnections <= 0 {
		return Config{}, fmt.Errorf("invalid DATABASE_MAX_CONNECTIONS: must be positive")
	}
	if cfg.Sources.GracePeriod < 0 {
		return Config{}, fmt.Errorf("invalid DEACTIVATE_GRACE: must not be negative")
	}

	return cfg, nil
}

func (c EnrichmentConfig) validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid ENRICHMENT_MODE: must be one of ai, rules, hybrid")
	}
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("invalid AI_PROVIDER: must be 'gemini' or 'openai'")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid AI_TIMEOUT: must be positive")
	}
	if c.RateInterval < 0 {
		return fmt.Errorf("invalid AI_RATE_INTERVAL: must not be negative")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("invalid ENRICH_MAX_ATTEMPTS: must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid ENRICH_WORKERS: must be positive")
	}
	return nil
}

// APIKey returns the key of the selected provider.
func (c EnrichmentConfig) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
