package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Rewrite  RewriteConfig
	Schedule ScheduleConfig
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

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

// PipelineConfig controls one crawl-rank-rewrite-publish run.
type PipelineConfig struct {
	SourcesFile        string
	TargetCount        int // N: articles selected per run
	PerSourceCap       int // K: diversity cap per source
	FreshnessHorizon   time.Duration
	MaxPublished       int // rolling window kept in the published collection
	MaxEntriesPerFeed  int
	FetchTimeout       time.Duration
	FetchConcurrency   int
	RewriteConcurrency int
}

// RewriteConfig controls the external text-generation calls.
type RewriteConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	CallTimeout time.Duration
	MaxRetries  int
}

// ScheduleConfig controls the daily trigger.
type ScheduleConfig struct {
	RunAt    string // "HH:MM", 24h clock
	Timezone string // IANA zone used for the daily trigger and the today filter
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultTargetCount        = 5
	defaultPerSourceCap       = 2
	defaultFreshnessHorizon   = 100 * time.Hour
	defaultMaxPublished       = 150
	defaultMaxEntriesPerFeed  = 20
	defaultFetchTimeout       = 30 * time.Second
	defaultFetchConcurrency   = 3
	defaultRewriteConcurrency = 2

	defaultRewriteModel       = "gpt-4o-mini"
	defaultRewriteTemperature = 0.7
	defaultRewriteMaxTokens   = 600
	defaultRewriteCallTimeout = 60 * time.Second
	defaultRewriteMaxRetries  = 2

	defaultRunAt    = "07:00"
	defaultTimezone = "UTC"
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", getEnv("SERVER_PORT", defaultPort)),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxConnections:     25,
			MaxIdleConnections: 5,
			ConnMaxLifetime:    5 * time.Minute,
			ConnectTimeout:     10 * time.Second,
		},
		Pipeline: PipelineConfig{
			SourcesFile:        os.Getenv("SOURCES_FILE"),
			TargetCount:        defaultTargetCount,
			PerSourceCap:       defaultPerSourceCap,
			FreshnessHorizon:   defaultFreshnessHorizon,
			MaxPublished:       defaultMaxPublished,
			MaxEntriesPerFeed:  defaultMaxEntriesPerFeed,
			FetchTimeout:       defaultFetchTimeout,
			FetchConcurrency:   defaultFetchConcurrency,
			RewriteConcurrency: defaultRewriteConcurrency,
		},
		Rewrite: RewriteConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       getEnv("OPENAI_MODEL", defaultRewriteModel),
			Temperature: defaultRewriteTemperature,
			MaxTokens:   defaultRewriteMaxTokens,
			CallTimeout: defaultRewriteCallTimeout,
			MaxRetries:  defaultRewriteMaxRetries,
		},
		Schedule: ScheduleConfig{
			RunAt:    getEnv("PIPELINE_RUN_AT", defaultRunAt),
			Timezone: getEnv("PIPELINE_TIMEZONE", defaultTimezone),
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("PIPELINE_ARTICLES_PER_DAY"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PIPELINE_ARTICLES_PER_DAY: %w", err)
		}
		cfg.Pipeline.TargetCount = n
	}

	if v := os.Getenv("PIPELINE_PER_SOURCE_CAP"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PIPELINE_PER_SOURCE_CAP: %w", err)
		}
		cfg.Pipeline.PerSourceCap = n
	}

	if v := os.Getenv("PIPELINE_FETCH_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PIPELINE_FETCH_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Pipeline.FetchTimeout = d
	}

	if v := os.Getenv("REWRITE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid REWRITE_MAX_RETRIES: must be a non-negative integer")
		}
		cfg.Rewrite.MaxRetries = n
	}

	if v := os.Getenv("REWRITE_CALL_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REWRITE_CALL_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Rewrite.CallTimeout = d
	}

	if _, err := ParseRunAt(cfg.Schedule.RunAt); err != nil {
		return Config{}, fmt.Errorf("invalid PIPELINE_RUN_AT: %w", err)
	}

	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid PIPELINE_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// ParseRunAt validates an "HH:MM" time-of-day string and returns the minutes
// past midnight it represents.
func ParseRunAt(raw string) (int, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("must be HH:MM on a 24h clock: %w", err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
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
