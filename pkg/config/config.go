// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Redis, Worker, Webhook, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Worker   WorkerConfig   `yaml:"worker"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// WorkerMode selects which worker adapter implementation is used.
type WorkerMode string

const (
	// WorkerModeRemote dispatches jobs to an external processing service
	// over HTTP.
	WorkerModeRemote WorkerMode = "remote"
	// WorkerModeSimulated processes jobs with a local timer-driven
	// simulation. No network calls are made.
	WorkerModeSimulated WorkerMode = "simulated"
)

// WorkerConfig selects and configures the worker adapter.
type WorkerConfig struct {
	Mode      WorkerMode      `yaml:"mode"`
	Remote    RemoteConfig    `yaml:"remote"`
	Simulated SimulatedConfig `yaml:"simulated"`
}

// RemoteConfig holds the external processing service endpoint and credentials.
type RemoteConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SimulatedConfig controls the local worker simulation: the randomized
// initial delay range, the ordered processing steps, the failure rate of the
// final outcome, the retry ceiling, and the cleanup of aged terminal jobs.
type SimulatedConfig struct {
	ProcessingTimeMin time.Duration     `yaml:"processingTimeMin"`
	ProcessingTimeMax time.Duration     `yaml:"processingTimeMax"`
	FailureRate       float64           `yaml:"failureRate"`
	Steps             []StepConfig      `yaml:"steps"`
	MaxRetries        int               `yaml:"maxRetries"`
	AutoCleanup       AutoCleanupConfig `yaml:"autoCleanup"`
}

// StepConfig is one named stage of the simulated processing sequence.
type StepConfig struct {
	Name       string        `yaml:"name"`
	Duration   time.Duration `yaml:"duration"`
	Percentage int           `yaml:"percentage"`
}

// AutoCleanupConfig controls periodic deletion of aged terminal jobs.
type AutoCleanupConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"maxAge"`
}

// WebhookConfig holds the shared secret that external workers must present
// on status-update callbacks. The check is skipped in simulated mode.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides, and validates the result. All validation violations are
// reported together.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if violations := cfg.Validate(); len(violations) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(violations, "; "))
	}
	return cfg, nil
}

// Validate checks the full configuration and returns every violation found,
// rather than stopping at the first.
func (c *Config) Validate() []string {
	var violations []string

	switch c.Worker.Mode {
	case WorkerModeRemote:
		if c.Worker.Remote.Endpoint == "" {
			violations = append(violations, "worker.remote.endpoint is required in remote mode")
		}
		if c.Worker.Remote.Timeout <= 0 {
			violations = append(violations, "worker.remote.timeout must be positive")
		}
		if c.Webhook.Secret == "" {
			violations = append(violations, "webhook.secret is required in remote mode")
		}
	case WorkerModeSimulated:
		violations = append(violations, c.Worker.Simulated.validate()...)
	default:
		violations = append(violations, fmt.Sprintf("worker.mode must be %q or %q, got %q",
			WorkerModeRemote, WorkerModeSimulated, c.Worker.Mode))
	}

	return violations
}

func (s SimulatedConfig) validate() []string {
	var violations []string
	if s.ProcessingTimeMin < 0 {
		violations = append(violations, "worker.simulated.processingTimeMin must be non-negative")
	}
	if s.ProcessingTimeMax < s.ProcessingTimeMin {
		violations = append(violations, "worker.simulated.processingTimeMax must be >= processingTimeMin")
	}
	if s.FailureRate < 0 || s.FailureRate > 1 {
		violations = append(violations, "worker.simulated.failureRate must be between 0 and 1")
	}
	if s.MaxRetries < 0 {
		violations = append(violations, "worker.simulated.maxRetries must be non-negative")
	}
	if s.AutoCleanup.Enabled {
		if s.AutoCleanup.Interval <= 0 {
			violations = append(violations, "worker.simulated.autoCleanup.interval must be positive when cleanup is enabled")
		}
		if s.AutoCleanup.MaxAge <= 0 {
			violations = append(violations, "worker.simulated.autoCleanup.maxAge must be positive when cleanup is enabled")
		}
	}
	if len(s.Steps) == 0 {
		violations = append(violations, "worker.simulated.steps must contain at least one step")
	}
	lastPct := -1
	for i, step := range s.Steps {
		if step.Name == "" {
			violations = append(violations, fmt.Sprintf("worker.simulated.steps[%d].name must not be empty", i))
		}
		if step.Duration < 0 {
			violations = append(violations, fmt.Sprintf("worker.simulated.steps[%d].duration must be non-negative", i))
		}
		if step.Percentage < 0 || step.Percentage > 100 {
			violations = append(violations, fmt.Sprintf("worker.simulated.steps[%d].percentage must be between 0 and 100", i))
		} else if step.Percentage <= lastPct {
			violations = append(violations, fmt.Sprintf("worker.simulated.steps[%d].percentage must be strictly greater than the previous step", i))
		}
		lastPct = step.Percentage
	}
	return violations
}

// defaultConfig returns a Config with sensible defaults for local
// development: simulated worker, fast processing steps, no failures.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docuflow",
			User:            "docuflow",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 30 * time.Second,
		},
		Worker: WorkerConfig{
			Mode: WorkerModeSimulated,
			Remote: RemoteConfig{
				Timeout: 30 * time.Second,
			},
			Simulated: SimulatedConfig{
				ProcessingTimeMin: 2 * time.Second,
				ProcessingTimeMax: 8 * time.Second,
				FailureRate:       0.1,
				MaxRetries:        3,
				Steps: []StepConfig{
					{Name: "initializing", Duration: 500 * time.Millisecond, Percentage: 5},
					{Name: "extracting_text", Duration: 2 * time.Second, Percentage: 30},
					{Name: "analyzing_content", Duration: 2 * time.Second, Percentage: 60},
					{Name: "generating_embeddings", Duration: 2 * time.Second, Percentage: 85},
					{Name: "finalizing", Duration: 500 * time.Millisecond, Percentage: 95},
				},
				AutoCleanup: AutoCleanupConfig{
					Enabled:  true,
					Interval: time.Hour,
					MaxAge:   24 * time.Hour,
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads DF_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DF_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DF_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DF_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DF_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("DF_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DF_WORKER_MODE"); v != "" {
		cfg.Worker.Mode = WorkerMode(v)
	}
	if v := os.Getenv("DF_WORKER_REMOTE_ENDPOINT"); v != "" {
		cfg.Worker.Remote.Endpoint = v
	}
	if v := os.Getenv("DF_WORKER_REMOTE_TOKEN"); v != "" {
		cfg.Worker.Remote.Token = v
	}
	if v := os.Getenv("DF_WORKER_FAILURE_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Worker.Simulated.FailureRate = rate
		}
	}
	if v := os.Getenv("DF_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("DF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DF_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
