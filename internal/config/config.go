// Package config holds the daemon configuration. Defaults come from
// DefaultConfig, a YAML file can override them, and HALO_* environment
// variables override the file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the listener settings.
type ServerConfig struct {
	// HTTPAddr serves the dataplane, controlplane, health and metrics
	// endpoints. Empty disables the HTTP server.
	HTTPAddr string `yaml:"http_addr"`
	// GRPCAddr serves the dispatch gRPC service. Empty disables it.
	GRPCAddr string `yaml:"grpc_addr"`
	// GRPCListener selects the listener kind: tcp, unix or vsock.
	// For vsock, GRPCAddr is the numeric port.
	GRPCListener string `yaml:"grpc_listener"`
}

// LoggingConfig controls the operational logger.
type LoggingConfig struct {
	Format string `yaml:"format"` // text, json
	Level  string `yaml:"level"`  // debug, info, warn, error
}

// TracingConfig controls the OpenTelemetry provider.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // otlp-http, stdout
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// MetricsConfig controls the prometheus registry.
type MetricsConfig struct {
	Enabled          bool      `yaml:"enabled"`
	Namespace        string    `yaml:"namespace"`
	HistogramBuckets []float64 `yaml:"histogram_buckets"`
}

// TelemetryConfig groups the instrumentation settings.
type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	// Log enables the structured-log event collector.
	Log bool `yaml:"log"`
	// EmitCancelled emits a terminal event for cancelled invocations.
	EmitCancelled bool `yaml:"emit_cancelled"`
}

// RecordsConfig controls the invocation record audit trail.
type RecordsConfig struct {
	Enabled         bool `yaml:"enabled"`
	BatchSize       int  `yaml:"batch_size"`
	BufferSize      int  `yaml:"buffer_size"`
	FlushIntervalMs int  `yaml:"flush_interval_ms"`
}

// PostgresConfig holds the record store connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds Redis connection settings for the completion notifier.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CallsConfig controls the pending-call tracker.
type CallsConfig struct {
	// TTLSeconds is how long a settled call stays retrievable.
	TTLSeconds int `yaml:"ttl_seconds"`
	// CleanupIntervalSeconds is the sweep cadence.
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

// OperationPolicy overrides runtime behavior for one operation.
type OperationPolicy struct {
	// Disabled rejects dispatches to the operation.
	Disabled bool `yaml:"disabled"`
	// EmitCancelled overrides the global emit-cancelled policy when set.
	EmitCancelled *bool `yaml:"emit_cancelled,omitempty"`
}

// Config is the central configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Records   RecordsConfig   `yaml:"records"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`

	// Notifier selects the completion notifier: none, channel or redis.
	Notifier string `yaml:"notifier"`

	Calls      CallsConfig                `yaml:"calls"`
	Operations map[string]OperationPolicy `yaml:"operations"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:     ":8080",
			GRPCAddr:     ":9090",
			GRPCListener: "tcp",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "halo",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "halo",
			},
			Log:           true,
			EmitCancelled: false,
		},
		Records: RecordsConfig{
			Enabled:         false,
			BatchSize:       100,
			BufferSize:      1000,
			FlushIntervalMs: 500,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Notifier: "channel",
		Calls: CallsConfig{
			TTLSeconds:             300,
			CleanupIntervalSeconds: 30,
		},
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("HALO_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("HALO_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("HALO_GRPC_LISTENER"); v != "" {
		cfg.Server.GRPCListener = v
	}
	if v := os.Getenv("HALO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HALO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("HALO_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("HALO_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HALO_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("HALO_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("HALO_NOTIFIER"); v != "" {
		cfg.Notifier = v
	}
	if v := os.Getenv("HALO_TRACING_ENABLED"); v != "" {
		cfg.Telemetry.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("HALO_TRACING_ENDPOINT"); v != "" {
		cfg.Telemetry.Tracing.Endpoint = v
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Server.GRPCListener {
	case "", "tcp", "unix", "vsock":
	default:
		return fmt.Errorf("invalid grpc_listener %q (want tcp, unix or vsock)", c.Server.GRPCListener)
	}
	switch c.Notifier {
	case "", "none", "channel", "redis":
	default:
		return fmt.Errorf("invalid notifier %q (want none, channel or redis)", c.Notifier)
	}
	if c.Calls.TTLSeconds <= 0 {
		return fmt.Errorf("calls.ttl_seconds must be positive, got %d", c.Calls.TTLSeconds)
	}
	if c.Records.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("records enabled but postgres.dsn is empty")
	}
	if c.Records.BatchSize <= 0 {
		return fmt.Errorf("records.batch_size must be positive, got %d", c.Records.BatchSize)
	}
	return nil
}
