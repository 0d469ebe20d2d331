package config

// Package config provides the configuration model of surfin-dualdb and its defaults.

import "strings"

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelTrace  LogLevel = "TRACE"
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// MetadataLockPolicy decides what the write stage does when a bookkeeping row loses an
// optimistic locking race after the chunk's application rows were committed.
type MetadataLockPolicy string

const (
	// MetadataLockBestEffort logs the race at WARN and lets the invocation continue.
	MetadataLockBestEffort MetadataLockPolicy = "best_effort"
	// MetadataLockFailFast fails the invocation.
	MetadataLockFailFast MetadataLockPolicy = "fail_fast"
)

// ParseMetadataLockPolicy converts a configuration value into a policy.
// Anything other than "fail_fast" (case-insensitive, '-' accepted) is best-effort.
func ParseMetadataLockPolicy(s string) MetadataLockPolicy {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if normalized == string(MetadataLockFailFast) {
		return MetadataLockFailFast
	}
	return MetadataLockBestEffort
}

// BatchConfig holds configuration of the import job.
type BatchConfig struct {
	// JobName is recorded on every bookkeeping row.
	JobName string `yaml:"job_name"`
	// DataDir is the directory input files must live under.
	DataDir string `yaml:"data_dir"`
	// ChunkSize is the number of records committed per transaction.
	ChunkSize int `yaml:"chunk_size"`
	// MetadataLockPolicy is "best_effort" or "fail_fast".
	MetadataLockPolicy string `yaml:"metadata_lock_policy"`
	// StrictDatabase rejects unknown database identifiers instead of defaulting to Primary.
	StrictDatabase bool `yaml:"strict_database"`
	// Retry bounds how often a chunk write is attempted when no connection could be acquired.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig configures the chunk write retry.
type RetryConfig struct {
	// MaxAttempts counts the first attempt; 1 disables retrying.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialIntervalMs is the wait before the second attempt. It doubles for every further attempt.
	InitialIntervalMs int `yaml:"initial_interval_ms"`
}

// LockPolicy returns the parsed metadata lock policy.
func (b BatchConfig) LockPolicy() MetadataLockPolicy {
	return ParseMetadataLockPolicy(b.MetadataLockPolicy)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
	// SQLLevel is the gorm statement log level ("SILENT", "ERROR", "WARN", "INFO").
	SQLLevel string `yaml:"sql_level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Europe/Madrid").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address             string `yaml:"address"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// MetricsConfig selects and configures the metrics backend.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "prometheus", "otlp-grpc" or "otlp-http".
	Backend string `yaml:"backend"`
	// Path is the HTTP path the Prometheus handler is mounted on.
	Path string `yaml:"path"`
	// Endpoint is the OTLP collector endpoint for the otlp backends.
	Endpoint string `yaml:"endpoint"`
	// IntervalSeconds is the OTLP export interval.
	IntervalSeconds int `yaml:"interval_seconds"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Exporter is "none", "otlp-grpc" or "otlp-http".
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Insecure    bool    `yaml:"insecure"`
}

// SurfinConfig holds all configuration under the "surfin" top-level key.
type SurfinConfig struct {
	Batch   BatchConfig   `yaml:"batch"`
	System  SystemConfig  `yaml:"system"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	// Datasources holds one raw database config per identifier ("primary", "secondary").
	// Entries are decoded into dbconfig.DatabaseConfig by the database adapter.
	Datasources map[string]interface{} `yaml:"datasource"`
	// Storage holds named storage connection configs ("local", "gcs").
	Storage map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Surfin SurfinConfig `yaml:"surfin"`
	// EmbeddedConfig holds the raw YAML this config was loaded from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a Config populated with defaults.
// Primary targets MySQL and Secondary targets PostgreSQL unless overridden.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			Batch: BatchConfig{
				JobName:            "importRecordsJob",
				DataDir:            "data",
				ChunkSize:          10,
				MetadataLockPolicy: string(MetadataLockBestEffort),
				Retry:              RetryConfig{MaxAttempts: 3, InitialIntervalMs: 200},
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", SQLLevel: string(LogLevelSilent)},
			},
			Server: ServerConfig{
				Address:             ":8080",
				ReadTimeoutSeconds:  30,
				WriteTimeoutSeconds: 300,
			},
			Metrics: MetricsConfig{
				Enabled:         true,
				Backend:         "prometheus",
				Path:            "/metrics",
				IntervalSeconds: 15,
			},
			Tracing: TracingConfig{
				Exporter:    "none",
				ServiceName: "surfin-dualdb",
				SampleRatio: 1.0,
			},
			Datasources: map[string]interface{}{
				"primary": map[string]interface{}{
					"type":     "mysql",
					"host":     "localhost",
					"port":     3306,
					"database": "batch_a",
					"user":     "root",
				},
				"secondary": map[string]interface{}{
					"type":     "postgres",
					"host":     "localhost",
					"port":     5432,
					"database": "batch_b",
					"user":     "postgres",
					"sslmode":  "disable",
				},
			},
			Storage: map[string]interface{}{
				"local": map[string]interface{}{
					"type":     "local",
					"base_dir": "export",
				},
			},
		},
	}
}
