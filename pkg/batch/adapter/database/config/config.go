package config

import (
	"fmt"
	"time"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/configbinder"
)

// PoolConfig holds connection pool settings for one datasource.
// Pools are sized for a single invocation; durations are in milliseconds.
type PoolConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MinIdleConns int `yaml:"min_idle_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	// ConnectionTimeoutMs bounds how long acquiring a pooled connection may block.
	ConnectionTimeoutMs int `yaml:"connection_timeout_ms"`
	IdleTimeoutMs       int `yaml:"idle_timeout_ms"`
	MaxLifetimeMs       int `yaml:"max_lifetime_ms"`
}

// DefaultPoolConfig returns max 5 open, 1 idle, 30s acquisition, 10m idle, 30m lifetime.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:        5,
		MinIdleConns:        1,
		MaxIdleConns:        5,
		ConnectionTimeoutMs: 30000,
		IdleTimeoutMs:       600000,
		MaxLifetimeMs:       1800000,
	}
}

// ConnectionTimeout returns the acquisition timeout.
func (p PoolConfig) ConnectionTimeout() time.Duration {
	return time.Duration(p.ConnectionTimeoutMs) * time.Millisecond
}

// IdleTimeout returns the maximum idle time of a pooled connection.
func (p PoolConfig) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutMs) * time.Millisecond
}

// MaxLifetime returns the maximum lifetime of a pooled connection.
func (p PoolConfig) MaxLifetime() time.Duration {
	return time.Duration(p.MaxLifetimeMs) * time.Millisecond
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string `yaml:"type"`     // Database type ("mysql", "postgres", "sqlite").
	Host     string `yaml:"host"`     // Database host address.
	Port     int    `yaml:"port"`     // Database port number.
	Database string `yaml:"database"` // Database name, or file path for sqlite.
	User     string `yaml:"user"`     // Database user.
	Password string `yaml:"password"` // Database password.
	Schema   string `yaml:"schema"`   // Schema (search_path) for PostgreSQL.
	Sslmode  string `yaml:"sslmode"`  // SSL mode for PostgreSQL.
	// Params are appended to the DSN as driver parameters.
	Params map[string]string `yaml:"params"`
	Pool   PoolConfig        `yaml:"pool"`
}

// Decode binds a raw configuration entry onto a DatabaseConfig pre-filled with pool defaults.
func Decode(raw interface{}) (DatabaseConfig, error) {
	cfg := DatabaseConfig{Pool: DefaultPoolConfig()}
	if raw == nil {
		return cfg, fmt.Errorf("database configuration is empty")
	}
	if err := configbinder.Bind(raw, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("database configuration has no type")
	}
	if cfg.Pool.MaxOpenConns <= 0 {
		cfg.Pool.MaxOpenConns = DefaultPoolConfig().MaxOpenConns
	}
	if cfg.Pool.MinIdleConns > cfg.Pool.MaxOpenConns {
		cfg.Pool.MinIdleConns = cfg.Pool.MaxOpenConns
	}
	if cfg.Pool.MaxIdleConns < cfg.Pool.MinIdleConns {
		cfg.Pool.MaxIdleConns = cfg.Pool.MinIdleConns
	}
	return cfg, nil
}

// Redacted returns a copy safe for logging.
func (c DatabaseConfig) Redacted() DatabaseConfig {
	if c.Password != "" {
		c.Password = "****"
	}
	return c
}
