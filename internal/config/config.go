// ABOUTME: YAML configuration for the migration CLI and engine
// ABOUTME: Files fill in what flags leave unset; defaults fill the rest

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nainya/storyforge/pkg/migrate"
)

// Config is the full configuration file shape
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Migration migrate.Options `yaml:"migration"`
}

// DatabaseConfig locates and tunes the SQLite store
type DatabaseConfig struct {
	Path           string `yaml:"path"`
	MaxConnections int    `yaml:"maxConnections"`
}

// LoggingConfig configures structured log output
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig configures the observability HTTP server
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Path: "storyforge.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
		Migration: migrate.DefaultOptions(),
	}
}

// Load reads and validates a YAML configuration file, layered over the
// defaults
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.MaxConnections < 0 {
		return fmt.Errorf("database.maxConnections must not be negative")
	}
	if c.Migration.BatchSize < 0 {
		return fmt.Errorf("migration.batchSize must not be negative")
	}
	if c.Migration.MaxRetries < 0 {
		return fmt.Errorf("migration.maxRetries must not be negative")
	}
	if c.Migration.ConcurrentBatches < 0 {
		return fmt.Errorf("migration.concurrentBatches must not be negative")
	}

	a := c.Migration.Adaptive
	if a.Enabled {
		if a.MinBatchSize < 0 || a.MaxBatchSize < 0 {
			return fmt.Errorf("migration.adaptiveBatchSize bounds must not be negative")
		}
		if a.MinBatchSize > 0 && a.MaxBatchSize > 0 && a.MinBatchSize > a.MaxBatchSize {
			return fmt.Errorf("migration.adaptiveBatchSize: min %d exceeds max %d",
				a.MinBatchSize, a.MaxBatchSize)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port %d is out of range", c.Metrics.Port)
	}

	return nil
}
