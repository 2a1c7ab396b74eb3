// Package config loads scenario and adapter configuration from environment
// variables (with an optional .env file) and from YAML scenario manifests,
// following codeready-toolchain-tarsy's pkg/database/config.go
// LoadConfigFromEnv/Validate shape and cmd/tarsy/main.go's godotenv.Load
// bootstrap.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file at path into the process environment if it
// exists, mirroring cmd/tarsy/main.go's startup sequence. A missing file is
// not an error — env vars set another way (shell, CI) are equally valid.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return &LoadError{Source: path, Err: err}
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getEnvBoolOrDefault(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getEnvDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

// ScenarioConfig holds the environment-driven knobs a Scenario run is
// built from (SPEC_FULL.md §2 AMBIENT STACK).
type ScenarioConfig struct {
	FailFast bool
	Timeout  time.Duration
	LogLevel string
}

// LoadScenarioConfigFromEnv reads HARNESS_FAIL_FAST, HARNESS_TIMEOUT, and
// HARNESS_LOG_LEVEL, following LoadConfigFromEnv's env-var-with-defaults
// shape.
func LoadScenarioConfigFromEnv() (ScenarioConfig, error) {
	var cfg ScenarioConfig
	var err error

	if cfg.FailFast, err = getEnvBoolOrDefault("HARNESS_FAIL_FAST", false); err != nil {
		return cfg, err
	}
	if cfg.Timeout, err = getEnvDurationOrDefault("HARNESS_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	cfg.LogLevel = getEnvOrDefault("HARNESS_LOG_LEVEL", "info")

	return cfg, nil
}

// Validate checks ScenarioConfig invariants, following tarsy's
// Config.Validate pattern.
func (c ScenarioConfig) Validate() error {
	if c.Timeout <= 0 {
		return NewValidationError("scenario", "Timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return NewValidationError("scenario", "LogLevel", fmt.Errorf("%w: %q", ErrInvalidValue, c.LogLevel))
	}
	return nil
}

// PostgresConfig mirrors tarsy's database.Config env-var surface
// (DS_PG_HOST/DS_PG_PORT/...) for a harness DataSource component.
type PostgresConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
}

// LoadPostgresConfigFromEnv reads DS_PG_* environment variables.
func LoadPostgresConfigFromEnv() (PostgresConfig, error) {
	var cfg PostgresConfig
	var err error

	cfg.Host = getEnvOrDefault("DS_PG_HOST", "localhost")
	if cfg.Port, err = getEnvIntOrDefault("DS_PG_PORT", 5432); err != nil {
		return cfg, err
	}
	cfg.User = getEnvOrDefault("DS_PG_USER", "postgres")
	cfg.Password = os.Getenv("DS_PG_PASSWORD")
	cfg.Database = getEnvOrDefault("DS_PG_DATABASE", "harness")
	cfg.SSLMode = getEnvOrDefault("DS_PG_SSLMODE", "disable")
	if cfg.MaxOpenConns, err = getEnvIntOrDefault("DS_PG_MAX_OPEN_CONNS", 10); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks PostgresConfig invariants, following
// database.Config.Validate (required password, positive pool size).
func (c PostgresConfig) Validate() error {
	if c.Password == "" {
		return NewValidationError("postgres", "Password", ErrMissingRequiredField)
	}
	if c.MaxOpenConns <= 0 {
		return NewValidationError("postgres", "MaxOpenConns", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}
