// Package config provides configuration structures and loading logic for the
// engine and its command-line front end.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flowgate/flowgate/pkg/overrides"
)

// Config holds the global configuration.
type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Pipeline  PipelineSource  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
	Overrides map[string]bool `yaml:"overrides,omitempty"`
}

// TelemetryConfig holds configuration for OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	Environment  string `yaml:"environment"`
}

// PipelineSource points at the stage-set specification to load.
type PipelineSource struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads configuration from a file and applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("FLOWGATE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("FLOWGATE_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("FLOWGATE_ENVIRONMENT"); val != "" {
		cfg.Telemetry.Environment = val
	}
	if val := os.Getenv("FLOWGATE_PIPELINE_FILE"); val != "" {
		cfg.Pipeline.File = val
	}
	if val := os.Getenv("FLOWGATE_PIPELINE_WATCH"); val == "true" {
		cfg.Pipeline.Watch = true
	}
	if val := os.Getenv("FLOWGATE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("FLOWGATE_LOG_PRETTY"); val == "true" {
		cfg.Logging.Pretty = true
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}

	if _, err := c.RuntimeOverrides(); err != nil {
		return err
	}

	return nil
}

// RuntimeOverrides converts the file's overrides section into a typed value.
// Environment-sourced overrides take precedence over file-sourced ones when
// both enable a key; either source can only turn overrides on.
func (c *Config) RuntimeOverrides() (overrides.RuntimeOverrides, error) {
	fromFile, err := overrides.ValidateRuntimeOverrides(c.Overrides)
	if err != nil {
		return overrides.RuntimeOverrides{}, err
	}

	fromEnv := overrides.ReadRuntimeOverridesFromEnv(nil)
	return overrides.RuntimeOverrides{
		ForceVersion:          fromFile.ForceVersion || fromEnv.ForceVersion,
		DisableProvider:       fromFile.DisableProvider || fromEnv.DisableProvider,
		FailOpenMode:          fromFile.FailOpenMode || fromEnv.FailOpenMode,
		EnableShadowMode:      fromFile.EnableShadowMode || fromEnv.EnableShadowMode,
		DisableCircuitBreaker: fromFile.DisableCircuitBreaker || fromEnv.DisableCircuitBreaker,
	}, nil
}
