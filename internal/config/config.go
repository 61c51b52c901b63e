// Package config defines the agentfeed configuration file and its
// defaults. Configuration covers the stream reconnect policy, progress
// accounting thresholds, and log-noise filtering. All values have
// working defaults; the file is optional.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for Config.
const (
	DefaultBaseDelay            = 5 * time.Second
	DefaultCapDelay             = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultExpectedTotalSteps   = 8
	DefaultMinStepsForDone      = 3
	DefaultMinLogLength         = 10
)

// StreamConfig controls the reconnect policy of the stream client.
type StreamConfig struct {
	// BaseDelay is multiplied by the attempt number to compute the
	// reconnect delay.
	BaseDelay time.Duration `yaml:"base_delay"`
	// CapDelay is the upper bound on the reconnect delay.
	CapDelay time.Duration `yaml:"cap_delay"`
	// MaxReconnectAttempts is the number of consecutive failed
	// reconnects tolerated before the stream is declared unavailable.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// ProgressConfig controls how aggregate job progress is derived.
type ProgressConfig struct {
	// ExpectedTotalSteps is the assumed step count for jobs that never
	// declare one. Thesis-style jobs commonly run 8 steps.
	ExpectedTotalSteps int `yaml:"expected_total_steps"`
	// MinStepsForDone is the smallest number of completed steps at
	// which a terminal success signal is trusted to finalize the job.
	// Reduced-scope runs may legitimately finish at fewer steps than
	// the declared total; this is a product rule, not an error.
	MinStepsForDone int `yaml:"min_steps_for_done"`
}

// FilterConfig controls suppression of low-value log frames.
type FilterConfig struct {
	// MinLogLength is the minimum message length for a log frame to be
	// shown in the action log.
	MinLogLength int `yaml:"min_log_length"`
}

// Config represents the agentfeed.yaml file.
type Config struct {
	Stream   StreamConfig   `yaml:"stream"`
	Progress ProgressConfig `yaml:"progress"`
	Filter   FilterConfig   `yaml:"filter"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Stream: StreamConfig{
			BaseDelay:            DefaultBaseDelay,
			CapDelay:             DefaultCapDelay,
			MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		},
		Progress: ProgressConfig{
			ExpectedTotalSteps: DefaultExpectedTotalSteps,
			MinStepsForDone:    DefaultMinStepsForDone,
		},
		Filter: FilterConfig{
			MinLogLength: DefaultMinLogLength,
		},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Load reads and parses the config file at path. A missing file yields
// the default config. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that all config values are usable.
func Validate(cfg *Config) error {
	if cfg.Stream.BaseDelay <= 0 {
		return ValidationError{Field: "stream.base_delay", Message: "must be positive"}
	}
	if cfg.Stream.CapDelay < cfg.Stream.BaseDelay {
		return ValidationError{Field: "stream.cap_delay", Message: "must be >= base_delay"}
	}
	if cfg.Stream.MaxReconnectAttempts < 1 {
		return ValidationError{Field: "stream.max_reconnect_attempts", Message: "must be at least 1"}
	}
	if cfg.Progress.ExpectedTotalSteps < 1 {
		return ValidationError{Field: "progress.expected_total_steps", Message: "must be at least 1"}
	}
	if cfg.Progress.MinStepsForDone < 0 {
		return ValidationError{Field: "progress.min_steps_for_done", Message: "must not be negative"}
	}
	if cfg.Progress.MinStepsForDone > cfg.Progress.ExpectedTotalSteps {
		return ValidationError{Field: "progress.min_steps_for_done", Message: "must not exceed expected_total_steps"}
	}
	if cfg.Filter.MinLogLength < 0 {
		return ValidationError{Field: "filter.min_log_length", Message: "must not be negative"}
	}
	return nil
}
