package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Second, cfg.Stream.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Stream.CapDelay)
	assert.Equal(t, 10, cfg.Stream.MaxReconnectAttempts)
	assert.Equal(t, 8, cfg.Progress.ExpectedTotalSteps)
	assert.Equal(t, 3, cfg.Progress.MinStepsForDone)
	assert.Equal(t, 10, cfg.Filter.MinLogLength)
	require.NoError(t, Validate(&cfg))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("missing file returns defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := Load(filepath.Join(t.TempDir(), "agentfeed.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), *cfg)
	})

	t.Run("partial file keeps defaults for missing fields", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "agentfeed.yaml")
		data := "stream:\n  base_delay: 1s\n  cap_delay: 30s\n  max_reconnect_attempts: 10\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.Stream.BaseDelay)
		assert.Equal(t, 8, cfg.Progress.ExpectedTotalSteps)
	})

	t.Run("invalid yaml fails", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "agentfeed.yaml")
		require.NoError(t, os.WriteFile(path, []byte("stream: ["), 0o644))

		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero base delay", func(c *Config) { c.Stream.BaseDelay = 0 }, "stream.base_delay"},
		{"cap below base", func(c *Config) { c.Stream.CapDelay = time.Second }, "stream.cap_delay"},
		{"zero attempts", func(c *Config) { c.Stream.MaxReconnectAttempts = 0 }, "stream.max_reconnect_attempts"},
		{"zero expected steps", func(c *Config) { c.Progress.ExpectedTotalSteps = 0 }, "progress.expected_total_steps"},
		{"negative done threshold", func(c *Config) { c.Progress.MinStepsForDone = -1 }, "progress.min_steps_for_done"},
		{"done threshold above total", func(c *Config) { c.Progress.MinStepsForDone = 9 }, "progress.min_steps_for_done"},
		{"negative log length", func(c *Config) { c.Filter.MinLogLength = -1 }, "filter.min_log_length"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := Validate(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}
