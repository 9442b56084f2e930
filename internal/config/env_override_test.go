package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("RUNG_BACKEND_URL", func(t *testing.T) {
		t.Setenv("RUNG_BACKEND_URL", "http://backend:9000")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://backend:9000", cfg.Backend.BaseURL)
	})

	t.Run("RUNG_DOWNLOAD_DIR and RUNG_HISTORY_DB", func(t *testing.T) {
		t.Setenv("RUNG_DOWNLOAD_DIR", "/srv/out")
		t.Setenv("RUNG_HISTORY_DB", "/srv/hist.db")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "/srv/out", cfg.Downloads.Dir)
		assert.Equal(t, "/srv/hist.db", cfg.History.DatabasePath)
	})

	t.Run("RUNG_DEBUG toggles debug mode", func(t *testing.T) {
		for _, v := range []string{"1", "true", "YES", "on"} {
			t.Setenv("RUNG_DEBUG", v)
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.True(t, cfg.Logging.DebugMode, v)
		}

		t.Setenv("RUNG_DEBUG", "off")
		cfg := &Config{Logging: LoggingConfig{DebugMode: true}}
		cfg.applyEnvOverrides()
		assert.False(t, cfg.Logging.DebugMode)
	})

	t.Run("unrecognized RUNG_DEBUG leaves value", func(t *testing.T) {
		t.Setenv("RUNG_DEBUG", "maybe")
		cfg := &Config{Logging: LoggingConfig{DebugMode: true}}
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Logging.DebugMode)
	})

	t.Run("empty vars do not override", func(t *testing.T) {
		t.Setenv("RUNG_BACKEND_URL", "")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "http://localhost:5000", cfg.Backend.BaseURL)
	})
}
