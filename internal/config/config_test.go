package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"TORII_URL", "TORII_NAMESPACE", "DATABASE_DRIVER", "DATABASE_URL", "RESTART_COOLDOWN",
		"CATCHUP_PAGE_SIZE", "QUARANTINE_DECODE_FAILURES", "LOG_LEVEL", "GG_API_URL", "GG_API_KEY",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "http://localhost:8080", cfg.ToriiURL)
	assert.Equal(t, "ponzi_land", cfg.Namespace)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 10*time.Second, cfg.RestartCooldown)
	assert.Equal(t, 100, cfg.CatchUpPageSize)
	assert.False(t, cfg.QuarantineDecodeFailures)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("RESTART_COOLDOWN", "1m")
	t.Setenv("CATCHUP_RATE", "2.5")
	t.Setenv("QUARANTINE_DECODE_FAILURES", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	assert.Equal(t, time.Minute, cfg.RestartCooldown)
	assert.Equal(t, 2.5, cfg.CatchUpRate)
	assert.True(t, cfg.QuarantineDecodeFailures)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 5, cfg.MaxRetries)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing torii url", func(c *Config) { c.ToriiURL = " " }},
		{"foreign namespace", func(c *Config) { c.Namespace = "other" }},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }},
		{"postgres without url", func(c *Config) { c.DatabaseURL = "" }},
		{"zero page size", func(c *Config) { c.CatchUpPageSize = 0 }},
		{"zero cooldown", func(c *Config) { c.RestartCooldown = 0 }},
		{"gg without key", func(c *Config) { c.GGAPIURL = "https://gg.example"; c.GGAPIKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				ToriiURL:        "http://localhost:8080",
				Namespace:       "ponzi_land",
				DatabaseDriver:  "postgres",
				DatabaseURL:     "postgres://localhost/db",
				CatchUpPageSize: 10,
				RestartCooldown: time.Second,
			}
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
