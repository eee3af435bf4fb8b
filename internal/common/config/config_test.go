// filename: internal/common/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "controller/alerter", cfg.Alerter.Module)
	assert.Equal(t, 3*time.Second, cfg.Alerter.MinInterval)
	assert.Equal(t, 5*time.Minute, cfg.Alerter.ActivationTTL)
	assert.Equal(t, "memory", cfg.Alerter.ThrottleBackend)
	assert.Equal(t, 30, cfg.Alerter.RetentionDays)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddr())
	assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
alerter:
  module: house/alerter
  min_interval: 10s
  throttle_backend: redis
  rules_dir: /etc/myhouse/rules
redis:
  host: redis
server:
  port: 9090
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "house/alerter", cfg.Alerter.Module)
	assert.Equal(t, 10*time.Second, cfg.Alerter.MinInterval)
	assert.Equal(t, "redis", cfg.Alerter.ThrottleBackend)
	assert.Equal(t, "/etc/myhouse/rules", cfg.Alerter.RulesDir)
	assert.Equal(t, "redis:6379", cfg.GetRedisAddr())
	assert.Equal(t, 9090, cfg.Server.Port)
	// значения по умолчанию сохраняются
	assert.Equal(t, 5*time.Minute, cfg.Alerter.ActivationTTL)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alerter:\n  retention_days: 7\n"), 0o644))

	t.Setenv("MYHOUSE_ALERTER_RETENTION_DAYS", "14")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Alerter.RetentionDays)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"no nats", func(c *Config) { c.NATS.URLs = nil }},
		{"module without scope", func(c *Config) { c.Alerter.Module = "alerter" }},
		{"negative interval", func(c *Config) { c.Alerter.MinInterval = -time.Second }},
		{"zero ttl", func(c *Config) { c.Alerter.ActivationTTL = 0 }},
		{"zero sweep", func(c *Config) { c.Alerter.SweepInterval = 0 }},
		{"zero buffer", func(c *Config) { c.Alerter.EventBuffer = 0 }},
		{"unknown throttle", func(c *Config) { c.Alerter.ThrottleBackend = "etcd" }},
		{"journal without database", func(c *Config) {
			c.Alerter.JournalEnabled = true
			c.ClickHouse.Database = ""
		}},
		{"postgres without database", func(c *Config) {
			c.PostgreSQL.Enabled = true
			c.PostgreSQL.Database = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
