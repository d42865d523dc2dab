package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Jobs.EstimatedTimeBuffer)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Database.Path, cfg.Database.Path)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printfarm.yaml")
	body := []byte(`
server:
  port: 9090
jobs:
  estimated_time_buffer_percent: 15
notifications:
  retry_delay: 2s
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("PRINTFARM_LOG_FORMAT", "text")
	t.Setenv("PRINTFARM_DB_PATH", "/tmp/farm.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15.0, cfg.Jobs.EstimatedTimeBuffer)
	assert.Equal(t, 2*time.Second, cfg.Notifications.RetryDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "/tmp/farm.db", cfg.Database.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"db path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"buffer", func(c *Config) { c.Jobs.EstimatedTimeBuffer = -1 }, "estimated time buffer"},
		{"workers", func(c *Config) { c.Notifications.WorkerCount = 0 }, "worker count"},
		{"rate limit", func(c *Config) { c.Redis.Addr = "localhost:6379"; c.Redis.RateLimit = 0 }, "rate limit"},
		{"amqp exchange", func(c *Config) { c.AMQP.URL = "amqp://x"; c.AMQP.Exchange = "" }, "amqp exchange"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
