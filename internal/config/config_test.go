package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gatekeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8081
  host: "localhost"
  read_timeout: 10s
  write_timeout: 15s
  idle_timeout: 90s

limiter:
  capacity: 20
  base_rate: 0.1
  min_rate_fraction: 0.25
  max_allowed_requests: 500
  retention_window: 12h

janitor:
  enabled: true
  schedule: "@every 1h"

gateway:
  upstream_url: "http://localhost:3000"
  client_header: "X-Tenant"

security:
  admin_token: "gk_secret"

storage:
  type: "json"
  path: "./data/test.json"
  max_records: 50

stats:
  enabled: true
  type: "memory"
  track_clients: true

logging:
  level: "debug"
  format: "text"
  output: "stdout"

metrics:
  enabled: true
  path: "/metrics"
  port: 9091
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	// Verify server config
	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 10*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, config.Server.WriteTimeout)
	assert.Equal(t, 90*time.Second, config.Server.IdleTimeout)

	// Verify limiter config
	assert.Equal(t, 20, config.Limiter.Capacity)
	assert.Equal(t, 0.1, config.Limiter.BaseRate)
	assert.Equal(t, 0.25, config.Limiter.MinRateFraction)
	assert.Equal(t, int64(500), config.Limiter.MaxAllowedRequests)
	assert.Equal(t, 12*time.Hour, config.Limiter.RetentionWindow)

	// Verify janitor and gateway config
	assert.Equal(t, "@every 1h", config.Janitor.Schedule)
	assert.Equal(t, "http://localhost:3000", config.Gateway.UpstreamURL)
	assert.Equal(t, "X-Tenant", config.Gateway.ClientHeader)
	assert.Equal(t, "gk_secret", config.Security.AdminToken)

	// Verify storage config
	assert.Equal(t, "json", config.Storage.Type)
	assert.Equal(t, "./data/test.json", config.Storage.Path)
	assert.Equal(t, 50, config.Storage.MaxRecords)

	// Verify stats config
	assert.True(t, config.Stats.TrackClients)

	// Verify logging config
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)

	// Verify metrics config
	assert.Equal(t, 9091, config.Metrics.Port)
}

func TestLoad_WithDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, models.NewDefaultConfig(), config)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	configFile := writeConfig(t, `
limiter:
  capacity: 5
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 5, config.Limiter.Capacity)
	assert.Equal(t, 0.05, config.Limiter.BaseRate)
	assert.Equal(t, 24*time.Hour, config.Limiter.RetentionWindow)
	assert.Equal(t, 8080, config.Server.Port)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("GATEKEEPER_PORT", "9000")
	t.Setenv("GATEKEEPER_HOST", "127.0.0.1")
	t.Setenv("GATEKEEPER_READ_TIMEOUT", "5s")
	t.Setenv("GATEKEEPER_LIMITER_CAPACITY", "3")
	t.Setenv("GATEKEEPER_LIMITER_BASE_RATE", "0.2")
	t.Setenv("GATEKEEPER_LIMITER_MAX_ALLOWED_REQUESTS", "50")
	t.Setenv("GATEKEEPER_LIMITER_RETENTION_WINDOW", "1h")
	t.Setenv("GATEKEEPER_JANITOR_SCHEDULE", "@every 30m")
	t.Setenv("GATEKEEPER_ADMIN_TOKEN", "gk_env")
	t.Setenv("GATEKEEPER_STORAGE_TYPE", "sqlite")
	t.Setenv("GATEKEEPER_DATABASE_DSN", "file:test.db")
	t.Setenv("GATEKEEPER_STATS_TYPE", "redis")
	t.Setenv("GATEKEEPER_REDIS_ADDR", "redis:6379")
	t.Setenv("GATEKEEPER_REDIS_DB", "2")
	t.Setenv("GATEKEEPER_LOG_LEVEL", "warn")
	t.Setenv("GATEKEEPER_METRICS_ENABLED", "false")
	t.Setenv("GATEKEEPER_TRACING_ENABLED", "true")
	t.Setenv("GATEKEEPER_GATEWAY_TRUST_FORWARDED_FOR", "true")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 5*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 3, config.Limiter.Capacity)
	assert.Equal(t, 0.2, config.Limiter.BaseRate)
	assert.Equal(t, int64(50), config.Limiter.MaxAllowedRequests)
	assert.Equal(t, time.Hour, config.Limiter.RetentionWindow)
	assert.Equal(t, "@every 30m", config.Janitor.Schedule)
	assert.Equal(t, "gk_env", config.Security.AdminToken)
	assert.Equal(t, "sqlite", config.Storage.Type)
	assert.Equal(t, "file:test.db", config.Storage.Database.DSN)
	assert.Equal(t, "redis", config.Stats.Type)
	assert.Equal(t, "redis:6379", config.Stats.Redis.Addr)
	assert.Equal(t, 2, config.Stats.Redis.DB)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.False(t, config.Metrics.Enabled)
	assert.True(t, config.Observability.Tracing.Enabled)
	assert.True(t, config.Gateway.TrustForwardedFor)
	assert.False(t, config.Gateway.TrustClientHeader)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	configFile := writeConfig(t, `
limiter:
  capacity: 5
`)
	t.Setenv("GATEKEEPER_LIMITER_CAPACITY", "7")

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 7, config.Limiter.Capacity)
}

func TestLoad_IgnoresMalformedEnvironmentValues(t *testing.T) {
	t.Setenv("GATEKEEPER_PORT", "not-a-number")
	t.Setenv("GATEKEEPER_LIMITER_RETENTION_WINDOW", "forever")

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 24*time.Hour, config.Limiter.RetentionWindow)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configFile := writeConfig(t, "limiter: [unclosed")

	_, err := Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_EmptyConfigFile(t *testing.T) {
	configFile := writeConfig(t, "")

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 10, config.Limiter.Capacity)
}

func TestLoad_InvalidLimiterSettings(t *testing.T) {
	configFile := writeConfig(t, `
limiter:
  min_rate_fraction: 2
`)

	_, err := Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid limiter config")
}

func TestLoad_NonFiniteRates(t *testing.T) {
	for _, body := range []string{
		"limiter:\n  base_rate: .nan\n",
		"limiter:\n  base_rate: .inf\n",
		"limiter:\n  min_rate_fraction: .nan\n",
	} {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, body)
	}
}

func TestLoad_InvalidSchedule(t *testing.T) {
	t.Setenv("GATEKEEPER_JANITOR_SCHEDULE", "daily please")

	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid janitor config")
}

func TestLoad_WarnsOnDeprecatedKeys(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	configFile := writeConfig(t, `
limiter:
  client_header: "X-Tenant"
  refill_rate: 50
janitor:
  interval: 6h
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "limiter.client_header")
	assert.Contains(t, out, "limiter.refill_rate")
	assert.Contains(t, out, "janitor.interval")

	// Deprecated keys are not applied.
	assert.Equal(t, "X-Client-ID", config.Gateway.ClientHeader)
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gatekeeper.yaml")
	require.NoError(t, SaveExample(path))

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", config.Gateway.UpstreamURL)
	assert.Equal(t, models.StorageTypeSQLite, config.Storage.Type)
	assert.NotEmpty(t, config.Security.AdminToken)
}
