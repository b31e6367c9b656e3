package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost/deduply_test"
  max_open_conns: 10

redis:
  enabled: true
  addr: "localhost:6380"

auth:
  api_token: "test-token"

import:
  clean_values: true
  preview_rows: 5

verification:
  provider: "mx"
  timeout_seconds: 3
  count_errors_as_unknown: true

watchdog:
  enabled: true
  interval_seconds: 30
  stale_after_seconds: 120
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Test server config
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Test database config
	assert.Equal(t, "postgres://localhost/deduply_test", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)

	// Test redis config
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)

	// Test auth config
	assert.Equal(t, "test-token", cfg.Auth.APIToken)

	// Test import config
	assert.True(t, cfg.Import.CleanValues)
	assert.Equal(t, 5, cfg.Import.PreviewRows)

	// Test verification config
	assert.Equal(t, "mx", cfg.Verification.Provider)
	assert.Equal(t, 3, cfg.Verification.TimeoutSeconds)
	assert.True(t, cfg.Verification.CountErrorsAsUnknown)

	// Test watchdog config
	assert.True(t, cfg.Watchdog.Enabled)
	assert.Equal(t, 30, cfg.Watchdog.IntervalSeconds)
	assert.Equal(t, 120, cfg.Watchdog.StaleAfterSeconds)
}

func TestLoadDefaults(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://localhost/deduply"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Verify defaults are applied
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 10, cfg.Import.PreviewRows)
	assert.Equal(t, "mx", cfg.Verification.Provider)
	assert.Equal(t, 5, cfg.Verification.TimeoutSeconds)
	assert.Equal(t, 60, cfg.Dedup.LockTTLSeconds)
	assert.Equal(t, 120, cfg.Watchdog.IntervalSeconds)
	assert.Equal(t, 600, cfg.Watchdog.StaleAfterSeconds)
}

func TestLoadFromEnv(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://file-host/deduply"
auth:
  api_token: "file-token"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Set environment variables
	os.Setenv("DATABASE_URL", "postgres://env-host/deduply")
	os.Setenv("API_TOKEN", "env-token")
	os.Setenv("REDIS_ADDR", "redis-host:6379")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("API_TOKEN")
		os.Unsetenv("REDIS_ADDR")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "postgres://env-host/deduply", cfg.Database.URL)
	assert.Equal(t, "env-token", cfg.Auth.APIToken)
	assert.Equal(t, "redis-host:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	cfg := VerificationConfig{TimeoutSeconds: 3}
	assert.Equal(t, 3*1000000000, int(cfg.Timeout().Nanoseconds()))
}

func TestWatchdogDurations(t *testing.T) {
	cfg := WatchdogConfig{IntervalSeconds: 30, StaleAfterSeconds: 120}
	assert.Equal(t, 30*1000000000, int(cfg.Interval().Nanoseconds()))
	assert.Equal(t, 120*1000000000, int(cfg.StaleAfter().Nanoseconds()))
}
