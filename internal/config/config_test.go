package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinIdleConns)
	assert.InDelta(t, 0.0, cfg.Backfill.RateLimit, 0.001)
	assert.Equal(t, 2, cfg.Backfill.Concurrency)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: identity.db
log:
  level: debug
  format: console
server:
  port: 9090
backfill:
  rate_limit: 250
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "identity.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 250.0, cfg.Backfill.RateLimit, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Backfill.Concurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("IDENTITY_STORE_DRIVER", "postgres")
	t.Setenv("IDENTITY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("IDENTITY_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/identity"
	cfg.Store.MaxConns = 10
	cfg.Backfill.Concurrency = 2
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateStore_AllPresent(t *testing.T) {
	cfg := validDefaults()

	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateStore_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), `store.driver must be "postgres" or "sqlite"`)
}

func TestValidateStore_SQLiteDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "identity.db"

	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Backfill.Concurrency = 0
	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "backfill.concurrency must be between 1 and 16")

	cfg.Backfill.Concurrency = 17
	err = cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "backfill.concurrency must be between 1 and 16")

	cfg.Backfill.Concurrency = 16
	err = cfg.Validate("store")
	assert.NoError(t, err)
}

func TestValidateRateLimitBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Backfill.RateLimit = -1
	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "backfill.rate_limit must be >= 0")

	cfg.Backfill.RateLimit = 250
	err = cfg.Validate("store")
	assert.NoError(t, err)
}
