package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
batch:
  job_name: employeeJob
  chunk_size: 25
  chunk_timeout: 30s
  restart: false
  item_skip:
    skip_limit: 3
    skippable_exceptions: [ReadError]
input:
  path: ${TEST_INPUT_DIR}/employees.csv
  has_header: true
database:
  default:
    type: mysql
    host: db.internal
    port: 3306
`

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "employeeJob", cfg.Batch.JobName)
	assert.Equal(t, 10, cfg.Batch.ChunkSize)
	assert.True(t, cfg.Batch.Restart)
	assert.Equal(t, ",", cfg.Input.Delimiter)
	assert.Equal(t, "sql", cfg.Infrastructure.JobRepositoryType)
	assert.Equal(t, "sqlite", cfg.Database["default"].(map[string]interface{})["type"])
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAMLOverDefaults(t *testing.T) {
	t.Setenv("TEST_INPUT_DIR", "/data")

	cfg, err := LoadConfig("", EmbeddedConfig(testYAML), "")
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Batch.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Batch.ChunkTimeout)
	assert.False(t, cfg.Batch.Restart, "an explicit false overrides the default")
	assert.Equal(t, 30*time.Minute, cfg.Batch.StaleAfter, "absent keys keep defaults")
	assert.Equal(t, []string{"ReadError"}, cfg.Batch.ItemSkip.SkippableExceptions)
	assert.Equal(t, "/data/employees.csv", cfg.Input.Path)
	assert.True(t, cfg.Input.HasHeader)

	db := cfg.Database["default"].(map[string]interface{})
	assert.Equal(t, "mysql", db["type"])
	assert.Equal(t, "db.internal", db["host"])
	assert.Equal(t, "employee.db", db["database"], "database entries merge key by key")
}

func TestLoadConfig_OverlayFile(t *testing.T) {
	overlay := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(overlay, []byte("batch:\n  chunk_size: 7\n"), 0o644))

	cfg, err := LoadConfig("", EmbeddedConfig(testYAML), overlay)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Batch.ChunkSize)
	assert.Equal(t, 3, cfg.Batch.ItemSkip.SkipLimit)

	_, err = LoadConfig("", nil, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BATCH_CHUNK_SIZE", "50")
	t.Setenv("BATCH_STALE_AFTER", "5m")
	t.Setenv("BATCH_ITEM_SKIP_SKIPPABLE_EXCEPTIONS", "ReadError, WriteError")
	t.Setenv("INPUT_HAS_HEADER", "true")
	t.Setenv("DATABASE_DEFAULT_PORT", "5432")
	t.Setenv("DATABASE_REPORTING_TYPE", "postgres")

	cfg, err := LoadConfig("", nil, "")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Batch.ChunkSize)
	assert.Equal(t, 5*time.Minute, cfg.Batch.StaleAfter)
	assert.Equal(t, []string{"ReadError", "WriteError"}, cfg.Batch.ItemSkip.SkippableExceptions)
	assert.True(t, cfg.Input.HasHeader)

	def := cfg.Database["default"].(map[string]interface{})
	assert.Equal(t, "5432", def["port"])
	assert.Equal(t, "sqlite", def["type"])
	assert.Equal(t, "postgres", cfg.Database["reporting"].(map[string]interface{})["type"])
}

func TestLoadConfig_EnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("BATCH_JOB_NAME=fromDotEnv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("BATCH_JOB_NAME") })

	cfg, err := LoadConfig(envFile, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "fromDotEnv", cfg.Batch.JobName)
}

func TestLoadConfig_InvalidEnvValue(t *testing.T) {
	t.Setenv("BATCH_CHUNK_SIZE", "ten")

	_, err := LoadConfig("", nil, "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Batch.ChunkSize = 0 }},
		{"negative skip limit", func(c *Config) { c.Batch.ItemSkip.SkipLimit = -1 }},
		{"negative chunk timeout", func(c *Config) { c.Batch.ChunkTimeout = -time.Second }},
		{"unknown skippable", func(c *Config) { c.Batch.ItemSkip.SkippableExceptions = []string{"NoSuchError"} }},
		{"empty job name", func(c *Config) { c.Batch.JobName = "" }},
		{"multi-char delimiter", func(c *Config) { c.Input.Delimiter = ";;" }},
		{"unknown repository type", func(c *Config) { c.Infrastructure.JobRepositoryType = "redis" }},
		{"unknown metrics exporter", func(c *Config) { c.Metrics.Exporter = "statsd" }},
		{"unknown tracing exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOsEnvironmentExpander(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "localhost")

	out, err := NewOsEnvironmentExpander().Expand([]byte("host: ${TEST_DB_HOST}"))
	require.NoError(t, err)
	assert.Equal(t, "host: localhost", string(out))
}
