package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"acc", "eda", "temp"}, cfg.Pipeline.Streams)
	assert.Equal(t, int64(4_900_000_000), cfg.Pipeline.MaxShardBytes)
	assert.Equal(t, int64(268_435_456), cfg.Pipeline.PartitionBytes)
	assert.Equal(t, 1_000_000, cfg.Pipeline.ChunkRows)
	assert.Equal(t, 1, cfg.Pipeline.Concurrency)
	assert.False(t, cfg.Pipeline.ScanOnly)
	assert.Equal(t, "prod", cfg.Ledger.Mode)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TIMEPREP_PIPELINE_MONTH", "20190801_20190831")
	t.Setenv("TIMEPREP_PIPELINE_SCAN_ONLY", "true")
	t.Setenv("TIMEPREP_LEDGER_MODE", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "20190801_20190831", cfg.Pipeline.Month)
	assert.True(t, cfg.Pipeline.ScanOnly)
	assert.Equal(t, "test", cfg.Ledger.Mode)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timeprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  month: "20200101_20200131"
  streams: ["eda"]
ledger:
  mode: test
`), 0644))
	t.Setenv("TIMEPREP_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "20200101_20200131", cfg.Pipeline.Month)
	assert.Equal(t, []string{"eda"}, cfg.Pipeline.Streams)
	assert.Equal(t, "test", cfg.Ledger.Mode)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timeprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  mode: test\n"), 0644))
	t.Setenv("TIMEPREP_CONFIG", path)
	t.Setenv("TIMEPREP_LEDGER_MODE", "prod")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Ledger.Mode)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short month token", func(c *Config) { c.Pipeline.Month = "201908" }},
		{"unknown stream", func(c *Config) { c.Pipeline.Streams = []string{"hr"} }},
		{"zero shard budget", func(c *Config) { c.Pipeline.MaxShardBytes = 0 }},
		{"zero concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }},
		{"unknown ledger mode", func(c *Config) { c.Ledger.Mode = "staging" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
