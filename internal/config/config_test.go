package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "127.0.0.1:8090", cfg.Server.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 30*time.Second, cfg.Network.ProbeInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Oracle.Endpoint)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FIELDSYNC_DATA_DIR", "/var/lib/fieldsync")
	t.Setenv("FIELDSYNC_ORACLE_ENDPOINT", "https://indexer.example/api/attestations")
	t.Setenv("FIELDSYNC_SYNC_INTERVAL", "90s")
	t.Setenv("FIELDSYNC_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fieldsync", cfg.DataDir)
	assert.Equal(t, "https://indexer.example/api/attestations", cfg.Oracle.Endpoint)
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadInvalidInterval(t *testing.T) {
	t.Setenv("FIELDSYNC_SYNC_INTERVAL", "not-a-duration")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldsync.yaml")
	content := `
data_dir: /tmp/fieldsync-test
server:
  addr: 127.0.0.1:9999
oracle:
  endpoint: https://oracle.example/exists
network:
  probe_url: https://probe.example/ping
log:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("FIELDSYNC_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/fieldsync-test", cfg.DataDir)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "https://oracle.example/exists", cfg.Oracle.Endpoint)
	assert.Equal(t, "https://probe.example/ping", cfg.Network.ProbeURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingConfigFileIsError(t *testing.T) {
	t.Setenv("FIELDSYNC_CONFIG_PATH", "/nonexistent/fieldsync.yaml")

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644))

	t.Setenv("FIELDSYNC_CONFIG_PATH", path)
	t.Setenv("FIELDSYNC_LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}
