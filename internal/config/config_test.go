package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "storage:\n  dsn: \"postgres://localhost/accessfabric\"\nadmin:\n  signing_key: \"test-signing-key\"\n")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Storage.MaxDeadlockRetries)
	assert.Equal(t, 100, cfg.Buffer.SizeLimit)
	assert.Equal(t, 1000, cfg.Cache.CachedEventCount)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadFileRejectsMissingDSN(t *testing.T) {
	path := writeConfig(t, "buffer:\n  buffer_size_limit: 10\nadmin:\n  signing_key: \"test-signing-key\"\n")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileRejectsMissingAdminSigningKey(t *testing.T) {
	path := writeConfig(t, "storage:\n  dsn: \"postgres://localhost/accessfabric\"\n")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileRejectsMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadFileParsesRoutingWindows(t *testing.T) {
	path := writeConfig(t, `
storage:
  dsn: "postgres://localhost/accessfabric"
admin:
  signing_key: "test-signing-key"
routing:
  windows:
    - data_element_kind: user
      source_range_start: 0
      source_range_end: 2147483648
      target_range_start: 2147483648
      target_range_end: 0
      routing_initially_on: false
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Routing.Windows, 1)
	assert.Equal(t, "user", cfg.Routing.Windows[0].ElementKind)
	assert.Equal(t, "local", cfg.Mode)
}

func TestLoadFileRejectsRoutingOnWithoutShardIDs(t *testing.T) {
	path := writeConfig(t, `
storage:
  dsn: "postgres://localhost/accessfabric"
admin:
  signing_key: "test-signing-key"
routing:
  windows:
    - data_element_kind: user
      source_range_start: 0
      source_range_end: 2147483648
      target_range_start: 2147483648
      target_range_end: 0
      routing_initially_on: true
`)
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileParsesRoutingWindowShardIDs(t *testing.T) {
	path := writeConfig(t, `
storage:
  dsn: "postgres://localhost/accessfabric"
admin:
  signing_key: "test-signing-key"
shards:
  records:
    - id: shard-a
      kind: user
      op: add
      address: "http://shard-a:8080"
    - id: shard-b
      kind: user
      op: add
      address: "http://shard-b:8080"
routing:
  windows:
    - data_element_kind: user
      source_range_start: 0
      source_range_end: 2147483648
      target_range_start: 2147483648
      target_range_end: 0
      routing_initially_on: true
      source_shard_id: shard-a
      target_shard_id: shard-b
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Routing.Windows, 1)
	assert.Equal(t, "shard-a", cfg.Routing.Windows[0].SourceShardID)
	assert.Equal(t, "shard-b", cfg.Routing.Windows[0].TargetShardID)
}

func TestLoadFileRejectsInvalidMode(t *testing.T) {
	path := writeConfig(t, "storage:\n  dsn: \"postgres://localhost/accessfabric\"\nadmin:\n  signing_key: \"test-signing-key\"\nmode: \"sideways\"\n")
	_, err := LoadFile(path)
	assert.Error(t, err)
}
