package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
db_path: /tmp/plans.db
simulation:
  iterations: 2000
  queuing_k: 0.8
lock:
  ttl: 5m
log:
  level: debug
attention_list_bound: 10
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/plans.db", cfg.DBPath)
	assert.Equal(t, 2000, cfg.Simulation.Iterations)
	assert.Equal(t, 0.8, cfg.Simulation.QueuingK)
	assert.Equal(t, 5*time.Minute, cfg.Lock.TTL.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10, cfg.AttentionListBound)
	// Unspecified fields keep their defaults.
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: [oops"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lock:\n  ttl: soon\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
