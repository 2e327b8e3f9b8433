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
	path := filepath.Join(dir, "reynard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "reynard:\n  telescope: effelsberg\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "effelsberg", cfg.Telescope)
	assert.Equal(t, ":7147", cfg.Control.Listen)
	assert.Equal(t, ":9147", cfg.Metrics.Listen)
	assert.NotEmpty(t, cfg.Node.Hostname)
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, "reynard:\n  telescope: onsala\n  control:\n    listen: \":9999\"\n  config_root: /data/reynard\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "onsala", cfg.Telescope)
	assert.Equal(t, ":9999", cfg.Control.Listen)
	assert.Equal(t, "/data/reynard", cfg.ConfigRoot)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
