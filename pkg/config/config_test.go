package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listenAddr: ":9000"
windowSize: 200
adaptive:
  enabled: true
  baseRate: 50
  monitorInterval: 2s
  source: simulated
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 200, cfg.WindowSize)
	// Untouched fields keep their defaults.
	assert.Equal(t, "1.0.0", cfg.ModelVersion)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	interval, err := cfg.Adaptive.Interval()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, interval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadWindow(t *testing.T) {
	path := writeConfig(t, "windowSize: 0\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "windowSize")
}

func TestValidateRejectsBadSource(t *testing.T) {
	path := writeConfig(t, `
adaptive:
  enabled: true
  baseRate: 10
  monitorInterval: 5s
  source: carrier-pigeon
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "adaptive.source")
}

func TestValidateRejectsBadInterval(t *testing.T) {
	path := writeConfig(t, `
adaptive:
  enabled: true
  baseRate: 10
  monitorInterval: soon
  source: tracker
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "monitorInterval")
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
