package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cafeclock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
countdown:
  tick_interval: 500ms
  low_time_threshold: 0.1
poller:
  enabled: true
  interval: 20s
  cafe_ids: [cafe-1, cafe-2]
server:
  port: "9090"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Countdown.TickInterval)
	assert.InDelta(t, 0.1, cfg.Countdown.LowTimeThreshold, 1e-9)
	assert.Equal(t, 20*time.Second, cfg.Poller.Interval)
	assert.Equal(t, []string{"cafe-1", "cafe-2"}, cfg.Poller.CafeIDs)
	assert.Equal(t, "9090", cfg.Server.Port)

	// untouched sections keep their defaults
	assert.Equal(t, "http://localhost:8001", cfg.API.BaseURL)
	assert.Equal(t, "CAFE_SESSIONS", cfg.NATS.SessionStream)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")
	t.Setenv(PathEnv, path)
	t.Setenv("PORT", "7070")
	t.Setenv("CAFE_IDS", " a, b ,,c ")
	t.Setenv("LOW_TIME_THRESHOLD", "0.35")
	t.Setenv("OUTBOX_ENABLED", "true")
	t.Setenv("POLL_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Poller.CafeIDs)
	assert.InDelta(t, 0.35, cfg.Countdown.LowTimeThreshold, 1e-9)
	assert.True(t, cfg.Outbox.Enabled)
	assert.True(t, cfg.NeedsDatabase())
	assert.Equal(t, 15*time.Second, cfg.Poller.Interval, "unparseable override is ignored")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv(PathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_OutOfRangeThresholdFallsBack(t *testing.T) {
	path := writeConfig(t, "countdown:\n  low_time_threshold: 4\n  tick_interval: 0s\n")
	t.Setenv(PathEnv, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.20, cfg.Countdown.LowTimeThreshold, 1e-9)
	assert.Equal(t, time.Second, cfg.Countdown.TickInterval)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = "http"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.API.BaseURL = ""
	assert.Error(t, cfg.Validate())
}
