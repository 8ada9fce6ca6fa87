package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("API_PORT", "")
	t.Setenv("MAX_AGE_HOURS", "")
	t.Setenv("HOSTNAME", "")
	for _, k := range []string{"PORT", "API_PORT", "MAX_AGE_HOURS", "ANTHROPIC_API_KEY", "NOTIFICATIONS_ENABLED", "TERMINAL", "HOSTNAME"} {
		os.Unsetenv(k)
	}

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4450, cfg.Port)
	require.Equal(t, 4451, cfg.APIPort)
	require.Equal(t, 24, cfg.MaxAgeHours)
	require.False(t, cfg.NotificationsEnabled)
	require.Equal(t, 20*time.Minute, cfg.Monitor.IdleTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("NOTIFICATIONS_ENABLED", "true")
	t.Setenv("HOSTNAME", "myhost")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.True(t, cfg.NotificationsEnabled)
	require.Equal(t, "myhost", cfg.Hostname)
}

func TestLoadOverlayOverridesMonitorTunables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  idle_timeout: 5m\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.Monitor.IdleTimeout)
	require.Equal(t, 5*time.Second, cfg.Monitor.PendingThreshold)
}

func TestLoadMissingOverlayUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	require.Equal(t, defaultMonitorConfig(), cfg.Monitor)
}

func TestMaxAge(t *testing.T) {
	cfg := &Config{MaxAgeHours: 24}
	require.Equal(t, 24*time.Hour, cfg.MaxAge())
}
