// Package config loads the daemon's environment-variable configuration
// (§6) plus an optional YAML overlay for monitor tunables, following the
// teacher's default-struct-then-overlay pattern.
package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	Port                 int
	APIPort              int
	MaxAgeHours          int
	AnthropicAPIKey      string
	NotificationsEnabled bool
	Terminal             string // "iterm2" | "none"
	Hostname             string

	Monitor MonitorConfig
}

// MonitorConfig holds the tunables overridable via the YAML overlay
// file. Durations are expressed in the overlay as Go duration strings
// (e.g. "20m").
type MonitorConfig struct {
	PendingThreshold  time.Duration `yaml:"pending_threshold"`
	FastIdleThreshold time.Duration `yaml:"fast_idle_threshold"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	Debounce          time.Duration `yaml:"debounce"`
	ReevaluateEvery    time.Duration `yaml:"reevaluate_every"`
	IdleReclaimSweep   time.Duration `yaml:"idle_reclaim_sweep"`
	IdleReclaimAfter   time.Duration `yaml:"idle_reclaim_after"`
	LauncherWindow     time.Duration `yaml:"launcher_window"`
}

func defaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PendingThreshold:  5 * time.Second,
		FastIdleThreshold: 500 * time.Millisecond,
		IdleTimeout:       20 * time.Minute,
		Debounce:          250 * time.Millisecond,
		ReevaluateEvery:   2 * time.Second,
		IdleReclaimSweep:  5 * time.Minute,
		IdleReclaimAfter:  2 * time.Hour,
		LauncherWindow:    10 * time.Second,
	}
}

// Load resolves the environment-variable configuration per §6 and, if
// overlayPath exists, overlays monitor tunables from it. A missing
// overlay file is not an error — the defaults apply.
func Load(overlayPath string) (*Config, error) {
	cfg := &Config{
		Port:                 envInt("PORT", 4450),
		APIPort:              envInt("API_PORT", 4451),
		MaxAgeHours:          envInt("MAX_AGE_HOURS", 24),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		NotificationsEnabled: envBool("NOTIFICATIONS_ENABLED", false),
		Terminal:             envString("TERMINAL", defaultTerminal()),
		Hostname:             envString("HOSTNAME", localHostname()),
		Monitor:              defaultMonitorConfig(),
	}

	if overlayPath != "" {
		data, err := os.ReadFile(overlayPath)
		if err == nil {
			var overlay struct {
				Monitor MonitorConfig `yaml:"monitor"`
			}
			overlay.Monitor = cfg.Monitor
			if err := yaml.Unmarshal(data, &overlay); err != nil {
				return nil, err
			}
			cfg.Monitor = overlay.Monitor
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return cfg, nil
}

// MaxAge returns MaxAgeHours as a time.Duration for registry filtering.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

func defaultTerminal() string {
	if runtime.GOOS == "darwin" {
		return "iterm2"
	}
	return "none"
}

func localHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
