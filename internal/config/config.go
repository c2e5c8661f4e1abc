// Package config holds the explicit, dependency-injected settings for the
// mount control plane. There is no global singleton: every component takes
// a *Config (or the fields it needs) at construction time.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config carries the base URL, timeouts, intervals and feature flags used
// throughout the control plane.
type Config struct {
	// BaseURL is the object-storage auth endpoint base, e.g.
	// "https://storage.haio.ir". Overridden by HAIO_BASE_URL.
	BaseURL string

	// MountAgentPath, if set, overrides binary discovery for the mount
	// agent adapter (C3). Overridden by HAIO_MOUNT_AGENT.
	MountAgentPath string

	// ConfigDir is the user-scoped root for accounts.json, mount_agent.conf
	// and app.log. Overridden by HAIO_CONFIG_DIR.
	ConfigDir string

	// RequestTimeout bounds every API call (§4.2).
	RequestTimeout time.Duration
	// RetryAttempts and RetryBaseDelay/RetryMaxDelay parameterize C2's
	// exponential backoff for idempotent GET/HEAD retries.
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// ReconcileInterval is the reconciliation tick period (§4.7: 30s is
	// authoritative; 60s in older spec text is superseded).
	ReconcileInterval time.Duration
	// HealthProbeInterval is C5's per-mount health monitor period.
	HealthProbeInterval time.Duration
	// MountVerifyTimeout bounds each of the 3 mount-verification attempts.
	MountVerifyTimeout time.Duration
	// MountVerifyBackoff is the delay between mount attempts.
	MountVerifyBackoff time.Duration
	// MountMaxAttempts is the number of spawn+verify attempts before FAILED.
	MountMaxAttempts int
	// UnmountModeTimeout bounds each unmount mode (graceful/forced/lazy).
	UnmountModeTimeout time.Duration
	// UnmountTotalBudget bounds the whole unmount procedure.
	UnmountTotalBudget time.Duration
	// ClassifyWatchdog bounds a single classify() probe (§4.4).
	ClassifyWatchdog time.Duration

	// MaxConcurrentMounts bounds the cross-bucket worker pool (§5).
	MaxConcurrentMounts int64

	// PreferDriveLetter selects the Windows mount-naming policy (open
	// question in spec.md §9; default false, i.e. path-style mounts under
	// %USERPROFILE%).
	PreferDriveLetter bool
}

// Default returns a Config seeded from environment variables where set,
// falling back to the documented defaults.
func Default() *Config {
	cfg := &Config{
		BaseURL:             "https://storage.haio.ir",
		RequestTimeout:      30 * time.Second,
		RetryAttempts:       3,
		RetryBaseDelay:      500 * time.Millisecond,
		RetryMaxDelay:       4 * time.Second,
		ReconcileInterval:   30 * time.Second,
		HealthProbeInterval: 30 * time.Second,
		MountVerifyTimeout:  10 * time.Second,
		MountVerifyBackoff:  2 * time.Second,
		MountMaxAttempts:    3,
		UnmountModeTimeout:  5 * time.Second,
		UnmountTotalBudget:  20 * time.Second,
		ClassifyWatchdog:    2 * time.Second,
		MaxConcurrentMounts: 8,
		PreferDriveLetter:   false,
	}

	if v := os.Getenv("HAIO_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("HAIO_MOUNT_AGENT"); v != "" {
		cfg.MountAgentPath = v
	}
	if v := os.Getenv("HAIO_CONFIG_DIR"); v != "" {
		cfg.ConfigDir = v
	} else if dir, err := os.UserConfigDir(); err == nil {
		cfg.ConfigDir = filepath.Join(dir, "haio-client")
	} else {
		cfg.ConfigDir = ".haio-client"
	}

	return cfg
}

// EnsureConfigDir creates the config directory (never with elevated rights —
// invariant I5) and returns its path.
func (c *Config) EnsureConfigDir() (string, error) {
	if err := os.MkdirAll(c.ConfigDir, 0o700); err != nil {
		return "", err
	}
	return c.ConfigDir, nil
}

// AccountsPath returns the path to accounts.json.
func (c *Config) AccountsPath() string {
	return filepath.Join(c.ConfigDir, "accounts.json")
}

// MountAgentConfPath returns the path to the shared mount-agent config file.
func (c *Config) MountAgentConfPath() string {
	return filepath.Join(c.ConfigDir, "mount_agent.conf")
}

// LogPath returns the path to the rotated app log.
func (c *Config) LogPath() string {
	return filepath.Join(c.ConfigDir, "app.log")
}

// CacheDir returns the VFS cache root for the mount agent (§6).
func (c *Config) CacheDir() string {
	root, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(c.ConfigDir, "cache")
	}
	return filepath.Join(root, "haio-client")
}
