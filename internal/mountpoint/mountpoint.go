// Package mountpoint resolves the filesystem path (or, on Windows, drive
// letter) a given account/container mount is exposed at. Kept separate from
// config so every call site (CLI commands, the dispatcher) shares one
// naming policy instead of re-deriving it.
package mountpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/haio/mountctl/internal/config"
)

// For returns the mount point a container should be mounted at for the
// given account, honoring cfg.PreferDriveLetter on Windows (spec.md §9 open
// question). On POSIX it is always a path under the user's home directory.
func For(cfg *config.Config, username, container string) (string, error) {
	return mountPointFor(cfg, username, container)
}

func pathStyle(username, container string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fmt.Sprintf("haio-%s-%s", username, container)), nil
}
