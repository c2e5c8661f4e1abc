//go:build !windows

package mountpoint

import "github.com/haio/mountctl/internal/config"

// mountPointFor ignores PreferDriveLetter on POSIX; drive letters don't
// exist outside Windows, so path-style is the only option.
func mountPointFor(cfg *config.Config, username, container string) (string, error) {
	return pathStyle(username, container)
}
