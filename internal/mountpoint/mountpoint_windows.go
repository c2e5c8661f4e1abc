//go:build windows

package mountpoint

import (
	"fmt"
	"os"

	"github.com/haio/mountctl/internal/haioerr"

	"github.com/haio/mountctl/internal/config"
)

// mountPointFor picks the next free drive letter (D: upward, leaving A-C for
// removable/legacy drives) when cfg.PreferDriveLetter is set, otherwise
// falls back to the same path-style naming used on POSIX.
func mountPointFor(cfg *config.Config, username, container string) (string, error) {
	if !cfg.PreferDriveLetter {
		return pathStyle(username, container)
	}
	for letter := 'D'; letter <= 'Z'; letter++ {
		drive := fmt.Sprintf("%c:\\", letter)
		if _, err := os.Stat(drive); os.IsNotExist(err) {
			return fmt.Sprintf("%c:", letter), nil
		}
	}
	return "", haioerr.New(haioerr.KindAgentVolatilePath, "no free drive letter available for "+username+"/"+container)
}
