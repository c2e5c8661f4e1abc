//go:build !windows

package persistence

import (
	"errors"
	"os/exec"

	"github.com/haio/mountctl/internal/haioerr"
)

// PolkitHelper elevates via pkexec, the desktop-integrated Polkit agent.
type PolkitHelper struct{}

func (PolkitHelper) RunElevated(name string, args []string) error {
	full := append([]string{name}, args...)
	cmd := exec.Command("pkexec", full...)
	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 126 {
		// pkexec's documented exit code for "the user dismissed the
		// authentication dialog or the authorization could not be obtained".
		return haioerr.New(haioerr.KindPersistUserCancelled, "elevation prompt was dismissed")
	}
	return haioerr.Wrap(haioerr.KindPersistElevationFailed, err, "pkexec failed")
}
