//go:build windows

package persistence

import (
	"errors"
	"os/exec"
	"syscall"

	"github.com/haio/mountctl/internal/haioerr"
)

// UACHelper elevates by re-launching a command with ShellExecute's "runas"
// verb, which surfaces the standard Windows UAC consent dialog.
type UACHelper struct{}

func (UACHelper) RunElevated(name string, args []string) error {
	cmd := exec.Command("powershell", append([]string{
		"-NoProfile", "-Command",
		"Start-Process", "-FilePath", name, "-ArgumentList", argvToPSList(args), "-Verb", "RunAs", "-Wait",
	})...)
	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.ExitStatus() == 1223 {
			// ERROR_CANCELLED: the user declined the UAC prompt.
			return haioerr.New(haioerr.KindPersistUserCancelled, "elevation prompt was dismissed")
		}
	}
	return haioerr.Wrap(haioerr.KindPersistElevationFailed, err, "elevated process launch failed")
}

func argvToPSList(args []string) string {
	out := "@("
	for i, a := range args {
		if i > 0 {
			out += ","
		}
		out += "'" + a + "'"
	}
	return out + ")"
}
