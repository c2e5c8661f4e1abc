//go:build !windows

package mountagent

import (
	"context"
	"os/exec"
	"strings"
	"syscall"

	"github.com/haio/mountctl/internal/haioerr"
)

const agentBinaryName = "haio-mount-agent"

func wellKnownAgentPaths() []string {
	return []string{
		"/usr/local/bin/" + agentBinaryName,
		"/usr/bin/" + agentBinaryName,
		"/opt/haio/bin/" + agentBinaryName,
	}
}

// isStablePath rejects paths that look like ephemeral extraction
// directories (AppImage mounts, snap confinement paths, temp dirs), per
// invariant I6.
func isStablePath(path string) bool {
	volatileFragments := []string{"/tmp/", "/.mount_", "/squashfs-root/", "/snap/", "/var/folders/"}
	for _, f := range volatileFragments {
		if strings.Contains(path, f) {
			return false
		}
	}
	return true
}

// detach places the child in its own process group so it survives the
// parent's controlling terminal going away (spec.md §4.3: "detached").
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// unmountOnce runs the Unix unmount command for a single mode.
func unmountOnce(ctx context.Context, mountPoint string, mode UnmountMode) error {
	var name string
	var args []string
	switch mode {
	case ModeGraceful:
		name, args = "fusermount", []string{"-u", mountPoint}
	case ModeForced:
		name, args = "fusermount", []string{"-uz", mountPoint}
	case ModeLazy:
		name, args = "umount", []string{"-l", mountPoint}
	default:
		return haioerr.New(haioerr.KindMountPointUncleanable, "unknown unmount mode")
	}

	if _, err := exec.LookPath(name); err != nil {
		// fusermount may be named fusermount3 on newer distros.
		if name == "fusermount" {
			if alt, altErr := exec.LookPath("fusermount3"); altErr == nil {
				name = alt
			} else {
				return err
			}
		} else {
			return err
		}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return haioerr.Wrap(haioerr.KindMountPointUncleanable, err, string(out))
	}
	return nil
}
