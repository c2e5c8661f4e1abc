//go:build windows

package mountagent

import (
	"context"
	"os/exec"
	"strings"

	"github.com/haio/mountctl/internal/haioerr"
)

const agentBinaryName = "haio-mount-agent.exe"

func wellKnownAgentPaths() []string {
	return []string{
		`C:\Program Files\Haio\haio-mount-agent.exe`,
		`C:\Program Files (x86)\Haio\haio-mount-agent.exe`,
	}
}

// isStablePath rejects paths under common ephemeral extraction locations
// (installer temp dirs, user temp), per invariant I6.
func isStablePath(path string) bool {
	lower := strings.ToLower(path)
	volatileFragments := []string{`\temp\`, `\appdata\local\temp\`, `\_mei`}
	for _, f := range volatileFragments {
		if strings.Contains(lower, f) {
			return false
		}
	}
	return true
}

// detach is a no-op on Windows: it sets no SysProcAttr, so the agent gets
// neither a new process group nor any console-creation flags.
func detach(cmd *exec.Cmd) {}

// unmountOnce invokes the agent's native unmount entry point; Windows has
// no fusermount/umount equivalent, so all three modes map to the same
// native call with an escalating --force flag (spec.md §4.3).
func unmountOnce(ctx context.Context, mountPoint string, mode UnmountMode) error {
	args := []string{"unmount", "--mount-point", mountPoint}
	switch mode {
	case ModeForced, ModeLazy:
		args = append(args, "--force")
	}

	cmd := exec.CommandContext(ctx, agentBinaryName, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return haioerr.Wrap(haioerr.KindMountPointUncleanable, err, string(out))
	}
	return nil
}
