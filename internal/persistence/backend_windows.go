//go:build windows

package persistence

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

func stablePathHeuristic(path string) bool {
	lower := strings.ToLower(path)
	volatileFragments := []string{`\temp\`, `\appdata\local\temp\`, `\_mei`}
	for _, f := range volatileFragments {
		if strings.Contains(lower, f) {
			return false
		}
	}
	return true
}

// taskSchedulerBackend writes a launcher .bat script plus a logon-trigger
// scheduled task (spec.md §4.6).
type taskSchedulerBackend struct {
	logger zerolog.Logger
	helper PrivilegeHelper
}

func newPlatformBackend(logger zerolog.Logger, helper PrivilegeHelper) backend {
	return &taskSchedulerBackend{logger: logger, helper: helper}
}

func launcherPath(e Entry) (string, error) {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		return "", fmt.Errorf("persistence: APPDATA not set")
	}
	dir := filepath.Join(appData, "haio-client", "automount")
	return filepath.Join(dir, e.Username+"-"+e.Container+".bat"), nil
}

func launcherContents(e Entry, agentPath string) string {
	cacheDir := filepath.Join(os.Getenv("LOCALAPPDATA"), "haio-client", "cache")
	return fmt.Sprintf("@echo off\r\n\"%s\" mount --config haio_%s --container %s --mount-point \"%s\" --cache-dir \"%s\"\r\n",
		agentPath, e.Username, e.Container, e.MountPoint, cacheDir)
}

func (b *taskSchedulerBackend) install(e Entry, agentPath string) error {
	path, err := launcherPath(e)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(launcherContents(e, agentPath)), 0o644); err != nil {
		return err
	}

	name := taskName(e.Username, e.Container)
	args := []string{"/Create", "/TN", name, "/TR", path, "/SC", "ONLOGON", "/RL", "LIMITED", "/F"}
	if err := runSchtasks(args); err != nil {
		return err
	}
	return nil
}

func (b *taskSchedulerBackend) remove(e Entry) error {
	name := taskName(e.Username, e.Container)
	_ = runSchtasks([]string{"/End", "/TN", name})
	if err := runSchtasks([]string{"/Delete", "/TN", name, "/F"}); err != nil {
		// Already absent is success (invariant I7).
		if !strings.Contains(err.Error(), "cannot find") {
			return err
		}
	}

	path, err := launcherPath(e)
	if err == nil {
		_ = os.Remove(path)
	}
	return nil
}

func (b *taskSchedulerBackend) isInstalled(e Entry) (bool, error) {
	name := taskName(e.Username, e.Container)
	err := runSchtasks([]string{"/Query", "/TN", name})
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), "cannot find") {
		return false, nil
	}
	return false, err
}

func (b *taskSchedulerBackend) listInstalled(username string) ([]string, error) {
	appData := os.Getenv("APPDATA")
	dir := filepath.Join(appData, "haio-client", "automount")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	prefix := username + "-"
	var containers []string
	for _, de := range entries {
		name := de.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bat") {
			containers = append(containers, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".bat"))
		}
	}
	return containers, nil
}

func runSchtasks(args []string) error {
	cmd := exec.Command("schtasks", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("schtasks %v: %w: %s", args, err, out)
	}
	return nil
}

// ManualCleanupCommands lists the exact shell commands to remove the
// artifact by hand (spec.md §4.6 remove(), §7 remediation payload).
func ManualCleanupCommands(e Entry) []string {
	name := taskName(e.Username, e.Container)
	path, _ := launcherPath(e)
	return []string{
		fmt.Sprintf(`schtasks /End /TN %s`, name),
		fmt.Sprintf(`schtasks /Delete /TN %s /F`, name),
		fmt.Sprintf(`del "%s"`, path),
	}
}
