//go:build !windows

package persistence

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

func stablePathHeuristic(path string) bool {
	volatileFragments := []string{"/tmp/", "/.mount_", "/squashfs-root/", "/var/folders/"}
	for _, f := range volatileFragments {
		if strings.Contains(path, f) {
			return false
		}
	}
	return true
}

// systemdBackend writes user-scoped systemd unit files (spec.md §4.6).
type systemdBackend struct {
	logger zerolog.Logger
	helper PrivilegeHelper
}

func newPlatformBackend(logger zerolog.Logger, helper PrivilegeHelper) backend {
	return &systemdBackend{logger: logger, helper: helper}
}

func userUnitDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "systemd", "user"), nil
}

func (b *systemdBackend) unitPath(e Entry) (string, error) {
	dir, err := userUnitDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, unitName(e.Username, e.Container)), nil
}

func (b *systemdBackend) unitContents(e Entry, agentPath string) string {
	cacheDir := filepath.Join(os.Getenv("HOME"), ".cache", "haio-client")
	u, _ := user.Current()
	username := ""
	if u != nil {
		username = u.Username
	}

	return fmt.Sprintf(`[Unit]
Description=Haio auto-mount for %[1]s/%[2]s
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=%[5]s
ExecStartPre=/bin/mkdir -p %[3]s %[4]s
ExecStart=%[6]s mount --config haio_%[1]s --container %[2]s --mount-point %[3]s --cache-dir %[4]s
ExecStop=/bin/sh -c '%[6]s unmount --mount-point %[3]s --mode graceful || %[6]s unmount --mount-point %[3]s --mode lazy'
Restart=on-failure
RestartSec=10
StartLimitIntervalSec=60
StartLimitBurst=3

[Install]
WantedBy=default.target
`, e.Username, e.Container, e.MountPoint, cacheDir, username, agentPath)
}

func (b *systemdBackend) install(e Entry, agentPath string) error {
	path, err := b.unitPath(e)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(b.unitContents(e, agentPath)), 0o644); err != nil {
		return err
	}

	name := unitName(e.Username, e.Container)
	for _, args := range [][]string{
		{"--user", "daemon-reload"},
		{"--user", "enable", name},
		{"--user", "start", name},
	} {
		if err := runSystemctl(args); err != nil {
			return err
		}
	}
	return nil
}

func (b *systemdBackend) remove(e Entry) error {
	path, err := b.unitPath(e)
	if err != nil {
		return err
	}

	name := unitName(e.Username, e.Container)
	_ = runSystemctl([]string{"--user", "stop", name})
	_ = runSystemctl([]string{"--user", "disable", name})

	if _, statErr := os.Stat(path); statErr == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return runSystemctl([]string{"--user", "daemon-reload"})
}

func (b *systemdBackend) isInstalled(e Entry) (bool, error) {
	path, err := b.unitPath(e)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(path)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, statErr
}

func (b *systemdBackend) listInstalled(username string) ([]string, error) {
	dir, err := userUnitDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	prefix := "haio-" + username + "-"
	var containers []string
	for _, de := range entries {
		name := de.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".service") {
			containers = append(containers, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".service"))
		}
	}
	return containers, nil
}

func runSystemctl(args []string) error {
	cmd := exec.Command("systemctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %v: %w: %s", args, err, out)
	}
	return nil
}

// ManualCleanupCommands lists the exact shell commands to remove the
// artifact by hand (spec.md §4.6 remove(), §7 remediation payload).
func ManualCleanupCommands(e Entry) []string {
	name := unitName(e.Username, e.Container)
	return []string{
		fmt.Sprintf("systemctl --user stop %s", name),
		fmt.Sprintf("systemctl --user disable %s", name),
		fmt.Sprintf("rm -f ~/.config/systemd/user/%s", name),
		"systemctl --user daemon-reload",
	}
}
