// Package persistence implements C6, the boot-persistence installer: a
// systemd-unit backend for Unix and a Task-Scheduler backend for Windows,
// behind a PrivilegeHelper abstraction for the cases that need elevation.
package persistence

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/haio/mountctl/internal/haioerr"
)

// PrivilegeHelper runs a command with elevated privileges, per the
// redesign note substituting a single elevation seam for per-platform ad
// hoc sudo calls.
type PrivilegeHelper interface {
	// RunElevated executes name with args, requesting elevation from the
	// user. Returns haioerr.KindPersistUserCancelled if the user declines.
	RunElevated(name string, args []string) error
}

// Entry identifies one installed PersistenceEntry.
type Entry struct {
	Username   string
	Container  string
	MountPoint string
}

func unitName(username, container string) string {
	return fmt.Sprintf("haio-%s-%s.service", username, container)
}

func taskName(username, container string) string {
	return fmt.Sprintf("HaioAutoMount_%s_%s", username, container)
}

// Installer drives the platform backend.
type Installer struct {
	logger  zerolog.Logger
	helper  PrivilegeHelper
	backend backend
}

type backend interface {
	install(e Entry, agentPath string) error
	remove(e Entry) error
	isInstalled(e Entry) (bool, error)
	listInstalled(username string) ([]string, error)
}

func New(logger zerolog.Logger, helper PrivilegeHelper) *Installer {
	return &Installer{logger: logger, helper: helper, backend: newPlatformBackend(logger, helper)}
}

// Install creates the boot-persistence artifact for (username, container).
// agentPath must be a stable, non-volatile path (invariant I6); callers
// should have already checked mountagent.Adapter.IsPathStable.
func (i *Installer) Install(e Entry, agentPath string) error {
	if !isAgentPathStable(agentPath) {
		return haioerr.New(haioerr.KindAgentVolatilePath, "refusing to install persistence with a volatile binary path: "+agentPath)
	}
	return i.backend.install(e, agentPath)
}

// Remove disables, stops and deletes the artifact. Idempotent: succeeds
// when already absent (invariant I7).
func (i *Installer) Remove(e Entry) error {
	return i.backend.remove(e)
}

// IsInstalled reports whether a PersistenceEntry exists for (username, container).
func (i *Installer) IsInstalled(e Entry) (bool, error) {
	return i.backend.isInstalled(e)
}

// ListInstalled returns the containers with an installed PersistenceEntry
// for username, used by C7 to detect orphaned entries.
func (i *Installer) ListInstalled(username string) ([]string, error) {
	return i.backend.listInstalled(username)
}

func isAgentPathStable(path string) bool {
	if path == "" {
		return false
	}
	return stablePathHeuristic(path)
}
