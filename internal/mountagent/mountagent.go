// Package mountagent implements C3, the adapter around the external mount
// agent binary: locating it, building its argv, spawning it detached, and
// tearing a mount down through graceful/forced/lazy fallbacks. Grounded on
// the exec-and-supervise shape of the S3 CSI driver's node mounter
// (other_examples/aff79393_awslabs-mountpoint-s3-csi-driver).
package mountagent

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haio/mountctl/internal/config"
	"github.com/haio/mountctl/internal/haioerr"
)

// UnmountMode selects the fallback severity used by Unmount (spec.md §4.3).
type UnmountMode int

const (
	ModeGraceful UnmountMode = iota
	ModeForced
	ModeLazy
)

func (m UnmountMode) String() string {
	switch m {
	case ModeGraceful:
		return "graceful"
	case ModeForced:
		return "forced"
	case ModeLazy:
		return "lazy"
	default:
		return "unknown"
	}
}

// ringBufferSize bounds the captured stdout/stderr of a spawned agent.
const ringBufferSize = 64 * 1024

// ringBuffer is a fixed-capacity byte ring, used to capture the tail of a
// mount agent's output without unbounded memory growth.
type ringBuffer struct {
	mu  sync.Mutex
	buf []byte
	cap int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{cap: capacity}
}

func (r *ringBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, p...)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
	return len(p), nil
}

func (r *ringBuffer) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.buf)
}

// Process wraps a spawned mount-agent invocation.
type Process struct {
	cmd *exec.Cmd
	// InvocationID uniquely identifies this spawn attempt for log
	// correlation. Every SpawnMount call mints a new one, so each retry
	// within the same Mount() call gets its own id.
	InvocationID string
	Output       *ringBuffer
}

// Pid returns the OS process id, or 0 if the process already exited.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Kill sends SIGKILL (or the platform equivalent) as a last resort.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Wait blocks until the process exits, returning its error.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// Adapter resolves and drives the mount-agent binary.
type Adapter struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu           sync.Mutex
	resolvedPath string
}

func New(cfg *config.Config, logger zerolog.Logger) *Adapter {
	return &Adapter{cfg: cfg, logger: logger}
}

// wellKnownPaths lists system install locations searched last, per platform.
var wellKnownPaths = wellKnownAgentPaths()

// Resolve finds the mount-agent binary in the order mandated by spec.md
// §4.3: bundled path, env override, PATH, well-known system paths. The
// result is cached for the process lifetime because it must be stable
// across calls (PersistenceEntry artifacts embed it).
func (a *Adapter) Resolve() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.resolvedPath != "" {
		return a.resolvedPath, nil
	}

	if exe, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(exe), agentBinaryName)
		if st, err := os.Stat(bundled); err == nil && !st.IsDir() {
			a.resolvedPath = bundled
			return a.resolvedPath, nil
		}
	}

	if a.cfg.MountAgentPath != "" {
		if st, err := os.Stat(a.cfg.MountAgentPath); err == nil && !st.IsDir() {
			a.resolvedPath = a.cfg.MountAgentPath
			return a.resolvedPath, nil
		}
	}

	if p, err := exec.LookPath(agentBinaryName); err == nil {
		a.resolvedPath = p
		return a.resolvedPath, nil
	}

	for _, p := range wellKnownPaths {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			a.resolvedPath = p
			return a.resolvedPath, nil
		}
	}

	return "", haioerr.New(haioerr.KindAgentNotFound, "mount agent binary not found in bundled path, HAIO_MOUNT_AGENT, PATH, or well-known locations")
}

// IsPathStable reports whether path is stable, i.e. does not look like a
// temporary extraction directory; an unstable path blocks
// PersistenceEntry installation (I6).
func (a *Adapter) IsPathStable(path string) bool {
	return isStablePath(path)
}

// BuildMountArgv returns the argv for a foreground mount with the caching
// and timeout options mandated by spec.md §6.
func BuildMountArgv(agentPath, configName, container, mountPoint string, cacheDir string, extraOptions []string) []string {
	argv := []string{
		agentPath,
		"mount",
		"--config", configName,
		"--container", container,
		"--mount-point", mountPoint,
		"--dir-cache-time", "10s",
		"--poll-interval", "1m",
		"--vfs-cache-mode", "full",
		"--vfs-cache-max-age", "24h",
		"--vfs-write-back", "10s",
		"--buffer-size", "32M",
		"--attr-timeout", "1m",
		"--cache-dir", cacheDir,
		"--log-level", "INFO",
		"--allow-non-empty",
	}
	return append(argv, extraOptions...)
}

// SpawnMount starts the mount agent detached from the controlling terminal
// (new process group), with stdout/stderr captured to a ring buffer
// (spec.md §4.3).
func (a *Adapter) SpawnMount(ctx context.Context, argv []string) (*Process, error) {
	if len(argv) == 0 {
		return nil, haioerr.New(haioerr.KindAgentCrashed, "empty argv")
	}

	invocationID := uuid.New().String()

	cmd := exec.Command(argv[0], argv[1:]...)
	detach(cmd)

	rb := newRingBuffer(ringBufferSize)
	cmd.Stdout = rb
	cmd.Stderr = rb

	if err := cmd.Start(); err != nil {
		return nil, haioerr.Wrap(haioerr.KindAgentCrashed, err, "failed to start mount agent")
	}

	a.logger.Info().Strs("argv", argv).Str("invocation_id", invocationID).Int("pid", cmd.Process.Pid).Msg("mount agent spawned")
	return &Process{cmd: cmd, InvocationID: invocationID, Output: rb}, nil
}

// Unmount tears a mount point down, falling through graceful -> forced ->
// lazy, bounded by perModeTimeout each (spec.md §4.3, §4.5).
func (a *Adapter) Unmount(ctx context.Context, mountPoint string, perModeTimeout time.Duration) error {
	modes := []UnmountMode{ModeGraceful, ModeForced, ModeLazy}
	var lastErr error
	for _, mode := range modes {
		modeCtx, cancel := context.WithTimeout(ctx, perModeTimeout)
		err := unmountOnce(modeCtx, mountPoint, mode)
		cancel()
		if err == nil {
			return nil
		}
		a.logger.Warn().Err(err).Str("mount_point", mountPoint).Str("mode", mode.String()).Msg("unmount attempt failed")
		lastErr = err
	}
	return haioerr.Wrap(haioerr.KindMountPointUncleanable, lastErr, fmt.Sprintf("all unmount modes failed for %s", mountPoint))
}

// agentConfFile is the shape of the shared mount-agent config (spec.md §6:
// "keyed by haio_<username>").
type agentConfFile map[string]agentConfEntry

type agentConfEntry struct {
	Endpoint    string `json:"endpoint"`
	User        string `json:"user"`
	Token       string `json:"token"`
	StorageType string `json:"type"`
}

// WriteAgentConfig merges a config_name entry into the shared config file,
// atomically (parse-merge-write, spec.md §4.3, §5).
func WriteAgentConfig(path, configName, endpoint, username, token string) error {
	return writeAgentConfigEntry(path, configName, agentConfEntry{
		Endpoint:    endpoint,
		User:        username,
		Token:       token,
		StorageType: "swift",
	})
}

// ConfigNameFor builds the conventional config_name (spec.md §6: haio_<username>).
func ConfigNameFor(username string) string {
	return "haio_" + username
}

// scanOutput splits the ring buffer into lines.
func scanOutput(rb *ringBuffer) []string {
	sc := bufio.NewScanner(strings.NewReader(rb.String()))
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}
