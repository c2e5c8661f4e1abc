// Package mountsvc implements C5, the mount supervisor: the per-bucket
// state machine, mount/unmount procedures, and health monitor. Concurrency
// is grounded on the teacher's errgroup usage in authclient.GetJWT,
// generalized here to a bounded semaphore pool (golang.org/x/sync).
package mountsvc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/haio/mountctl/internal/config"
	"github.com/haio/mountctl/internal/haioerr"
	"github.com/haio/mountctl/internal/mountagent"
	"github.com/haio/mountctl/internal/mountfs"
)

// State is a Mount's lifecycle stage (spec.md §4.5).
type State int

const (
	Unmounted State = iota
	Mounting
	Mounted
	Degraded
	Unmounting
	Failed
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "UNMOUNTED"
	case Mounting:
		return "MOUNTING"
	case Mounted:
		return "MOUNTED"
	case Degraded:
		return "DEGRADED"
	case Unmounting:
		return "UNMOUNTING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Key identifies a Mount by the (username, container) pair serialized by a
// keyed lock (spec.md §4.5, §5).
type Key struct {
	Username  string
	Container string
}

func (k Key) String() string { return k.Username + "/" + k.Container }

// Mount is the supervised state of one bucket.
type Mount struct {
	Key        Key
	State      State
	MountPoint string
	StartedAt  time.Time
	LastError  *haioerr.Error

	mu      sync.Mutex
	process *mountagent.Process
	cancel  context.CancelFunc
}

func (m *Mount) snapshot() Mount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Mount{Key: m.Key, State: m.State, MountPoint: m.MountPoint, StartedAt: m.StartedAt, LastError: m.LastError}
}

// Supervisor owns every Mount for the running process.
type Supervisor struct {
	cfg     *config.Config
	logger  zerolog.Logger
	agent   *mountagent.Adapter
	inspect *mountfs.Inspector

	mu     sync.Mutex
	mounts map[Key]*Mount
	locks  map[Key]*sync.Mutex
	sem    *semaphore.Weighted

	events chan Event
}

// Event is published for the view-model bus (C9) to consume.
type Event struct {
	Key   Key
	State State
	Err   *haioerr.Error
}

func New(cfg *config.Config, logger zerolog.Logger, agent *mountagent.Adapter, inspect *mountfs.Inspector) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		logger:  logger,
		agent:   agent,
		inspect: inspect,
		mounts:  map[Key]*Mount{},
		locks:   map[Key]*sync.Mutex{},
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentMounts),
		events:  make(chan Event, 256),
	}
}

// Events returns the supervisor's outgoing event stream.
func (s *Supervisor) Events() <-chan Event { return s.events }

func (s *Supervisor) publish(k Key, st State, err *haioerr.Error) {
	select {
	case s.events <- Event{Key: k, State: st, Err: err}:
	default:
		s.logger.Warn().Str("key", k.String()).Msg("event channel full, dropping state event")
	}
}

func (s *Supervisor) keyLock(k Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

func (s *Supervisor) getOrCreate(k Key, mountPoint string) *Mount {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mounts[k]
	if !ok {
		m = &Mount{Key: k, State: Unmounted, MountPoint: mountPoint}
		s.mounts[k] = m
	}
	return m
}

// Get returns a snapshot of the current Mount state, if any.
func (s *Supervisor) Get(k Key) (Mount, bool) {
	s.mu.Lock()
	m, ok := s.mounts[k]
	s.mu.Unlock()
	if !ok {
		return Mount{}, false
	}
	return m.snapshot(), true
}

// KnownMountPoints returns the mount point of every tracked Mount, keyed by
// path, for C4.FindOrphanMounts to exclude.
func (s *Supervisor) KnownMountPoints() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.mounts))
	for _, m := range s.mounts {
		out[m.MountPoint] = true
	}
	return out
}

// Reset transitions a FAILED Mount back to UNMOUNTED (spec.md §4.5).
func (s *Supervisor) Reset(k Key) error {
	s.mu.Lock()
	m, ok := s.mounts[k]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State != Failed {
		return fmt.Errorf("mountsvc: reset only valid from FAILED, was %s", m.State)
	}
	m.State = Unmounted
	m.LastError = nil
	s.publish(k, Unmounted, nil)
	return nil
}

// Mount runs the mount procedure for k (spec.md §4.5). It serializes on
// the per-key lock and is bounded by the cross-bucket worker pool.
func (s *Supervisor) Mount(ctx context.Context, k Key, mountPoint, endpoint, username, token string) error {
	lock := s.keyLock(k)
	lock.Lock()
	defer lock.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	m := s.getOrCreate(k, mountPoint)

	m.mu.Lock()
	if m.State == Mounted {
		// Re-verify before declaring idempotent success (spec.md §5: "always
		// re-classify before acting").
		if s.inspect.Classify(mountPoint) == mountfs.LiveMount {
			m.mu.Unlock()
			return nil
		}
		m.State = Degraded
	}
	if m.State == Mounting || m.State == Unmounting {
		m.mu.Unlock()
		return fmt.Errorf("mountsvc: %s busy in state %s", k, m.State)
	}
	m.State = Mounting
	mctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()
	s.publish(k, Mounting, nil)

	err := s.runMountProcedure(mctx, m, mountPoint, endpoint, username, token)

	m.mu.Lock()
	if err != nil {
		m.State = Failed
		he := asHaioErr(err)
		m.LastError = he
		m.mu.Unlock()
		s.publish(k, Failed, he)
		return err
	}
	m.State = Mounted
	m.StartedAt = time.Now()
	m.mu.Unlock()
	s.publish(k, Mounted, nil)
	return nil
}

func (s *Supervisor) runMountProcedure(ctx context.Context, m *Mount, mountPoint, endpoint, username, token string) error {
	class := s.inspect.Classify(mountPoint)

	switch class {
	case mountfs.LiveMount:
		return nil
	case mountfs.StaleMount, mountfs.NonDir:
		if err := s.agent.Unmount(ctx, mountPoint, s.cfg.UnmountModeTimeout); err != nil {
			s.logger.Warn().Err(err).Str("mount_point", mountPoint).Msg("pre-mount cleanup unmount failed, attempting manual removal")
		}
		if err := cleanMountPoint(mountPoint); err != nil {
			return haioerr.Wrap(haioerr.KindMountPointUncleanable, err, "could not clean stale mount point")
		}
	case mountfs.NonEmptyDir:
		return haioerr.New(haioerr.KindMountPointNotEmpty, mountPoint+" is not empty and not a mount")
	case mountfs.Absent:
		if err := os.MkdirAll(mountPoint, 0o755); err != nil {
			return haioerr.Wrap(haioerr.KindMountPointUncleanable, err, "could not create mount point")
		}
	case mountfs.EmptyDir:
		// already usable
	}

	configName := mountagent.ConfigNameFor(username)
	if err := mountagent.WriteAgentConfig(s.cfg.MountAgentConfPath(), configName, endpoint, username, token); err != nil {
		return haioerr.Wrap(haioerr.KindAgentCrashed, err, "could not write mount agent config")
	}

	agentPath, err := s.agent.Resolve()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MountMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		argv := mountagent.BuildMountArgv(agentPath, configName, m.Key.Container, mountPoint, s.cfg.CacheDir(), nil)
		proc, spawnErr := s.agent.SpawnMount(ctx, argv)
		if spawnErr != nil {
			lastErr = spawnErr
			time.Sleep(s.cfg.MountVerifyBackoff)
			continue
		}
		m.mu.Lock()
		m.process = proc
		m.mu.Unlock()

		if s.pollForLiveMount(ctx, mountPoint, s.cfg.MountVerifyTimeout) {
			return nil
		}
		lastErr = haioerr.New(haioerr.KindMountVerifyTimeout, "mount not visible within timeout")
		time.Sleep(s.cfg.MountVerifyBackoff)
	}
	return lastErr
}

func (s *Supervisor) pollForLiveMount(ctx context.Context, mountPoint string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.inspect.Classify(mountPoint) == mountfs.LiveMount {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
	return false
}

// Unmount runs the unmount procedure for k (spec.md §4.5).
func (s *Supervisor) Unmount(ctx context.Context, k Key) error {
	lock := s.keyLock(k)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	m, ok := s.mounts[k]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	m.mu.Lock()
	if m.State == Unmounted {
		m.mu.Unlock()
		return nil
	}
	m.State = Unmounting
	proc := m.process
	mountPoint := m.MountPoint
	m.mu.Unlock()
	s.publish(k, Unmounting, nil)

	unmountCtx, cancel := context.WithTimeout(ctx, s.cfg.UnmountTotalBudget)
	defer cancel()

	err := s.agent.Unmount(unmountCtx, mountPoint, s.cfg.UnmountModeTimeout)
	if err != nil && proc != nil {
		s.logger.Warn().Err(err).Str("mount_point", mountPoint).Msg("falling back to killing mount agent process")
		_ = proc.Kill()
	}

	if s.inspect.Classify(mountPoint) != mountfs.LiveMount {
		_ = removeIfEmpty(mountPoint)
	}

	m.mu.Lock()
	m.State = Unmounted
	m.process = nil
	m.mu.Unlock()
	s.publish(k, Unmounted, nil)
	return nil
}

// Cancel cancels the context of any in-flight Mount for k: the live-mount
// poll and any further spawn attempts stop, and that Mount call returns the
// context error, leaving the Mount FAILED. Cancel itself does not change
// the Mount's state, does not move it to UNMOUNTING, and does not unmount.
func (s *Supervisor) Cancel(k Key) {
	s.mu.Lock()
	m, ok := s.mounts[k]
	s.mu.Unlock()
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

// HealthCheck runs the periodic health probe for every tracked MOUNTED
// Mount (spec.md §4.5: every 30s).
func (s *Supervisor) HealthCheck(ctx context.Context) {
	s.mu.Lock()
	snapshot := make([]*Mount, 0, len(s.mounts))
	for _, m := range s.mounts {
		snapshot = append(snapshot, m)
	}
	s.mu.Unlock()

	for _, m := range snapshot {
		m.mu.Lock()
		state := m.State
		mountPoint := m.MountPoint
		m.mu.Unlock()
		if state != Mounted {
			continue
		}

		class := s.inspect.Classify(mountPoint)
		if class == mountfs.StaleMount || class == mountfs.NonDir {
			m.mu.Lock()
			m.State = Degraded
			m.mu.Unlock()
			s.publish(m.Key, Degraded, haioerr.New(haioerr.KindStaleMountRecovered, "health probe observed "+class.String()))
		}
	}
}

// RunHealthLoop ticks HealthCheck every cfg.HealthProbeInterval until ctx
// is cancelled.
func (s *Supervisor) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HealthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.HealthCheck(ctx)
		}
	}
}

func cleanMountPoint(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(path, 0o755)
		}
		return err
	}
	if !fi.IsDir() {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return os.MkdirAll(path, 0o755)
}

func removeIfEmpty(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil
	}
	if len(entries) != 0 {
		return nil
	}
	return os.Remove(filepath.Clean(path))
}

func asHaioErr(err error) *haioerr.Error {
	var he *haioerr.Error
	if e, ok := err.(*haioerr.Error); ok {
		he = e
	} else {
		he = haioerr.Wrap(haioerr.KindAgentCrashed, err, err.Error())
	}
	return he
}
