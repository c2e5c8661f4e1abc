package viewmodel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/skratchdot/open-golang/open"

	"github.com/haio/mountctl/internal/config"
	"github.com/haio/mountctl/internal/haioapi"
	"github.com/haio/mountctl/internal/haioerr"
	"github.com/haio/mountctl/internal/mountagent"
	"github.com/haio/mountctl/internal/mountpoint"
	"github.com/haio/mountctl/internal/mountsvc"
	"github.com/haio/mountctl/internal/persistence"
	"github.com/haio/mountctl/internal/tempurl"
)

// Opener abstracts the host file-manager launch so tests don't need a real
// desktop session; production wiring points it at open.Run (open-golang).
type Opener func(path string) error

// Dispatcher drains the Bus's command channel and turns each command into
// calls against C2 (API), C5 (mount supervisor), C6 (persistence) and C8
// (TempURL), per-bucket-serialized per spec.md §5.
type Dispatcher struct {
	logger  zerolog.Logger
	cfg     *config.Config
	bus     *Bus
	api     *haioapi.Client
	mounts  *mountsvc.Supervisor
	persist *persistence.Installer
	agent   *mountagent.Adapter
	urls    *tempurl.Manager
	open    Opener

	username string
	endpoint string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	cancel context.CancelFunc
}

// NewDispatcher wires the command dispatcher. open defaults to
// open-golang's open.Run when nil.
func NewDispatcher(logger zerolog.Logger, cfg *config.Config, bus *Bus, api *haioapi.Client, mounts *mountsvc.Supervisor, persist *persistence.Installer, agent *mountagent.Adapter, urls *tempurl.Manager, username, endpoint string, o Opener) *Dispatcher {
	if o == nil {
		o = open.Run
	}
	return &Dispatcher{
		logger:   logger,
		cfg:      cfg,
		bus:      bus,
		api:      api,
		mounts:   mounts,
		persist:  persist,
		agent:    agent,
		urls:     urls,
		open:     o,
		username: username,
		endpoint: endpoint,
		locks:    map[string]*sync.Mutex{},
	}
}

func (d *Dispatcher) bucketLock(container string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.locks[container]
	if !ok {
		m = &sync.Mutex{}
		d.locks[container] = m
	}
	return m
}

// Run drains commands until ctx is cancelled. Each bucket's commands are
// queued to that bucket's own goroutine so that a slow operation on one
// bucket never blocks commands for another (cross-bucket parallelism, §5),
// while same-bucket commands run one at a time in arrival order.
func (d *Dispatcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	queues := map[string]chan Command{}
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-d.bus.NextCommand():
			q, ok := queues[cmd.Container]
			if !ok {
				q = make(chan Command, 64)
				queues[cmd.Container] = q
				go func() {
					for c := range q {
						d.dispatch(ctx, c)
					}
				}()
			}
			q <- cmd
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CmdMount:
		d.withBucketLock(cmd.Container, func() { d.handleMount(ctx, cmd.Container) })
	case CmdUnmount:
		d.withBucketLock(cmd.Container, func() { d.handleUnmount(ctx, cmd.Container) })
	case CmdTogglePersist:
		d.withBucketLock(cmd.Container, func() { d.handleTogglePersist(ctx, cmd.Container) })
	case CmdShare:
		d.withBucketLock(cmd.Container, func() { d.handleShare(ctx, cmd.Container, cmd.Object) })
	case CmdBrowse:
		d.handleBrowse(cmd.Container)
	case CmdLogout:
		d.handleLogout(ctx)
	}
}

func (d *Dispatcher) withBucketLock(container string, fn func()) {
	lock := d.bucketLock(container)
	lock.Lock()
	defer lock.Unlock()
	fn()
}

func (d *Dispatcher) key(container string) mountsvc.Key {
	return mountsvc.Key{Username: d.username, Container: container}
}

func (d *Dispatcher) handleMount(ctx context.Context, container string) {
	d.bus.SetMountState(container, mountsvc.Mounting, "", true)
	d.bus.ProgressStep("mount", 1, 1)

	mountPoint, err := mountpoint.For(d.cfg, d.username, container)
	if err != nil {
		d.bus.SetMountState(container, mountsvc.Failed, "", false)
		d.bus.SurfaceError(asHaioErr(err))
		return
	}

	if err := d.mounts.Mount(ctx, d.key(container), mountPoint, d.endpoint, d.username, d.api.Token()); err != nil {
		d.bus.SetMountState(container, mountsvc.Failed, "", false)
		d.bus.SurfaceError(asHaioErr(err))
		return
	}

	d.bus.SetMountState(container, mountsvc.Mounted, mountPoint, false)
	d.bus.StatusMessage(fmt.Sprintf("%s mounted", container), 3*time.Second)
}

func (d *Dispatcher) handleUnmount(ctx context.Context, container string) {
	d.bus.SetMountState(container, mountsvc.Unmounting, "", true)
	if err := d.mounts.Unmount(ctx, d.key(container)); err != nil {
		d.bus.SetMountState(container, mountsvc.Failed, "", false)
		d.bus.SurfaceError(asHaioErr(err))
		return
	}
	d.bus.SetMountState(container, mountsvc.Unmounted, "", false)
	d.bus.StatusMessage(fmt.Sprintf("%s unmounted", container), 3*time.Second)
}

func (d *Dispatcher) handleTogglePersist(ctx context.Context, container string) {
	entry := persistence.Entry{Username: d.username, Container: container}
	installed, err := d.persist.IsInstalled(entry)
	if err != nil {
		d.bus.SurfaceError(asHaioErr(err))
		return
	}

	if installed {
		if err := d.persist.Remove(entry); err != nil {
			he := asHaioErr(err)
			if he.Kind == haioerr.KindPersistUserCancelled {
				d.bus.StatusMessage("persistence removal cancelled", 3*time.Second)
				return
			}
			d.bus.SurfaceError(he)
			return
		}
		d.bus.SetPersistInstalled(container, false)
		return
	}

	agentPath, err := d.agent.Resolve()
	if err != nil {
		d.bus.SurfaceError(asHaioErr(err))
		return
	}
	if err := d.persist.Install(entry, agentPath); err != nil {
		he := asHaioErr(err)
		if he.Kind == haioerr.KindPersistUserCancelled {
			d.bus.StatusMessage("persistence install cancelled", 3*time.Second)
			return
		}
		d.bus.SurfaceError(he)
		return
	}
	d.bus.SetPersistInstalled(container, true)
}

func (d *Dispatcher) handleShare(ctx context.Context, container, object string) {
	objectPath := fmt.Sprintf("/v1/AUTH_%s/%s/%s", d.username, container, object)
	key, err := d.urls.Ensure(ctx)
	if err != nil {
		d.bus.SurfaceError(asHaioErr(err))
		return
	}
	signed, err := tempurl.Sign(key, "GET", objectPath, time.Hour, "", false)
	if err != nil {
		d.bus.SurfaceError(asHaioErr(err))
		return
	}
	d.bus.Prompt("share_url", d.endpoint+signed)
}

func (d *Dispatcher) handleBrowse(container string) {
	m, ok := d.mounts.Get(d.key(container))
	if !ok || m.State != mountsvc.Mounted {
		d.bus.SurfaceError(haioerr.New(haioerr.KindAgentNotFound, "bucket is not mounted"))
		return
	}
	if err := d.open(m.MountPoint); err != nil {
		d.bus.SurfaceError(haioerr.Wrap(haioerr.KindAgentNotFound, err, "failed to open file manager"))
	}
}

func (d *Dispatcher) handleLogout(ctx context.Context) {
	deadline, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for container := range d.bus.byNameSnapshot() {
		key := d.key(container)
		if m, ok := d.mounts.Get(key); ok && (m.State == mountsvc.Mounted || m.State == mountsvc.Degraded) {
			if err := d.mounts.Unmount(deadline, key); err != nil {
				d.logger.Warn().Err(err).Str("container", container).Msg("dispatcher: logout unmount failed, forcing cancel")
				d.mounts.Cancel(key)
			}
		}
	}
	d.bus.StatusMessage("logged out", 3*time.Second)
}

func asHaioErr(err error) *haioerr.Error {
	if he, ok := err.(*haioerr.Error); ok {
		return he
	}
	return haioerr.Wrap(haioerr.KindServerError, err, err.Error())
}
