// Package reconcile implements C7, the reconciliation engine: a
// single-threaded cooperative loop that diffs server state against the UI
// and persistence-entry state every tick, grounded on the teacher's
// context-driven background loops (authclient.GetJWT's errgroup pattern,
// generalized to a ticker instead of a one-shot fan-out).
package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/haio/mountctl/internal/haioapi"
	"github.com/haio/mountctl/internal/haioerr"
	"github.com/haio/mountctl/internal/mountsvc"
	"github.com/haio/mountctl/internal/persistence"
)

// BucketStat is the per-container snapshot the engine computes each tick.
type BucketStat struct {
	Name  string
	Count int64
	Bytes int64
}

// Sink receives the results of one reconciliation tick. It is implemented
// by C9's view-model so that UI mutation stays the view-model's exclusive
// responsibility (spec.md §4.9).
type Sink interface {
	// RebuildList is called only when added or removed is non-empty
	// (spec.md §4.7 step 4, property P4).
	RebuildList(added, removed []string, stats []BucketStat)
	// UpdateStatsInPlace is called when no structural change occurred.
	UpdateStatsInPlace(stats []BucketStat)
	// StatusMessage surfaces a transient status-bar line (spec.md §7).
	StatusMessage(text string, dwell time.Duration)
	// SurfaceError reports a non-fatal error accumulated during the tick.
	SurfaceError(err *haioerr.Error)
	// PromptOrphans is called once at startup with any orphaned mounts.
	PromptOrphans(paths []string)
}

// PersistenceLister is the narrow slice of C6 the engine needs: listing
// installed entries and removing orphaned ones.
type PersistenceLister interface {
	ListInstalled(username string) ([]string, error)
	Remove(e persistence.Entry) error
}

// Engine runs the reconciliation loop for one account.
type Engine struct {
	logger   zerolog.Logger
	api      *haioapi.Client
	mounts   *mountsvc.Supervisor
	persist  PersistenceLister
	username string
	sink     Sink

	uiNames map[string]bool
}

func New(logger zerolog.Logger, api *haioapi.Client, mounts *mountsvc.Supervisor, persist PersistenceLister, username string, sink Sink) *Engine {
	return &Engine{
		logger:   logger,
		api:      api,
		mounts:   mounts,
		persist:  persist,
		username: username,
		sink:     sink,
		uiNames:  map[string]bool{},
	}
}

// Run ticks every interval until ctx is cancelled. Call StartupCheck
// separately before Run, or rely on the caller to sequence them.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// StartupCheck runs find_orphan_mounts once and, if any are found, asks
// the sink to present the bulk-unmount dialog (spec.md §4.7 step 5).
func (e *Engine) StartupCheck(orphans []string) {
	if len(orphans) > 0 {
		e.sink.PromptOrphans(orphans)
	}
}

// Tick executes one reconciliation pass (spec.md §4.7).
func (e *Engine) Tick(ctx context.Context) {
	containers, err := e.api.ListContainers(ctx)
	if err != nil {
		// "on error, skip the tick (no UI mutation)".
		e.logger.Warn().Err(err).Msg("reconcile: list_containers failed, skipping tick")
		return
	}

	sServer := map[string]haioapi.Container{}
	for _, c := range containers {
		sServer[c.Name] = c
	}

	installed, err := e.persist.ListInstalled(e.username)
	if err != nil {
		e.logger.Warn().Err(err).Msg("reconcile: list_installed failed, treating as empty")
		installed = nil
	}
	sPersist := map[string]bool{}
	for _, c := range installed {
		sPersist[c] = true
	}

	var added, removed []string
	for name := range sServer {
		if !e.uiNames[name] {
			added = append(added, name)
		}
	}
	for name := range e.uiNames {
		if _, ok := sServer[name]; !ok {
			removed = append(removed, name)
		}
	}
	var orphanedPersist []string
	for name := range sPersist {
		if _, ok := sServer[name]; !ok {
			orphanedPersist = append(orphanedPersist, name)
		}
	}

	for _, name := range removed {
		e.handleRemoved(ctx, name, sPersist[name])
		delete(e.uiNames, name)
	}
	for _, name := range orphanedPersist {
		e.handleOrphanedPersist(name)
	}

	stats := make([]BucketStat, 0, len(sServer))
	for _, c := range sServer {
		stats = append(stats, BucketStat{Name: c.Name, Count: c.Count, Bytes: c.Bytes})
	}

	if len(added) > 0 || len(removed) > 0 {
		for _, name := range added {
			e.uiNames[name] = true
		}
		e.sink.RebuildList(added, removed, stats)
		return
	}

	// No structural change: in-place stat update only (property P4).
	e.sink.UpdateStatsInPlace(stats)
}

func (e *Engine) handleRemoved(ctx context.Context, name string, wasPersisted bool) {
	key := mountsvc.Key{Username: e.username, Container: name}
	if m, ok := e.mounts.Get(key); ok && (m.State == mountsvc.Mounted || m.State == mountsvc.Degraded) {
		if err := e.mounts.Unmount(ctx, key); err != nil {
			e.logger.Warn().Err(err).Str("container", name).Msg("reconcile: unmount on removal failed")
		}
	}

	if wasPersisted {
		err := e.persist.Remove(persistence.Entry{Username: e.username, Container: name})
		if err != nil {
			he := asHaioErr(err)
			if he.Kind == haioerr.KindPersistUserCancelled {
				he.Remediation = manualCleanupFor(e.username, name)
			}
			e.sink.SurfaceError(he)
		}
	}
}

func (e *Engine) handleOrphanedPersist(name string) {
	if err := e.persist.Remove(persistence.Entry{Username: e.username, Container: name}); err != nil {
		e.logger.Warn().Err(err).Str("container", name).Msg("reconcile: failed to remove orphaned persistence entry")
	}
}

func manualCleanupFor(username, container string) []string {
	return persistence.ManualCleanupCommands(persistence.Entry{Username: username, Container: container})
}

func asHaioErr(err error) *haioerr.Error {
	if he, ok := err.(*haioerr.Error); ok {
		return he
	}
	return haioerr.Wrap(haioerr.KindPersistElevationFailed, err, err.Error())
}
