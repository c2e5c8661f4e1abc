// Package viewmodel implements C9, the view-model bus: the sole mutator of
// the UI bucket list, driven by a typed command channel and publishing a
// typed event channel. Generalizes the teacher's protobuf-based desktop IPC
// (api/routes.go, tunnel/events.go) into plain Go channels, per the
// redesign note substituting a GUI event bus for typed message channels —
// hand-regenerating .pb.go without protoc would be a fabricated dependency.
package viewmodel

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/haio/mountctl/internal/haioerr"
	"github.com/haio/mountctl/internal/mountsvc"
	"github.com/haio/mountctl/internal/reconcile"
)

// BucketVM is one row of the UI list (spec.md §4.9).
type BucketVM struct {
	Name             string
	Bytes            int64
	Count            int64
	MountState       mountsvc.State
	MountPoint       string
	PersistInstalled bool
	Busy             bool
}

// CommandKind enumerates the command stream's message types.
type CommandKind int

const (
	CmdMount CommandKind = iota
	CmdUnmount
	CmdTogglePersist
	CmdShare
	CmdBrowse
	CmdLogout
)

// Command is one message on the command stream (spec.md §4.9).
type Command struct {
	Kind      CommandKind
	Container string
	Object    string // for Share
}

// EventKind enumerates the event stream's message types.
type EventKind int

const (
	EvtStatusMessage EventKind = iota
	EvtProgressStep
	EvtError
	EvtPrompt
)

// Event is one message on the event stream (spec.md §4.9).
type Event struct {
	Kind EventKind

	// StatusMessage
	Text  string
	Dwell time.Duration

	// ProgressStep
	Op   string
	Step int
	Total int

	// Error
	Err *haioerr.Error

	// Prompt
	PromptKind string
	Payload    any
}

// Bus is the view-model: the sole mutator of the bucket list.
type Bus struct {
	logger zerolog.Logger

	mu      sync.Mutex
	buckets []BucketVM
	byName  map[string]int

	commands chan Command
	events   chan Event
}

func New(logger zerolog.Logger) *Bus {
	return &Bus{
		logger:   logger,
		byName:   map[string]int{},
		commands: make(chan Command, 64),
		events:   make(chan Event, 256),
	}
}

// Commands returns the inbound command channel for producers (the CLI/GUI
// frontend) to send on.
func (b *Bus) Commands() chan<- Command { return b.commands }

// NextCommand returns the receive side of the command channel; Dispatcher.Run
// drains it.
func (b *Bus) NextCommand() <-chan Command { return b.commands }

// Events returns the outbound event stream for the frontend to consume.
func (b *Bus) Events() <-chan Event { return b.events }

func (b *Bus) emit(e Event) {
	select {
	case b.events <- e:
	default:
		b.logger.Warn().Msg("viewmodel: event channel full, dropping event")
	}
}

// StatusMessage emits a transient status-bar line.
func (b *Bus) StatusMessage(text string, dwell time.Duration) {
	b.emit(Event{Kind: EvtStatusMessage, Text: text, Dwell: dwell})
}

// ProgressStep emits a progress update for a running operation.
func (b *Bus) ProgressStep(op string, step, total int) {
	b.emit(Event{Kind: EvtProgressStep, Op: op, Step: step, Total: total})
}

// SurfaceError emits a fatal or non-fatal typed error.
func (b *Bus) SurfaceError(err *haioerr.Error) {
	b.emit(Event{Kind: EvtError, Err: err})
}

// Prompt emits a modal/dialog request (e.g. the startup orphan-mount dialog).
func (b *Bus) Prompt(kind string, payload any) {
	b.emit(Event{Kind: EvtPrompt, PromptKind: kind, Payload: payload})
}

// PromptOrphans implements reconcile.Sink.
func (b *Bus) PromptOrphans(paths []string) {
	if len(paths) == 0 {
		return
	}
	b.Prompt("orphan_mounts", paths)
}

// Snapshot returns a copy of the current list, safe to range over without
// holding the lock.
func (b *Bus) Snapshot() []BucketVM {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BucketVM, len(b.buckets))
	copy(out, b.buckets)
	return out
}

// RebuildList implements reconcile.Sink: replaces the list wholesale,
// called only when added/removed is non-empty (spec.md §4.7 step 4).
func (b *Bus) RebuildList(added, removed []string, stats []reconcile.BucketStat) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removedSet := map[string]bool{}
	for _, r := range removed {
		removedSet[r] = true
	}

	statByName := map[string]reconcile.BucketStat{}
	for _, s := range stats {
		statByName[s.Name] = s
	}

	newList := make([]BucketVM, 0, len(b.buckets)+len(added))
	newByName := map[string]int{}
	for _, vm := range b.buckets {
		if removedSet[vm.Name] {
			continue
		}
		if s, ok := statByName[vm.Name]; ok {
			vm.Bytes, vm.Count = s.Bytes, s.Count
		}
		newByName[vm.Name] = len(newList)
		newList = append(newList, vm)
	}
	for _, name := range added {
		s := statByName[name]
		vm := BucketVM{Name: name, Bytes: s.Bytes, Count: s.Count, MountState: mountsvc.Unmounted}
		newByName[name] = len(newList)
		newList = append(newList, vm)
	}

	b.buckets = newList
	b.byName = newByName
}

// UpdateStatsInPlace implements reconcile.Sink: mutates bytes/count on
// existing widgets without touching identity, list order, or length
// (property P4).
func (b *Bus) UpdateStatsInPlace(stats []reconcile.BucketStat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range stats {
		if idx, ok := b.byName[s.Name]; ok {
			b.buckets[idx].Bytes = s.Bytes
			b.buckets[idx].Count = s.Count
		}
	}
}

// SetMountState updates the mount_state/mount_point/busy fields for one
// bucket in place, used by the dispatcher's mount and unmount handlers.
func (b *Bus) SetMountState(name string, state mountsvc.State, mountPoint string, busy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx, ok := b.byName[name]; ok {
		b.buckets[idx].MountState = state
		if mountPoint != "" {
			b.buckets[idx].MountPoint = mountPoint
		}
		b.buckets[idx].Busy = busy
	}
}

// SetPersistInstalled updates the persist_installed field in place.
func (b *Bus) SetPersistInstalled(name string, installed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx, ok := b.byName[name]; ok {
		b.buckets[idx].PersistInstalled = installed
	}
}

// byNameSnapshot returns a copy of the known bucket names, for callers (the
// dispatcher's logout handler) that need to iterate without holding the lock.
func (b *Bus) byNameSnapshot() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool, len(b.byName))
	for name := range b.byName {
		out[name] = true
	}
	return out
}
