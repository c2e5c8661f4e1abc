package viewmodel

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haio/mountctl/internal/mountsvc"
	"github.com/haio/mountctl/internal/reconcile"
)

func TestRebuildListAddsAndRemoves(t *testing.T) {
	b := New(zerolog.Nop())
	b.RebuildList([]string{"photos", "backups"}, nil, []reconcile.BucketStat{
		{Name: "photos", Bytes: 10, Count: 1},
		{Name: "backups", Bytes: 20, Count: 2},
	})

	snap := b.Snapshot()
	require.Len(t, snap, 2)

	b.RebuildList(nil, []string{"photos"}, nil)
	snap = b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "backups", snap[0].Name)
}

func TestUpdateStatsInPlacePreservesIdentityAndOrder(t *testing.T) {
	b := New(zerolog.Nop())
	b.RebuildList([]string{"photos", "backups"}, nil, []reconcile.BucketStat{
		{Name: "photos", Bytes: 10, Count: 1},
		{Name: "backups", Bytes: 20, Count: 2},
	})

	b.UpdateStatsInPlace([]reconcile.BucketStat{{Name: "photos", Bytes: 99, Count: 9}})

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "photos", snap[0].Name, "order must be preserved")
	assert.Equal(t, int64(99), snap[0].Bytes)
	assert.Equal(t, int64(9), snap[0].Count)
	assert.Equal(t, int64(20), snap[1].Bytes, "unrelated bucket must be untouched")
}

func TestSetMountStateUpdatesInPlace(t *testing.T) {
	b := New(zerolog.Nop())
	b.RebuildList([]string{"photos"}, nil, []reconcile.BucketStat{{Name: "photos"}})

	b.SetMountState("photos", mountsvc.Mounted, "/home/alice/haio-alice-photos", false)

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, mountsvc.Mounted, snap[0].MountState)
	assert.Equal(t, "/home/alice/haio-alice-photos", snap[0].MountPoint)
}

func TestSetPersistInstalledUpdatesInPlace(t *testing.T) {
	b := New(zerolog.Nop())
	b.RebuildList([]string{"photos"}, nil, []reconcile.BucketStat{{Name: "photos"}})

	b.SetPersistInstalled("photos", true)

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].PersistInstalled)
}

func TestEventsDeliverStatusMessage(t *testing.T) {
	b := New(zerolog.Nop())
	b.StatusMessage("syncing", time.Second)

	select {
	case e := <-b.Events():
		assert.Equal(t, EvtStatusMessage, e.Kind)
		assert.Equal(t, "syncing", e.Text)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestPromptOrphansSkipsEmpty(t *testing.T) {
	b := New(zerolog.Nop())
	b.PromptOrphans(nil)

	select {
	case <-b.Events():
		t.Fatal("no event expected for empty orphan list")
	default:
	}
}

func TestPromptOrphansEmitsPrompt(t *testing.T) {
	b := New(zerolog.Nop())
	b.PromptOrphans([]string{"/home/alice/haio-alice-old"})

	select {
	case e := <-b.Events():
		assert.Equal(t, EvtPrompt, e.Kind)
		assert.Equal(t, "orphan_mounts", e.PromptKind)
	default:
		t.Fatal("expected a prompt event")
	}
}

var _ reconcile.Sink = (*Bus)(nil)
