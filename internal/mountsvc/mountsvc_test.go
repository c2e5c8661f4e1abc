package mountsvc

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haio/mountctl/internal/config"
	"github.com/haio/mountctl/internal/mountagent"
	"github.com/haio/mountctl/internal/mountfs"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	cfg := config.Default()
	cfg.ConfigDir = t.TempDir()
	cfg.MaxConcurrentMounts = 4
	agent := mountagent.New(cfg, zerolog.Nop())
	inspect := mountfs.New(zerolog.Nop(), 100*time.Millisecond)
	return New(cfg, zerolog.Nop(), agent, inspect)
}

func TestStateStringers(t *testing.T) {
	cases := map[State]string{
		Unmounted: "UNMOUNTED", Mounting: "MOUNTING", Mounted: "MOUNTED",
		Degraded: "DEGRADED", Unmounting: "UNMOUNTING", Failed: "FAILED",
		State(99): "UNKNOWN",
	}
	for s, want := range cases {
		assert.Equal(t, want, s.String())
	}
}

func TestUnmountOnUntrackedKeyIsNoop(t *testing.T) {
	s := newTestSupervisor(t)
	err := s.Unmount(context.Background(), Key{Username: "alice", Container: "photos"})
	assert.NoError(t, err)
}

func TestGetUnknownKeyReturnsFalse(t *testing.T) {
	s := newTestSupervisor(t)
	_, ok := s.Get(Key{Username: "alice", Container: "photos"})
	assert.False(t, ok)
}

func TestResetRequiresFailedState(t *testing.T) {
	s := newTestSupervisor(t)
	k := Key{Username: "alice", Container: "photos"}
	s.getOrCreate(k, "/tmp/whatever")

	err := s.Reset(k)
	require.Error(t, err)

	m, _ := s.mounts[k]
	m.mu.Lock()
	m.State = Failed
	m.mu.Unlock()

	require.NoError(t, s.Reset(k))
	mount, ok := s.Get(k)
	require.True(t, ok)
	assert.Equal(t, Unmounted, mount.State)
}

func TestKnownMountPointsReflectsTrackedMounts(t *testing.T) {
	s := newTestSupervisor(t)
	s.getOrCreate(Key{Username: "alice", Container: "photos"}, "/home/alice/haio-alice-photos")

	known := s.KnownMountPoints()
	assert.True(t, known["/home/alice/haio-alice-photos"])
}

func TestKeyString(t *testing.T) {
	k := Key{Username: "alice", Container: "photos"}
	assert.Equal(t, "alice/photos", k.String())
}
