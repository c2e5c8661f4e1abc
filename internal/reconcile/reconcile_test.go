package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haio/mountctl/internal/config"
	"github.com/haio/mountctl/internal/haioapi"
	"github.com/haio/mountctl/internal/haioerr"
	"github.com/haio/mountctl/internal/mountagent"
	"github.com/haio/mountctl/internal/mountfs"
	"github.com/haio/mountctl/internal/mountsvc"
	"github.com/haio/mountctl/internal/persistence"
)

type fakePersistence struct {
	installed []string
	removed   []string
}

func (f *fakePersistence) ListInstalled(username string) ([]string, error) {
	return f.installed, nil
}

func (f *fakePersistence) Remove(e persistence.Entry) error {
	f.removed = append(f.removed, e.Container)
	return nil
}

type fakeSink struct {
	rebuilds   int
	inPlace    int
	lastAdded  []string
	lastRemove []string
	lastStats  []BucketStat
	errors     []*haioerr.Error
	orphans    []string
}

func (f *fakeSink) RebuildList(added, removed []string, stats []BucketStat) {
	f.rebuilds++
	f.lastAdded = added
	f.lastRemove = removed
	f.lastStats = stats
}
func (f *fakeSink) UpdateStatsInPlace(stats []BucketStat) {
	f.inPlace++
	f.lastStats = stats
}
func (f *fakeSink) StatusMessage(text string, dwell time.Duration) {}
func (f *fakeSink) SurfaceError(err *haioerr.Error)                { f.errors = append(f.errors, err) }
func (f *fakeSink) PromptOrphans(paths []string)                   { f.orphans = paths }

func newTestEngine(t *testing.T, srv *httptest.Server, persist *fakePersistence, sink *fakeSink) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.ConfigDir = t.TempDir()
	cfg.BaseURL = srv.URL

	api := haioapi.New(cfg, zerolog.Nop())
	api.RestoreSession("alice", "tok", srv.URL+"/v1/AUTH_alice")

	agent := mountagent.New(cfg, zerolog.Nop())
	inspect := mountfs.New(zerolog.Nop(), 100*time.Millisecond)
	sup := mountsvc.New(cfg, zerolog.Nop(), agent, inspect)

	return New(zerolog.Nop(), api, sup, persist, "alice", sink)
}

func containerListServer(t *testing.T, containers []haioapi.Container) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(containers)
	}))
}

func TestTickAddedTriggersRebuild(t *testing.T) {
	srv := containerListServer(t, []haioapi.Container{{Name: "photos", Count: 3, Bytes: 100}})
	defer srv.Close()

	persist := &fakePersistence{}
	sink := &fakeSink{}
	e := newTestEngine(t, srv, persist, sink)

	e.Tick(context.Background())

	assert.Equal(t, 1, sink.rebuilds)
	assert.Equal(t, []string{"photos"}, sink.lastAdded)
	assert.Empty(t, sink.lastRemove)
}

func TestTickNoChangeUpdatesInPlace(t *testing.T) {
	srv := containerListServer(t, []haioapi.Container{{Name: "photos", Count: 3, Bytes: 100}})
	defer srv.Close()

	persist := &fakePersistence{}
	sink := &fakeSink{}
	e := newTestEngine(t, srv, persist, sink)

	e.Tick(context.Background())
	require.Equal(t, 1, sink.rebuilds)

	e.Tick(context.Background())
	assert.Equal(t, 1, sink.rebuilds, "second tick with no structural change must not rebuild")
	assert.Equal(t, 1, sink.inPlace)
}

func TestTickRemovedDropsFromUI(t *testing.T) {
	srv := containerListServer(t, []haioapi.Container{{Name: "photos", Count: 3, Bytes: 100}})
	persist := &fakePersistence{}
	sink := &fakeSink{}
	e := newTestEngine(t, srv, persist, sink)
	e.Tick(context.Background())
	srv.Close()

	srv2 := containerListServer(t, []haioapi.Container{})
	defer srv2.Close()
	e.api.RestoreSession("alice", "tok", srv2.URL+"/v1/AUTH_alice")
	e.Tick(context.Background())

	assert.Equal(t, 2, sink.rebuilds)
	assert.Equal(t, []string{"photos"}, sink.lastRemove)
}

func TestTickOrphanedPersistIsRemovedRegardlessOfUI(t *testing.T) {
	srv := containerListServer(t, []haioapi.Container{})
	defer srv.Close()

	persist := &fakePersistence{installed: []string{"ghost"}}
	sink := &fakeSink{}
	e := newTestEngine(t, srv, persist, sink)

	e.Tick(context.Background())

	assert.Contains(t, persist.removed, "ghost")
}

func TestTickSkipsOnListError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	persist := &fakePersistence{}
	sink := &fakeSink{}
	e := newTestEngine(t, srv, persist, sink)

	e.Tick(context.Background())
	assert.Equal(t, 0, sink.rebuilds)
	assert.Equal(t, 0, sink.inPlace)
}

func TestStartupCheckPromptsOnOrphans(t *testing.T) {
	sink := &fakeSink{}
	e := &Engine{sink: sink}
	e.StartupCheck([]string{"/home/alice/haio-alice-old"})
	assert.Equal(t, []string{"/home/alice/haio-alice-old"}, sink.orphans)
}

func TestStartupCheckNoOrphansDoesNotPrompt(t *testing.T) {
	sink := &fakeSink{}
	e := &Engine{sink: sink}
	e.StartupCheck(nil)
	assert.Nil(t, sink.orphans)
}
