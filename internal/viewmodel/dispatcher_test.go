package viewmodel

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haio/mountctl/internal/config"
	"github.com/haio/mountctl/internal/haioapi"
	"github.com/haio/mountctl/internal/mountagent"
	"github.com/haio/mountctl/internal/mountfs"
	"github.com/haio/mountctl/internal/mountsvc"
	"github.com/haio/mountctl/internal/persistence"
	"github.com/haio/mountctl/internal/tempurl"
)

type fakeHelper struct{}

func (fakeHelper) RunElevated(name string, args []string) error { return nil }

func newTestDispatcher(t *testing.T) (*Dispatcher, *Bus, *string) {
	t.Helper()
	cfg := config.Default()
	cfg.ConfigDir = t.TempDir()

	bus := New(zerolog.Nop())
	api := haioapi.New(cfg, zerolog.Nop())
	agent := mountagent.New(cfg, zerolog.Nop())
	inspect := mountfs.New(zerolog.Nop(), 100*time.Millisecond)
	sup := mountsvc.New(cfg, zerolog.Nop(), agent, inspect)
	persist := persistence.New(zerolog.Nop(), fakeHelper{})

	var installedKey string
	urls := tempurl.NewManager(
		func(ctx context.Context, key, value string) error { installedKey = value; return nil },
		func(ctx context.Context) (map[string][]string, error) {
			return map[string][]string{"X-Account-Meta-Temp-Url-Key": {installedKey}}, nil
		},
	)

	var opened string
	opener := func(path string) error { opened = path; return nil }

	d := NewDispatcher(zerolog.Nop(), cfg, bus, api, sup, persist, agent, urls, "alice", "https://storage.example/v1/AUTH_alice", opener)

	return d, bus, &opened
}

func TestHandleBrowseErrorsWhenNotMounted(t *testing.T) {
	d, bus, _ := newTestDispatcher(t)
	bus.RebuildList([]string{"photos"}, nil, nil)

	d.handleBrowse("photos")

	select {
	case e := <-bus.Events():
		require.Equal(t, EvtError, e.Kind)
	default:
		t.Fatal("expected an error event")
	}
}

func TestHandleShareEmitsSignedURL(t *testing.T) {
	d, bus, _ := newTestDispatcher(t)
	bus.RebuildList([]string{"photos"}, nil, nil)

	d.handleShare(context.Background(), "photos", "cat.png")

	select {
	case e := <-bus.Events():
		require.Equal(t, EvtPrompt, e.Kind)
		assert.Equal(t, "share_url", e.PromptKind)
		url, ok := e.Payload.(string)
		require.True(t, ok)
		assert.Contains(t, url, "temp_url_sig=")
	default:
		t.Fatal("expected a prompt event")
	}
}

func TestBucketLockIsPerContainer(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	a := d.bucketLock("photos")
	b := d.bucketLock("photos")
	c := d.bucketLock("backups")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
