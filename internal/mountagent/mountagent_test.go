package mountagent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haio/mountctl/internal/config"
)

func TestBuildMountArgvIncludesRequiredOptions(t *testing.T) {
	argv := BuildMountArgv("/bin/agent", "haio_alice", "photos", "/home/alice/haio-alice-photos", "/home/alice/.cache/haio-client", nil)

	joined := argv
	assertContainsPair(t, joined, "--config", "haio_alice")
	assertContainsPair(t, joined, "--container", "photos")
	assertContainsPair(t, joined, "--dir-cache-time", "10s")
	assertContainsPair(t, joined, "--vfs-cache-mode", "full")
	assertContainsPair(t, joined, "--vfs-cache-max-age", "24h")
	assertContainsPair(t, joined, "--buffer-size", "32M")
	assertContainsPair(t, joined, "--log-level", "INFO")
	assert.Contains(t, joined, "--allow-non-empty")
}

func assertContainsPair(t *testing.T, argv []string, flag, value string) {
	t.Helper()
	for i, a := range argv {
		if a == flag {
			require.Less(t, i+1, len(argv))
			assert.Equal(t, value, argv[i+1])
			return
		}
	}
	t.Fatalf("flag %s not found in argv %v", flag, argv)
}

func TestConfigNameFor(t *testing.T) {
	assert.Equal(t, "haio_alice", ConfigNameFor("alice"))
}

func TestWriteAgentConfigEntryMergesRatherThanOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mount_agent.conf")

	require.NoError(t, WriteAgentConfig(path, "haio_alice", "https://storage.haio.ir", "alice", "tok-alice"))
	require.NoError(t, WriteAgentConfig(path, "haio_bob", "https://storage.haio.ir", "bob", "tok-bob"))

	data, err := readAgentConfig(path)
	require.NoError(t, err)
	require.Contains(t, data, "haio_alice")
	require.Contains(t, data, "haio_bob")
	assert.Equal(t, "tok-alice", data["haio_alice"].Token)
	assert.Equal(t, "swift", data["haio_bob"].StorageType)
}

func TestRingBufferBounded(t *testing.T) {
	rb := newRingBuffer(8)
	_, _ = rb.Write([]byte("0123456789"))
	assert.Equal(t, 8, len(rb.String()))
	assert.Equal(t, "23456789", rb.String())
}

func TestSpawnMountAssignsDistinctInvocationIDs(t *testing.T) {
	cfg := config.Default()
	a := New(cfg, zerolog.Nop())

	p1, err := a.SpawnMount(context.Background(), []string{"true"})
	require.NoError(t, err)
	_ = p1.Wait()

	p2, err := a.SpawnMount(context.Background(), []string{"true"})
	require.NoError(t, err)
	_ = p2.Wait()

	assert.NotEmpty(t, p1.InvocationID)
	assert.NotEmpty(t, p2.InvocationID)
	assert.NotEqual(t, p1.InvocationID, p2.InvocationID)
}
