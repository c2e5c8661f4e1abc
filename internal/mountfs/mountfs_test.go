package mountfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAbsent(t *testing.T) {
	in := New(zerolog.Nop(), 0)
	c := in.Classify(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Equal(t, Absent, c)
}

func TestClassifyNonDir(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	in := New(zerolog.Nop(), 0)
	assert.Equal(t, NonDir, in.Classify(f))
}

func TestClassifyEmptyDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(sub, 0o755))

	in := New(zerolog.Nop(), 0)
	assert.Equal(t, EmptyDir, in.Classify(sub))
}

func TestClassifyNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "full")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "f"), []byte("x"), 0o644))

	in := New(zerolog.Nop(), 0)
	assert.Equal(t, NonEmptyDir, in.Classify(sub))
}

func TestClassificationStringers(t *testing.T) {
	cases := map[Classification]string{
		Absent:        "ABSENT",
		NonDir:        "NON_DIR",
		EmptyDir:      "EMPTY_DIR",
		NonEmptyDir:   "NON_EMPTY_DIR",
		LiveMount:     "LIVE_MOUNT",
		StaleMount:    "STALE_MOUNT",
		Classification(99): "UNKNOWN",
	}
	for c, want := range cases {
		assert.Equal(t, want, c.String())
	}
}

func TestClassifyCachesWithinTTL(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(sub, 0o755))

	in := New(zerolog.Nop(), 0)
	assert.Equal(t, EmptyDir, in.Classify(sub))

	// Mutate the directory without re-classifying: a cached result should
	// still be served within classifyCacheTTL.
	require.NoError(t, os.WriteFile(filepath.Join(sub, "f"), []byte("x"), 0o644))
	assert.Equal(t, EmptyDir, in.Classify(sub), "cached classification should be reused within the TTL")
}

func TestFindOrphanMountsSkipsKnown(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	orphanDir := filepath.Join(home, "haio-alice-photos")
	require.NoError(t, os.Mkdir(orphanDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(orphanDir, "f"), []byte("x"), 0o644))

	knownDir := filepath.Join(home, "haio-alice-docs")
	require.NoError(t, os.Mkdir(knownDir, 0o755))

	in := New(zerolog.Nop(), 0)
	orphans, err := in.FindOrphanMounts(nil, "alice", map[string]bool{knownDir: true})
	require.NoError(t, err)
	assert.NotContains(t, orphans, knownDir)
}
