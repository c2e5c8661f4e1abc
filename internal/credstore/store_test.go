package credstore

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "accounts.json"), zerolog.Nop())
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	err := s.Save("alice", "tok-1", "hunter2", "https://storage.example/v1/AUTH_alice", "")
	require.NoError(t, err)

	token, password, storageURL, tempURLKey, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "hunter2", password)
	assert.Equal(t, "https://storage.example/v1/AUTH_alice", storageURL)
	assert.Empty(t, tempURLKey)
}

func TestStoreLoadUnknownUserIsEmptyNotError(t *testing.T) {
	s := newTestStore(t)

	token, password, storageURL, tempURLKey, err := s.Load("nobody")
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Empty(t, password)
	assert.Empty(t, storageURL)
	assert.Empty(t, tempURLKey)
}

func TestStoreSaveWithoutPasswordKeepsTokenOnly(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("bob", "tok-1", "", "https://storage.example/v1/AUTH_bob", ""))

	token, password, _, _, err := s.Load("bob")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Empty(t, password)
}

func TestStoreForgetPasswordKeepsToken(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("carol", "tok-1", "swordfish", "https://storage.example/v1/AUTH_carol", ""))

	require.NoError(t, s.ForgetPassword("carol"))

	token, password, _, _, err := s.Load("carol")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Empty(t, password)
}

func TestStoreClearTokenKeepsPassword(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("dave", "tok-1", "letmein", "https://storage.example/v1/AUTH_dave", ""))

	require.NoError(t, s.ClearToken("dave"))

	token, password, _, _, err := s.Load("dave")
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, "letmein", password)
}

func TestStoreForgetRemovesAccountEntirely(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("erin", "tok-1", "pw", "https://storage.example/v1/AUTH_erin", ""))

	require.NoError(t, s.Forget("erin"))

	names, err := s.ListKnown()
	require.NoError(t, err)
	assert.NotContains(t, names, "erin")
}

func TestStoreListKnown(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("alice", "t1", "p1", "https://storage.example/v1/AUTH_alice", ""))
	require.NoError(t, s.Save("bob", "t2", "p2", "https://storage.example/v1/AUTH_bob", ""))

	names, err := s.ListKnown()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)
}

func TestStorePersistsTempURLKey(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("alice", "tok-1", "", "https://storage.example/v1/AUTH_alice", "the-temp-url-key"))

	_, _, _, tempURLKey, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "the-temp-url-key", tempURLKey)
}

func TestStoreSurvivesFreshFile(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "nested", "accounts.json"), zerolog.Nop())

	names, err := s.ListKnown()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.Save("alice", "tok-1", "pw", "https://storage.example/v1/AUTH_alice", ""))
	names, err = s.ListKnown()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)
}
