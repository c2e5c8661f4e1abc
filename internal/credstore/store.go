// Package credstore implements C1, the credential store: a single
// mapping-of-mappings persisted atomically under the user-scoped config
// directory (spec.md §4.1, §6).
package credstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Scheme identifies how a password was encoded at rest (spec.md §4.1, §6).
type Scheme string

const (
	SchemeDPAPI    Scheme = "dpapi"    // Windows CryptProtectData
	SchemeKeychain Scheme = "keychain" // macOS Keychain generic password
	SchemeJWE      Scheme = "jwe"      // last resort: reversible, non-secret-strength
)

// entry is the on-disk shape of one account (spec.md §6 accounts.json).
type entry struct {
	Token       string `json:"token"`
	PasswordEnc string `json:"password_enc,omitempty"`
	Scheme      Scheme `json:"scheme,omitempty"`
	StorageURL  string `json:"storage_url,omitempty"`
	TempURLKey  string `json:"temp_url_key,omitempty"`
}

type fileFormat map[string]entry

// protector encrypts/decrypts a password using a platform-specific or
// fallback scheme. Implemented per-platform in store_darwin.go,
// store_windows.go and store_other.go.
type protector interface {
	scheme() Scheme
	protect(plaintext string) (string, error)
	unprotect(ciphertext string) (string, error)
}

// Store is the credential store (C1). It is safe for concurrent use: all
// reads/writes are serialized by mu, and writes are atomic
// (write-tempfile-then-rename), matching the shared-resource policy in
// spec.md §5.
type Store struct {
	path   string
	logger zerolog.Logger

	mu    sync.Mutex
	prot  protector
}

// New creates a Store backed by path (typically Config.AccountsPath()).
func New(path string, logger zerolog.Logger) *Store {
	return &Store{path: path, logger: logger, prot: defaultProtector(logger)}
}

// Save persists token (always) and password (only if non-empty, i.e. the
// user opted into persistence). Decryption failures on a later Load degrade
// to "no saved password" rather than failing (spec.md §4.1).
func (s *Store) Save(username, token, password, storageURL, tempURLKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}

	e := data[username]
	e.Token = token
	e.StorageURL = storageURL
	if tempURLKey != "" {
		e.TempURLKey = tempURLKey
	}

	if password != "" {
		enc, err := s.prot.protect(password)
		if err != nil {
			return err
		}
		e.PasswordEnc = enc
		e.Scheme = s.prot.scheme()
	}

	data[username] = e
	return s.writeLocked(data)
}

// ForgetPassword clears the persisted password while keeping the token
// entry (used when the user opts out of password persistence but stays
// logged in).
func (s *Store) ForgetPassword(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	e, ok := data[username]
	if !ok {
		return nil
	}
	e.PasswordEnc = ""
	e.Scheme = ""
	data[username] = e
	return s.writeLocked(data)
}

// Load returns the saved token and (if decryptable) password for username.
// A decryption failure is not an error: it degrades to password == "" per
// spec.md §4.1's error-handling rule.
func (s *Store) Load(username string) (token, password, storageURL, tempURLKey string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return "", "", "", "", err
	}

	e, ok := data[username]
	if !ok {
		return "", "", "", "", nil
	}

	token = e.Token
	storageURL = e.StorageURL
	tempURLKey = e.TempURLKey

	if e.PasswordEnc != "" {
		p, derr := s.prot.unprotect(e.PasswordEnc)
		if derr != nil {
			s.logger.Warn().Err(derr).Str("username", username).Msg("could not decrypt saved password, treating as absent")
		} else {
			password = p
		}
	}
	return token, password, storageURL, tempURLKey, nil
}

// Forget removes the account entirely (explicit logout, spec.md §3
// lifecycles: "token cleared; password kept iff remembered" is handled by
// the caller choosing Save-without-password vs Forget).
func (s *Store) Forget(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	delete(data, username)
	return s.writeLocked(data)
}

// ClearToken wipes only the bearer token, preserving a remembered password
// (explicit logout path, spec.md §3).
func (s *Store) ClearToken(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	e, ok := data[username]
	if !ok {
		return nil
	}
	e.Token = ""
	data[username] = e
	return s.writeLocked(data)
}

// ListKnown returns the usernames with a stored entry.
func (s *Store) ListKnown() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) readLocked() (fileFormat, error) {
	data := fileFormat{}
	bs, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bs) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(bs, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// writeLocked persists data atomically: write to a tempfile in the same
// directory, then rename over the destination (spec.md §4.1, §5).
func (s *Store) writeLocked(data fileFormat) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	bs, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".accounts-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(bs); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
