//go:build !darwin && !windows || (darwin && !cgo)

package credstore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/rs/zerolog"
)

const keyFileName = ".credkey"

func defaultProtector(logger zerolog.Logger) protector {
	return jweProtector{logger: logger}
}

// jweProtector is the last-resort scheme for platforms without a native
// secret store (Linux desktops without a keyring daemon, headless hosts):
// the password is wrapped in a compact JWE using a locally generated
// content-encryption key stored alongside accounts.json. This is reversible
// by design, matching spec.md §6's requirement that the on-disk artifact be
// "clearly labeled as reversible, not a secret-strength protection" when no
// OS-level store is available.
type jweProtector struct {
	logger zerolog.Logger
}

func (jweProtector) scheme() Scheme { return SchemeJWE }

func (p jweProtector) protect(plaintext string) (string, error) {
	key, err := p.loadOrCreateKey()
	if err != nil {
		return "", err
	}

	encrypter, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.A256GCMKW, Key: key}, nil)
	if err != nil {
		return "", err
	}

	obj, err := encrypter.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}

func (p jweProtector) unprotect(ciphertext string) (string, error) {
	key, err := p.loadOrCreateKey()
	if err != nil {
		return "", err
	}

	obj, err := jose.ParseEncrypted(ciphertext)
	if err != nil {
		return "", err
	}

	plaintext, err := obj.Decrypt(key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// loadOrCreateKey reads the 32-byte content key from keyFileName in the
// user config directory's haio-client folder (see keyPath), generating one
// on first use.
// The key file is chmod 0600, kept separate from accounts.json so a copy of
// one without the other is useless.
func (p jweProtector) loadOrCreateKey() ([]byte, error) {
	path, err := p.keyPath()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		key, derr := base64.StdEncoding.DecodeString(string(raw))
		if derr == nil && len(key) == 32 {
			return key, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(key)), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func (p jweProtector) keyPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir, err = os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(dir, ".haio-client")
	} else {
		dir = filepath.Join(dir, "haio-client")
	}
	return filepath.Join(dir, keyFileName), nil
}
