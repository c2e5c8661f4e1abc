// Package tempurl implements C8, the TempURL signer: key management against
// the account's Temp-URL-Key metadata, and HMAC-SHA1 signing/validation of
// the Swift TempURL wire format. The signing scheme itself is a fixed
// Swift/Haio protocol (spec.md §4.8, §6), so it is the one place this
// module reaches for crypto/hmac+sha1 directly rather than a pack library —
// no example repo implements this exact wire format.
package tempurl

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // mandated by the Swift TempURL wire format, not used for anything security-critical beyond parity with the server.
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/haio/mountctl/internal/haioerr"
)

// Manager owns the locally cached Temp-URL-Key for one account.
type Manager struct {
	setMeta  func(ctx context.Context, key, value string) error
	headAcc  func(ctx context.Context) (map[string][]string, error)
	key      string
}

// NewManager builds a Manager; setMeta/headAcc are the C2 operations it
// depends on (injected as funcs so this package stays decoupled from
// haioapi.Client's concrete type).
func NewManager(setMeta func(ctx context.Context, key, value string) error, headAcc func(ctx context.Context) (map[string][]string, error)) *Manager {
	return &Manager{setMeta: setMeta, headAcc: headAcc}
}

// LoadKey seeds the manager with a previously persisted key (e.g. from the
// credential store), skipping regeneration.
func (m *Manager) LoadKey(key string) { m.key = key }

// Key returns the cached key, if any.
func (m *Manager) Key() string { return m.key }

// Reset wipes the local key; the next Ensure call regenerates and
// reinstalls it (spec.md §4.8).
func (m *Manager) Reset() { m.key = "" }

// Ensure generates and installs a Temp-URL-Key on first use, verifying the
// server echoed it back before trusting it locally (spec.md §4.8).
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	if m.key != "" {
		return m.key, nil
	}

	key, err := generateKey()
	if err != nil {
		return "", haioerr.Wrap(haioerr.KindTempURLKeyNotAccepted, err, "failed to generate key")
	}

	if err := m.setMeta(ctx, "Temp-URL-Key", key); err != nil {
		return "", err
	}

	headers, err := m.headAcc(ctx)
	if err != nil {
		return "", err
	}
	echoed := firstHeader(headers, "X-Account-Meta-Temp-Url-Key")
	if echoed != key {
		return "", haioerr.New(haioerr.KindTempURLKeyNotAccepted, "server did not echo back the installed Temp-URL-Key")
	}

	m.key = key
	return m.key, nil
}

func firstHeader(headers map[string][]string, name string) string {
	for k, vs := range headers {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Sign produces a TempURL per spec.md §4.8. When prefix is true, method is
// prefixed with "prefix:" and objectPath is treated as a prefix.
func Sign(key, method, objectPath string, duration time.Duration, ip string, prefix bool) (string, error) {
	if key == "" {
		return "", haioerr.New(haioerr.KindTempURLKeyNotAccepted, "no Temp-URL-Key available")
	}

	expires := time.Now().UTC().Unix() + int64(duration/time.Second)
	signMethod := method
	if prefix {
		signMethod = "prefix:" + method
	}

	stringToSign := signMethod + "\n" + strconv.FormatInt(expires, 10) + "\n" + objectPath
	if ip != "" {
		stringToSign += "\nip=" + ip
	}

	sig := hmacSHA1Hex(key, stringToSign)

	q := url.Values{}
	q.Set("temp_url_sig", sig)
	q.Set("temp_url_expires", strconv.FormatInt(expires, 10))
	if ip != "" {
		q.Set("ip", ip)
	}
	return objectPath + "?" + q.Encode(), nil
}

func hmacSHA1Hex(key, message string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidationResult is the result of Validate (spec.md §4.8).
type ValidationResult struct {
	Valid         bool
	ExpiresAt     time.Time
	TimeRemaining time.Duration
	Reason        string
}

// reasons for Valid == false.
const (
	ReasonMissingParams   = "missing_params"
	ReasonExpired         = "expired"
	ReasonMalformedExpire = "malformed_expires"
)

// Validate checks a TempURL's expiry only; the signature itself is not
// re-verified client-side since that would require the key (spec.md §4.8).
func Validate(rawURL string) (ValidationResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{}, err
	}
	q := u.Query()

	sig := q.Get("temp_url_sig")
	expiresRaw := q.Get("temp_url_expires")
	if sig == "" || expiresRaw == "" {
		return ValidationResult{Valid: false, Reason: ReasonMissingParams}, nil
	}

	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return ValidationResult{Valid: false, Reason: ReasonMalformedExpire}, nil
	}

	expiresAt := time.Unix(expires, 0).UTC()
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		return ValidationResult{Valid: false, ExpiresAt: expiresAt, Reason: ReasonExpired}, nil
	}

	return ValidationResult{Valid: true, ExpiresAt: expiresAt, TimeRemaining: remaining}, nil
}

// DesyncDetected logs (via the caller) a KEY_DESYNC condition: a signed URL
// that the server rejected with 401 despite a locally valid signature,
// which means the local key and the server's installed key have drifted
// (spec.md §4.8: "the fix is a reset").
func DesyncDetected(objectPath string) *haioerr.Error {
	return haioerr.New(haioerr.KindTempURLKeyDesync, fmt.Sprintf("server rejected signed URL for %s; call Reset and re-sign", objectPath))
}
