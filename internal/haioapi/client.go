// Package haioapi implements C2, the authenticated HTTP client for the
// Swift/Haio object-store account endpoint (spec.md §4.2, §6).
package haioapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/haio/mountctl/internal/config"
	"github.com/haio/mountctl/internal/haioerr"
	"github.com/haio/mountctl/internal/httputil"
)

// Container is a server-reported bucket summary (spec.md §3).
type Container struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
	Bytes int64  `json:"bytes"`
}

// Object is a server-reported object summary.
type Object struct {
	Name         string `json:"name"`
	Bytes        int64  `json:"bytes"`
	LastModified string `json:"last_modified"`
}

// Client is the authenticated API client for one account.
type Client struct {
	cfg    *config.Config
	logger zerolog.Logger
	hc     *http.Client
	policy httputil.RetryPolicy

	mu         sync.RWMutex
	username   string
	password   string // retained only in memory, only if the caller opted in
	token      string
	storageURL string
}

// New creates a Client bound to cfg.BaseURL.
func New(cfg *config.Config, logger zerolog.Logger) *Client {
	transport := httputil.NewLoggingRoundTripper(logger, http.DefaultTransport.(*http.Transport).Clone())
	return &Client{
		cfg:    cfg,
		logger: logger,
		hc:     &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		policy: httputil.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
	}
}

// Token returns the current cached bearer token, if any.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// StorageURL returns the account's storage root, set after Authenticate.
func (c *Client) StorageURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storageURL
}

// RestoreSession seeds the client with a previously persisted token/storage
// URL, e.g. loaded from the credential store, without re-authenticating.
func (c *Client) RestoreSession(username, token, storageURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.token = token
	c.storageURL = storageURL
}

// Authenticate performs the Swift-style auth handshake (spec.md §4.2, §6):
// GET <base>/auth/v1.0 with X-Auth-User/X-Auth-Key, expecting X-Auth-Token
// and X-Storage-Url in a 2xx response.
func (c *Client) Authenticate(ctx context.Context, account, username, password string) (token, storageURL string, err error) {
	authURL := c.cfg.BaseURL + "/auth/v1.0"

	req, err := http.NewRequest(http.MethodGet, authURL, nil)
	if err != nil {
		return "", "", haioerr.Wrap(haioerr.KindNetworkError, err, "building auth request")
	}
	req.Header.Set("X-Auth-User", account+":"+username)
	req.Header.Set("X-Auth-Key", password)

	res, err := c.hc.Do(req.WithContext(ctx))
	if err != nil {
		return "", "", classifyTransportError(err)
	}
	body, _ := httputil.ReadAllAndClose(res)

	if res.StatusCode/100 != 2 {
		if res.StatusCode == http.StatusUnauthorized {
			return "", "", haioerr.New(haioerr.KindAuthInvalid, "invalid username or password")
		}
		return "", "", haioerr.ServerError(res.StatusCode, string(body))
	}

	token = res.Header.Get("X-Auth-Token")
	storageURL = res.Header.Get("X-Storage-Url")
	if token == "" || storageURL == "" {
		return "", "", haioerr.New(haioerr.KindAuthInvalid, "auth response missing token/storage headers")
	}

	c.mu.Lock()
	c.username = username
	c.password = password
	c.token = token
	c.storageURL = storageURL
	c.mu.Unlock()

	return token, storageURL, nil
}

// ListContainers returns the account's containers (spec.md §4.2). An empty
// account returns an empty (non-nil) slice; errors return nil plus a
// non-nil error, which is the "sentinel distinguishable from empty".
func (c *Client) ListContainers(ctx context.Context) ([]Container, error) {
	body, err := c.getJSON(ctx, c.storageURLOrEmpty(), url.Values{"format": {"json"}})
	if err != nil {
		return nil, err
	}

	containers := []Container{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &containers); err != nil {
			return nil, haioerr.Wrap(haioerr.KindNetworkError, err, "decoding container listing")
		}
	}
	return containers, nil
}

// ListObjects lists objects in container, paginating by marker until a
// short page (< limit) is returned (spec.md §4.2).
func (c *Client) ListObjects(ctx context.Context, container, prefix string) ([]Object, error) {
	const pageLimit = 10000
	var all []Object
	marker := ""
	for {
		q := url.Values{"format": {"json"}, "limit": {strconv.Itoa(pageLimit)}}
		if prefix != "" {
			q.Set("prefix", prefix)
		}
		if marker != "" {
			q.Set("marker", marker)
		}

		body, err := c.getJSON(ctx, c.storageURLOrEmpty()+"/"+container, q)
		if err != nil {
			return nil, err
		}

		var page []Object
		if len(body) > 0 {
			if err := json.Unmarshal(body, &page); err != nil {
				return nil, haioerr.Wrap(haioerr.KindNetworkError, err, "decoding object listing")
			}
		}
		all = append(all, page...)

		if len(page) < pageLimit {
			break
		}
		marker = page[len(page)-1].Name
	}
	return all, nil
}

// SetAccountMeta POSTs an X-Account-Meta-<key> header (spec.md §4.2),
// used by C8 to install the TempURL signing key.
func (c *Client) SetAccountMeta(ctx context.Context, key, value string) error {
	req, err := http.NewRequest(http.MethodPost, c.storageURLOrEmpty(), nil)
	if err != nil {
		return haioerr.Wrap(haioerr.KindNetworkError, err, "building meta request")
	}
	req.Header.Set("X-Account-Meta-"+key, value)
	req.Header.Set("X-Auth-Token", c.Token())

	res, err := c.hc.Do(req.WithContext(ctx))
	if err != nil {
		return classifyTransportError(err)
	}
	body, _ := httputil.ReadAllAndClose(res)
	if res.StatusCode == http.StatusUnauthorized {
		if err := c.reauthenticate(ctx); err != nil {
			return err
		}
		return c.SetAccountMeta(ctx, key, value)
	}
	if res.StatusCode/100 != 2 {
		return haioerr.ServerError(res.StatusCode, string(body))
	}
	return nil
}

// HeadAccount issues a HEAD to the storage URL and returns the response
// headers, used to verify metadata was accepted (spec.md §4.2, §4.8).
func (c *Client) HeadAccount(ctx context.Context) (http.Header, error) {
	res, err := httputil.DoIdempotent(ctx, c.hc, c.policy, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodHead, c.storageURLOrEmpty(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Auth-Token", c.Token())
		return req, nil
	})
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusUnauthorized {
		if err := c.reauthenticate(ctx); err != nil {
			return nil, err
		}
		return c.HeadAccount(ctx)
	}
	if res.StatusCode/100 != 2 {
		return nil, haioerr.ServerError(res.StatusCode, "")
	}
	return res.Header, nil
}

// getJSON performs a retried GET against rawURL with query q, handling the
// single transparent re-authentication attempt on 401 (spec.md §4.2, §7).
func (c *Client) getJSON(ctx context.Context, rawURL string, q url.Values) ([]byte, error) {
	return c.getJSONWithReauth(ctx, rawURL, q, true)
}

func (c *Client) getJSONWithReauth(ctx context.Context, rawURL string, q url.Values, mayReauth bool) ([]byte, error) {
	res, err := httputil.DoIdempotent(ctx, c.hc, c.policy, func() (*http.Request, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		u.RawQuery = q.Encode()
		req, err := http.NewRequest(http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Auth-Token", c.Token())
		return req, nil
	})
	if err != nil {
		return nil, classifyTransportError(err)
	}
	body, _ := httputil.ReadAllAndClose(res)

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		if !mayReauth {
			return nil, haioerr.New(haioerr.KindAuthExpired, "still unauthorized after re-authentication")
		}
		if err := c.reauthenticate(ctx); err != nil {
			return nil, err
		}
		return c.getJSONWithReauth(ctx, rawURL, q, false)
	case res.StatusCode == http.StatusNoContent:
		return nil, nil
	case res.StatusCode/100 != 2:
		return nil, haioerr.ServerError(res.StatusCode, string(body))
	}
	return body, nil
}

// reauthenticate performs the one transparent re-authentication attempt
// when a saved password is available (spec.md §4.2, §7); otherwise it
// surfaces AUTH_INVALID.
func (c *Client) reauthenticate(ctx context.Context) error {
	c.mu.RLock()
	username, password := c.username, c.password
	c.mu.RUnlock()

	if password == "" {
		return haioerr.New(haioerr.KindAuthInvalid, "token expired and no saved password available")
	}

	account := accountNameFromStorageURL(c.storageURLOrEmpty())
	_, _, err := c.Authenticate(ctx, account, username, password)
	if err != nil {
		var he *haioerr.Error
		if errors.As(err, &he) {
			he.Kind = haioerr.KindAuthExpired
		}
		return err
	}
	return nil
}

func (c *Client) storageURLOrEmpty() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storageURL
}

// accountNameFromStorageURL extracts "username" from ".../v1/AUTH_<username>".
func accountNameFromStorageURL(storageURL string) string {
	const marker = "/v1/AUTH_"
	idx := indexOf(storageURL, marker)
	if idx < 0 {
		return ""
	}
	return storageURL[idx+len(marker):]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return haioerr.Wrap(haioerr.KindNetworkTimeout, err, "request timed out")
	}
	return haioerr.Wrap(haioerr.KindNetworkError, err, "request failed")
}
