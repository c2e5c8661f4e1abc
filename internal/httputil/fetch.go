package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnauthenticated names the 401 condition. DoIdempotent does not return
// it: a 401 response is handed back as-is, and C2 checks the status code
// itself before its re-authentication attempt.
var ErrUnauthenticated = errors.New("unauthenticated")

// RetryPolicy parameterizes the exponential backoff used for idempotent
// GET/HEAD retries (spec.md §4.2: 3 tries, base 500ms, cap 4s).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.1
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
}

// DoIdempotent executes an idempotent (GET/HEAD) request, retrying on
// transient network errors per policy. It does not retry on non-2xx HTTP
// responses — those are returned as-is for the caller to classify.
func DoIdempotent(ctx context.Context, client *http.Client, policy RetryPolicy, newReq func() (*http.Request, error)) (*http.Response, error) {
	var res *http.Response
	op := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		req = req.WithContext(ctx)

		r, err := client.Do(req)
		if err != nil {
			// network-level failure: transient, eligible for retry.
			return err
		}
		res = r
		return nil
	}

	if err := backoff.Retry(op, policy.backoff(ctx)); err != nil {
		return nil, err
	}
	return res, nil
}

// ReadAllAndClose reads the full body and closes it, as most callers want.
func ReadAllAndClose(res *http.Response) ([]byte, error) {
	defer func() { _ = res.Body.Close() }()
	return io.ReadAll(res.Body)
}
