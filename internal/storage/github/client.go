// Package github adapts a GitHub repository's issue tracker to the storage
// provider contract. Entries map to issues, notes to comments, and the
// classification enums to labels. The REST API is the source of truth; a
// short-lived read cache absorbs repeated lookups between writes.
package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/devloghq/devlog/internal/model"
)

// client wraps resty with auth, bounded retry, and error taxonomy mapping.
type client struct {
	http       *resty.Client
	maxRetries int
	log        zerolog.Logger
}

func newClient(baseURL, token string, timeout time.Duration, maxRetries int, log zerolog.Logger) *client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28").
		SetAuthToken(token).
		SetTimeout(timeout)
	return &client{http: c, maxRetries: maxRetries, log: log}
}

// do executes one API call with exponential backoff on transient failures.
// Rate-limit responses are retried up to maxRetries and then surface as
// model.ErrRateLimited; 4xx responses map to the shared sentinels and are
// never retried.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	op := func() error {
		req := c.http.R().SetContext(ctx)
		if body != nil {
			req.SetBody(body)
		}
		if out != nil {
			req.SetResult(out)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			// Transport errors are worth one more try.
			return fmt.Errorf("github: %s %s: %v: %w", method, path, err, model.ErrConnection)
		}
		if resp.IsSuccess() {
			return nil
		}
		switch code := resp.StatusCode(); {
		case code == http.StatusNotFound || code == http.StatusGone:
			return backoff.Permanent(fmt.Errorf("github: %s %s: %w", method, path, model.ErrNotFound))
		case rateLimited(resp):
			c.log.Warn().Str("path", path).Msg("github rate limit hit, backing off")
			return fmt.Errorf("github: %s %s: %w", method, path, model.ErrRateLimited)
		case code == http.StatusUnprocessableEntity:
			return backoff.Permanent(fmt.Errorf("github: %s %s: %s: %w", method, path, resp.String(), model.ErrValidation))
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("github: %s %s: status %d: %w", method, path, code, model.ErrConnection))
		case code >= 500:
			return fmt.Errorf("github: %s %s: status %d: %w", method, path, code, model.ErrConnection)
		default:
			return backoff.Permanent(fmt.Errorf("github: %s %s: status %d: %s", method, path, code, resp.String()))
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 15 * time.Second
	bo := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)
	return backoff.Retry(op, bo)
}

func rateLimited(resp *resty.Response) bool {
	if resp.StatusCode() == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode() == http.StatusForbidden &&
		resp.Header().Get("X-RateLimit-Remaining") == "0"
}
