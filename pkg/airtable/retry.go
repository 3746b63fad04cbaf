package airtable

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// retryPolicy bounds how long a rate limited request keeps being resent
type retryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// Airtable asks clients to back off for 30 seconds after a 429
var defaultRetryPolicy = retryPolicy{
	MaxTries:        6,
	InitialInterval: time.Second,
	MaxInterval:     30 * time.Second,
	MaxElapsed:      2 * time.Minute,
}

var errRateLimited = errors.New("rate limited")

// rateLimitTransport resends requests that Airtable answered with 429. A
// rate limited request was never processed, so resending a create is safe.
// Transport errors and every other status, 5xx included, pass through
// untouched because a write may already have landed. When the tries run
// out the last 429 is returned as is for the status validator.
func rateLimitTransport(base http.RoundTripper, policy retryPolicy, logger *zap.Logger) http.RoundTripper {
	return requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		expBackoff := backoff.NewExponentialBackOff()
		expBackoff.InitialInterval = policy.InitialInterval
		expBackoff.MaxInterval = policy.MaxInterval
		expBackoff.Reset()

		var attempt uint
		operation := func() (*http.Response, error) {
			attempt++
			attemptReq := req
			if attempt > 1 && req.Body != nil && req.Body != http.NoBody {
				if req.GetBody == nil {
					return nil, backoff.Permanent(errors.New("request body cannot be replayed"))
				}
				body, err := req.GetBody()
				if err != nil {
					return nil, backoff.Permanent(err)
				}
				attemptReq = req.Clone(req.Context())
				attemptReq.Body = body
			}

			res, err := base.RoundTrip(attemptReq)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			if res.StatusCode != http.StatusTooManyRequests || attempt >= policy.MaxTries {
				return res, nil
			}

			_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
			res.Body.Close()

			logger.Warn("Rate limited, will retry",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Uint("attempt", attempt))

			if secs, err := strconv.Atoi(res.Header.Get("Retry-After")); err == nil && secs > 0 {
				return nil, backoff.RetryAfter(secs)
			}
			return nil, errRateLimited
		}

		return backoff.Retry(req.Context(), operation,
			backoff.WithBackOff(expBackoff),
			backoff.WithMaxTries(policy.MaxTries),
			backoff.WithMaxElapsedTime(policy.MaxElapsed))
	})
}
