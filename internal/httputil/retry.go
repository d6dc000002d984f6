// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across components.
package httputil

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// retriable HTTP responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = time.Second

// RetryMaxDelay caps the exponential part of the backoff.
var RetryMaxDelay = 20 * time.Second

const (
	defaultMaxRetries = 4
	defaultJitter     = 0.35
)

// Retriable reports whether an HTTP status code is worth retrying:
// 429 and the transient 5xx family (500, 502, 503, 504).
func Retriable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Backoff returns the delay before retry number attempt (0-based):
// min(maxDelay, base*2^attempt) plus up to jitter*delay of random slack.
func Backoff(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * base
	if maxDelay > 0 && (d > maxDelay || d <= 0) {
		d = maxDelay
	}
	if jitter > 0 && d > 0 {
		d += time.Duration(rand.Float64() * jitter * float64(d))
	}
	return d
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// DoWithRetry executes an HTTP request and retries on retriable status codes
// (see Retriable) with capped exponential backoff and jitter, starting at
// RetryBaseDelay.
//
// When maxRetries is 0 the default (4) is used. On each retriable response
// the body is drained and closed before sleeping. If the context is cancelled
// during a backoff wait the function returns ctx.Err(). After exhausting
// retries the last response is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}

		if !Retriable(resp.StatusCode) {
			return resp, nil
		}

		if attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		// Requests with a body must be replayable.
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		if err := Sleep(ctx, Backoff(attempt, RetryBaseDelay, RetryMaxDelay, defaultJitter)); err != nil {
			return nil, err
		}
	}
}

// ReadLimited reads at most limit bytes of r. It is used to capture error
// bodies without buffering arbitrarily large responses.
func ReadLimited(r io.Reader, limit int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return string(b)
}
