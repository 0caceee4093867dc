// Package transport provides the rate-limited HTTP transport handed to
// source adapters through the registry context. Throttling is
// dual-strategy: a proactive token bucket paces requests, and response
// headers feed a reactive limit so the client backs off before the
// server has to refuse.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
)

const (
	// HeaderRateRemaining is the remaining requests header.
	HeaderRateRemaining = "X-RateLimit-Remaining"

	// HeaderRateReset is the reset timestamp header (Unix seconds).
	HeaderRateReset = "X-RateLimit-Reset"

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"

	// DefaultMinBuffer is the minimum remaining requests before waiting
	// for the reset, reserving headroom for other clients of the key.
	DefaultMinBuffer = 10
)

// Limiter combines proactive token-bucket pacing with reactive state
// parsed from API responses.
type Limiter struct {
	bucket    *rate.Limiter
	minBuffer int

	mu        sync.Mutex
	remaining int
	resetTime time.Time
	seen      bool
}

// NewLimiter creates a limiter pacing at rps requests per second with
// the given burst.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		bucket:    rate.NewLimiter(rate.Limit(rps), burst),
		minBuffer: DefaultMinBuffer,
	}
}

// Wait blocks until it is safe to make a request.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	seen := l.seen
	remaining := l.remaining
	resetTime := l.resetTime
	l.mu.Unlock()

	if seen && remaining < l.minBuffer && time.Now().Before(resetTime) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(resetTime)):
		}
	}
	return nil
}

// UpdateFromResponse feeds the reactive state from response headers.
func (l *Limiter) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if remaining := resp.Header.Get(HeaderRateRemaining); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			l.remaining = val
			l.seen = true
		}
	}
	if reset := resp.Header.Get(HeaderRateReset); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			l.resetTime = time.Unix(val, 0)
		}
	}
	if retryAfter := resp.Header.Get(HeaderRetryAfter); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			l.resetTime = time.Now().Add(time.Duration(seconds) * time.Second)
		}
	}
}

// Remaining returns the last reported remaining quota.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}

// ResetTime returns the last reported reset time.
func (l *Limiter) ResetTime() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetTime
}

// Transport is a rate-limited http.RoundTripper. A 429 response is
// consumed and surfaced as an error wrapping domain.ErrRateLimited, so
// adapter failures classify as rate_limited without every adapter
// parsing status codes.
type Transport struct {
	base    http.RoundTripper
	limiter *Limiter
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps base with the given limiter. A nil base uses
// http.DefaultTransport.
func NewTransport(base http.RoundTripper, limiter *Limiter) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, limiter: limiter}
}

// NewClient builds an http.Client paced at rps requests per second.
func NewClient(rps float64, burst int) *http.Client {
	return &http.Client{
		Transport: NewTransport(nil, NewLimiter(rps, burst)),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	t.limiter.UpdateFromResponse(resp)

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s, reset at %s",
			domain.ErrRateLimited, req.Method, req.URL.Redacted(),
			t.limiter.ResetTime().Format(time.RFC3339))
	}
	return resp, nil
}
