// Package retry classifies failures from retryable operations (network
// fetches, package-metadata refreshes) and applies bounded exponential
// backoff to the single class that is safe to re-run.
//
// Only Transient failures are ever retried. Permanent failures (404, bad URL,
// unsupported platform) and Security failures (checksum or signature
// mismatch) fail on first occurrence — security failures are never retried
// under any configuration. Unsafe failures (a detected partial mutation such
// as a half-extracted archive) are not blindly retried either; the operation
// must clean up and re-enter, or simply fail.
//
// Package-manager installs never pass through this path at all: the only
// waiting permitted for them is lock acquisition, which prevents silently
// re-running non-idempotent mutations.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	booterr "github.com/repoforge/bootstrap/internal/errors"
)

// Class is the retry classification of a failure.
type Class int

const (
	// Transient failures (timeouts, connection resets, HTTP 429/5xx) may be
	// retried within the policy's bounds.
	Transient Class = iota
	// Permanent failures will not succeed on retry.
	Permanent
	// Security failures (checksum/signature mismatch) must never be retried.
	Security
	// Unsafe failures left partial state behind; blind retry is forbidden.
	Unsafe
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Security:
		return "security"
	case Unsafe:
		return "unsafe"
	default:
		return "unknown"
	}
}

// ClassifiedError attaches an explicit class to an error. Operations that
// know their failure mode wrap errors with Classified to bypass inference.
type ClassifiedError struct {
	Class Class
	Err   error
}

// Classified wraps err with an explicit retry class.
func Classified(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// Error returns the underlying message.
func (e *ClassifiedError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error { return e.Err }

// HTTPStatusError reports a failed HTTP request with an optional Retry-After
// hint from the server.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration // 0 when the server sent no hint
}

// NewHTTPStatusError builds an HTTPStatusError from a response.
func NewHTTPStatusError(resp *http.Response) *HTTPStatusError {
	e := &HTTPStatusError{StatusCode: resp.StatusCode}
	if resp.Request != nil && resp.Request.URL != nil {
		e.URL = resp.Request.URL.String()
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := time.ParseDuration(s + "s"); err == nil {
			e.RetryAfter = secs
		}
	}
	return e
}

// Error returns the formatted message.
func (e *HTTPStatusError) Error() string {
	return "http " + http.StatusText(e.StatusCode) + ": " + e.URL
}

// Classify infers the retry class of err. Explicit classifications win;
// otherwise network timeouts, connection resets, and HTTP 429/5xx are
// Transient, checksum mismatches are Security, HTTP 4xx and unsupported
// platforms are Permanent. Unknown errors default to Permanent: retrying an
// unknown failure is how half-applied installs happen.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}

	var checksum *booterr.ChecksumError
	if errors.As(err, &checksum) {
		return Security
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return Transient
		case httpErr.StatusCode >= 500:
			return Transient
		default:
			return Permanent
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	if strings.Contains(err.Error(), "connection reset") {
		return Transient
	}

	return Permanent
}

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxTotalTime time.Duration
	Jitter       bool
}

// NetworkDefault is the policy for network fetches and metadata refreshes.
func NetworkDefault() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		MaxTotalTime: 60 * time.Second,
		Jitter:       true,
	}
}

// Do runs op, retrying Transient failures with exponential backoff until
// MaxAttempts or MaxTotalTime is reached — whichever comes first — and then
// surfaces the last error. Permanent, Security, and Unsafe failures are
// returned immediately without re-invoking op. A Retry-After hint from an
// HTTP 429/503 response overrides the computed backoff for that attempt.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	start := time.Now()
	delay := policy.InitialDelay

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if Classify(lastErr) != Transient {
			return lastErr
		}
		if attempt >= policy.MaxAttempts {
			return lastErr
		}

		wait := delay
		var httpErr *HTTPStatusError
		if errors.As(lastErr, &httpErr) && httpErr.RetryAfter > 0 {
			wait = httpErr.RetryAfter
		} else if policy.Jitter {
			wait += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		}

		if policy.MaxTotalTime > 0 && time.Since(start)+wait > policy.MaxTotalTime {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if delay *= 2; delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}
