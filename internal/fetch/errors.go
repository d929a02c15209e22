// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRetriesExhausted is wrapped around the last error when a retry policy gives up.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrCircuitOpen is returned when the vendor circuit breaker rejects a request.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrCursorLoop is returned when a paginated endpoint repeats a cursor.
	ErrCursorLoop = errors.New("pagination cursor repeated")
)

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request to %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// RetryAfter returns the server's Retry-After hint, or zero.
func (e *StatusError) RetryAfter() time.Duration {
	return e.retryAfter
}

// Temporary reports whether the status is worth retrying later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that RetryPolicy.Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// retryAfterHint extracts a server-provided minimum delay from err.
func retryAfterHint(err error) time.Duration {
	var hinted interface{ RetryAfter() time.Duration }
	if errors.As(err, &hinted) {
		return hinted.RetryAfter()
	}
	return 0
}
