// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/lmsync/internal/config"
	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/metrics"
)

// RetryPolicy bounds how often and for how long a call is retried.
type RetryPolicy struct {
	MaxAttempts int           // total calls, first call included
	Window      time.Duration // no retry starts once this much time has passed since the first call
	BaseDelay   time.Duration // first backoff delay, doubled per attempt

	// OnRetry is called before each wait. Optional.
	OnRetry func(attempt int, delay time.Duration, err error)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy allows four calls within a sixty second window.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		Window:      60 * time.Second,
		BaseDelay:   time.Second,
	}
}

// PolicyFromConfig builds a policy from the retry config section.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Window:      cfg.Window,
		BaseDelay:   cfg.BaseDelay,
	}
}

// ForSource returns a copy of the policy that logs and counts retries
// under the given source label.
func (p RetryPolicy) ForSource(source string) RetryPolicy {
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.FetchRetries.WithLabelValues(source).Inc()
		logging.Warn().
			Str("source", source).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("Remote call failed, retrying")
	}
	return p
}

// Do calls op until it succeeds, the attempt budget is spent, or the window
// has elapsed. Errors marked Permanent, ErrCircuitOpen and context errors are
// returned immediately.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	now := p.now
	if now == nil {
		now = time.Now
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	start := now()
	var lastErr error
	attempt := 0

	for attempt < maxAttempts {
		attempt++
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("attempt %d: %w", attempt, ctx.Err())
		}
		if IsPermanent(lastErr) || errors.Is(lastErr, ErrCircuitOpen) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		elapsed := now().Sub(start)
		if elapsed >= p.Window {
			break
		}
		remaining := p.Window - elapsed

		delay := p.backoff(attempt)
		if hint := retryAfterHint(lastErr); hint > delay {
			delay = hint
		}
		if delay > remaining {
			delay = remaining
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("attempt %d: %w", attempt, err)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, lastErr)
}

// backoff returns BaseDelay * 2^(attempt-1).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	return p.BaseDelay * time.Duration(1<<uint(shift))
}

// Do runs op under the policy and returns its value.
func Do[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
