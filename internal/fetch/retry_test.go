// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances only when the policy sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func testPolicy(clock *fakeClock, maxAttempts int, window, base time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Window:      window,
		BaseDelay:   base,
		now:         clock.Now,
		sleep:       clock.Sleep,
	}
}

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := testPolicy(clock, 4, time.Minute, time.Second)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(clock.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", clock.sleeps, want)
	}
	for i := range want {
		if clock.sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, clock.sleeps[i], want[i])
		}
	}
}

func TestRetryPolicy_BoundedAttempts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := testPolicy(clock, 4, time.Hour, time.Millisecond)

	boom := errors.New("upstream unavailable")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("error %v does not wrap ErrRetriesExhausted", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error %v does not wrap the last error", err)
	}
}

func TestRetryPolicy_RespectsWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	// Each call takes 25s of wall time; the 60s window allows a third call
	// to start at most.
	p := testPolicy(clock, 10, 60*time.Second, time.Second)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		clock.now = clock.now.Add(25 * time.Second)
		return errors.New("slow failure")
	})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() error = %v, want ErrRetriesExhausted", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	for _, d := range clock.sleeps {
		if d > 60*time.Second {
			t.Errorf("sleep %v exceeds window", d)
		}
	}
}

func TestRetryPolicy_DelayCappedAtRemainingWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := testPolicy(clock, 5, 10*time.Second, 8*time.Second)

	_ = p.Do(context.Background(), func(context.Context) error {
		return errors.New("fail")
	})

	// 8s, then min(16s, remaining 2s).
	if len(clock.sleeps) != 2 || clock.sleeps[0] != 8*time.Second || clock.sleeps[1] != 2*time.Second {
		t.Errorf("sleeps = %v, want [8s 2s]", clock.sleeps)
	}
}

func TestRetryPolicy_RetryAfterHint(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := testPolicy(clock, 2, time.Minute, time.Second)

	_ = p.Do(context.Background(), func(context.Context) error {
		return &StatusError{StatusCode: 429, retryAfter: 7 * time.Second}
	})

	if len(clock.sleeps) != 1 || clock.sleeps[0] != 7*time.Second {
		t.Errorf("sleeps = %v, want [7s]", clock.sleeps)
	}
}

func TestRetryPolicy_PermanentAndCircuitOpen(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permanent", Permanent(errors.New("bad request"))},
		{"circuit open", ErrCircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(0, 0)}
			p := testPolicy(clock, 4, time.Minute, time.Second)

			calls := 0
			err := p.Do(context.Background(), func(context.Context) error {
				calls++
				return tt.err
			})
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
			if errors.Is(err, ErrRetriesExhausted) {
				t.Errorf("error %v should not be ErrRetriesExhausted", err)
			}
		})
	}
}

func TestRetryPolicy_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, Window: time.Minute, BaseDelay: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errors.New("fail")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do() did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_OnRetryHook(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := testPolicy(clock, 3, time.Minute, time.Second)

	var attempts []int
	p.OnRetry = func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}
	_ = p.Do(context.Background(), func(context.Context) error { return errors.New("x") })

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestDoGeneric(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := testPolicy(clock, 3, time.Minute, time.Millisecond)

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("first call fails")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want ok", got)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 4 || p.Window != 60*time.Second {
		t.Errorf("DefaultRetryPolicy() = %+v, want 4 attempts within 60s", p)
	}
}
