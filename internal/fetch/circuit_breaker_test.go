// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/lmsync/internal/metrics"
)

// TestCircuitBreaker_StateTransitions walks closed -> open -> half-open -> closed.
func TestCircuitBreaker_StateTransitions(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, ClientConfig{
		Name: "Transitions",
		Breaker: BreakerConfig{
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      50 * time.Millisecond,
			MinRequests:  3,
			FailureRatio: 0.6,
		},
	})
	ctx := context.Background()

	if got := c.BreakerState(); got != "closed" {
		t.Fatalf("initial state = %s, want closed", got)
	}

	for i := 0; i < 3; i++ {
		_, _ = c.Get(ctx, "x", nil)
	}
	if got := c.BreakerState(); got != "open" {
		t.Fatalf("state after 3 failures = %s, want open", got)
	}

	_, err := c.Get(ctx, "x", nil)
	if !errors.Is(err, ErrCircuitOpen) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Get() while open error = %v, want ErrCircuitOpen wrapping ErrOpenState", err)
	}

	time.Sleep(80 * time.Millisecond)
	if got := c.BreakerState(); got != "half-open" {
		t.Fatalf("state after timeout = %s, want half-open", got)
	}

	failing.Store(false)
	if _, err := c.Get(ctx, "x", nil); err != nil {
		t.Fatalf("half-open Get() error = %v", err)
	}
	if got := c.BreakerState(); got != "closed" {
		t.Errorf("state after successful half-open request = %s, want closed", got)
	}

	name := "lms-transitions"
	if got := testutil.ToFloat64(metrics.CircuitBreakerTransitions.WithLabelValues(name, "closed", "open")); got != 1 {
		t.Errorf("closed->open transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues(name)); got != 0 {
		t.Errorf("state gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected")); got != 1 {
		t.Errorf("rejected requests = %v, want 1", got)
	}
}

// TestCircuitBreaker_ClientErrorsDoNotTrip verifies 4xx responses are not failures.
func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, ClientConfig{
		Name:    "ClientErrors",
		Breaker: BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 2, FailureRatio: 0.5},
	})

	for i := 0; i < 5; i++ {
		_, err := c.Get(context.Background(), "x", nil)
		if !IsStatus(err, http.StatusForbidden) {
			t.Fatalf("Get() error = %v, want 403", err)
		}
	}
	if got := c.BreakerState(); got != "closed" {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestIsBreakerSuccess(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"404", &StatusError{StatusCode: 404}, true},
		{"429", &StatusError{StatusCode: 429}, false},
		{"500", &StatusError{StatusCode: 500}, false},
		{"network", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBreakerSuccess(tt.err); got != tt.want {
				t.Errorf("isBreakerSuccess(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStateConversions(t *testing.T) {
	if stateToFloat(gobreaker.StateOpen) != 2 || stateToString(gobreaker.StateOpen) != "open" {
		t.Error("open state conversion mismatch")
	}
	if stateToFloat(gobreaker.StateHalfOpen) != 1 || stateToString(gobreaker.StateHalfOpen) != "half-open" {
		t.Error("half-open state conversion mismatch")
	}
}
