package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	c := New(Options{URL: "ws://unused", BaseDelay: time.Second, MaxDelay: 60 * time.Second})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{7, 60 * time.Second}, // capped
		{10, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := c.backoff(tc.attempt); got != tc.want {
			t.Fatalf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRunGoesOfflineAfterRetryBudget(t *testing.T) {
	var states []State
	c := New(Options{
		// Nothing listens here; every dial fails fast
		URL:        "ws://127.0.0.1:1",
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		OnState:    func(s State) { states = append(states, s) },
	})

	err := c.Run(context.Background())
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if c.State() != StateOffline {
		t.Fatalf("state = %s, want offline", c.State())
	}

	// The machine walked connecting → disconnected cycles before offline
	if len(states) == 0 || states[len(states)-1] != StateOffline {
		t.Fatalf("state transitions: %v", states)
	}
	sawConnecting := false
	for _, s := range states {
		if s == StateConnecting {
			sawConnecting = true
		}
	}
	if !sawConnecting {
		t.Fatalf("never entered connecting: %v", states)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	c := New(Options{
		URL:        "ws://127.0.0.1:1",
		MaxRetries: 1000,
		BaseDelay:  10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
