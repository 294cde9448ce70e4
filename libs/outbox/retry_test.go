package outbox

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	base := 2 * time.Second
	cap := 30 * time.Second

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, c := range cases {
		if got := backoffDelay(base, cap, c.attempts); got != c.want {
			t.Fatalf("attempts=%d: expected %s, got %s", c.attempts, c.want, got)
		}
	}
}

func TestRetryTrackerGatesAndClears(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := newRetryTracker(2*time.Second, time.Minute, 3)

	if !tracker.ready(1, now) {
		t.Fatal("fresh record should be ready")
	}

	attempts, exhausted := tracker.failure(1, now)
	if attempts != 1 || exhausted {
		t.Fatalf("expected attempt 1 not exhausted, got %d %v", attempts, exhausted)
	}
	if tracker.ready(1, now) {
		t.Fatal("record should back off right after a failure")
	}
	if !tracker.ready(1, now.Add(2*time.Second)) {
		t.Fatal("record should be ready once the backoff elapses")
	}

	// Other records are unaffected.
	if !tracker.ready(2, now) {
		t.Fatal("unrelated record should be ready")
	}

	tracker.success(1)
	if !tracker.ready(1, now) {
		t.Fatal("success should clear the backoff state")
	}
}

func TestRetryTrackerSignalsExhaustionOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := newRetryTracker(time.Second, time.Minute, 3)

	var exhaustedAt []int
	for i := 1; i <= 5; i++ {
		attempts, exhausted := tracker.failure(7, now)
		if attempts != i {
			t.Fatalf("expected attempts %d, got %d", i, attempts)
		}
		if exhausted {
			exhaustedAt = append(exhaustedAt, i)
		}
	}
	if len(exhaustedAt) != 1 || exhaustedAt[0] != 3 {
		t.Fatalf("expected exhaustion signal exactly at attempt 3, got %v", exhaustedAt)
	}
}
