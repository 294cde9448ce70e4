package projection

import (
	"testing"
	"time"
)

func TestSupersedesByEventTime(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	if !supersedes(t1, "e-2", t0, "e-1") {
		t.Fatal("newer event time must supersede")
	}
	if supersedes(t0, "e-1", t1, "e-2") {
		t.Fatal("older event time must not supersede")
	}
}

func TestSupersedesTieBreaksOnEventID(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	if !supersedes(at, "b", at, "a") {
		t.Fatal("greater event id must win an equal-time tie")
	}
	if supersedes(at, "a", at, "b") {
		t.Fatal("lesser event id must lose an equal-time tie")
	}
	if supersedes(at, "a", at, "a") {
		t.Fatal("an event must not supersede itself")
	}
}

func TestStudentIDPrefersPayload(t *testing.T) {
	if got := studentID("abc", "student/xyz"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := studentID("", "student/xyz"); got != "xyz" {
		t.Fatalf("expected xyz from subject, got %q", got)
	}
	if got := studentID("", "instructor/xyz"); got != "" {
		t.Fatalf("expected empty for non-student subject, got %q", got)
	}
}
