package adapter

import (
	"errors"
	"testing"

	"github.com/md-rashed-zaman/campuscrm/libs/events"
)

func TestNormalizeStandardBatch(t *testing.T) {
	body := []byte(`[
		{"eventId":"e-1","eventType":"StudentCreated","schemaVersion":"v1","occurredAt":"2026-05-01T10:00:00Z","producer":"student-service","correlationId":"req-1","subject":"student/abc","data":{"studentId":"abc","firstName":"Jane","email":"jane@x.com","status":"applied"}},
		{"eventId":"e-2","eventType":"StudentUpdated","schemaVersion":"v1","occurredAt":"2026-05-01T10:05:00Z","producer":"student-service","correlationId":"req-2","subject":"student/abc","data":{"studentId":"abc","status":"enrolled"}}
	]`)

	envs, hs, err := NewNormalizer("").Normalize(body)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if hs != nil {
		t.Fatal("unexpected handshake")
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envs))
	}
	if envs[0].EventType != events.TypeStudentCreated || envs[0].Subject != "student/abc" {
		t.Fatalf("unexpected first envelope: %+v", envs[0])
	}
	if envs[1].OccurredAt.Hour() != 10 || envs[1].OccurredAt.Minute() != 5 {
		t.Fatalf("unexpected occurredAt: %v", envs[1].OccurredAt)
	}
}

func TestNormalizeLegacyFallback(t *testing.T) {
	body := []byte(`[
		{"messageId":"m-1","messageType":"STUDENT_CREATED","occurredOn":"2026-05-01 10:00:00","source":"campus-legacy","correlationId":"req-9","entity":"student","entityId":"abc","body":{"studentId":"abc","firstName":"Jane"}}
	]`)

	envs, hs, err := NewNormalizer("").Normalize(body)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if hs != nil {
		t.Fatal("unexpected handshake")
	}
	if len(envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envs))
	}
	env := envs[0]
	if env.EventID != "m-1" {
		t.Fatalf("legacy messageId must become the dedup key, got %q", env.EventID)
	}
	if env.EventType != events.TypeStudentCreated {
		t.Fatalf("expected StudentCreated, got %q", env.EventType)
	}
	if env.Subject != "student/abc" {
		t.Fatalf("expected student/abc, got %q", env.Subject)
	}
	if env.Producer != "campus-legacy" {
		t.Fatalf("expected producer campus-legacy, got %q", env.Producer)
	}
}

func TestNormalizeLegacyUnknownTypePassesThrough(t *testing.T) {
	body := []byte(`[{"messageId":"m-2","messageType":"STUDENT_GRADUATED","occurredOn":"2026-05-01T10:00:00Z","entity":"student","entityId":"abc","body":{}}]`)
	envs, _, err := NewNormalizer("").Normalize(body)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if envs[0].EventType != "StudentGraduated" {
		t.Fatalf("expected StudentGraduated, got %q", envs[0].EventType)
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"eventId":"e-1"}`),
		[]byte(`[{"something":"else"}]`),
		[]byte(`[{"messageId":"m-1","messageType":"STUDENT_CREATED","occurredOn":"yesterday","body":{}}]`),
	}
	for _, body := range cases {
		if _, _, err := NewNormalizer("").Normalize(body); !errors.Is(err, ErrMalformedBatch) {
			t.Fatalf("expected ErrMalformedBatch for %s, got %v", body, err)
		}
	}
}

func TestNormalizeHandshakeShortCircuits(t *testing.T) {
	body := []byte(`[{"eventId":"v-1","eventType":"subscription.validation","schemaVersion":"v1","occurredAt":"2026-05-01T10:00:00Z","producer":"pushgate","correlationId":"","subject":"","data":{"validationCode":"code-123"}}]`)

	envs, hs, err := NewNormalizer("").Normalize(body)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if hs == nil {
		t.Fatal("expected handshake")
	}
	if hs.ValidationCode != "code-123" {
		t.Fatalf("expected code-123, got %q", hs.ValidationCode)
	}
	if len(envs) != 0 {
		t.Fatalf("handshake must not yield envelopes, got %d", len(envs))
	}
}

func TestValidationEventInsideRealBatchIsNotAHandshake(t *testing.T) {
	body := []byte(`[
		{"eventId":"v-1","eventType":"subscription.validation","schemaVersion":"v1","occurredAt":"2026-05-01T10:00:00Z","producer":"pushgate","correlationId":"","subject":"","data":{"validationCode":"code-123"}},
		{"eventId":"e-1","eventType":"StudentCreated","schemaVersion":"v1","occurredAt":"2026-05-01T10:00:00Z","producer":"student-service","correlationId":"req-1","subject":"student/abc","data":{"studentId":"abc"}}
	]`)

	envs, hs, err := NewNormalizer("").Normalize(body)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if hs != nil {
		t.Fatal("a two-event batch must not be treated as a handshake")
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envs))
	}
}
