package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewAssignsIdentityOnce(t *testing.T) {
	env, err := New(TypeStudentCreated, "student-service", "student/abc", "req-1", StudentCreatedData{
		StudentID: "abc",
		FirstName: "Jane",
		Email:     "jane@x.com",
		Status:    StudentApplied,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if env.EventID == "" {
		t.Fatal("expected generated event id")
	}
	if env.OccurredAt.IsZero() || env.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC occurredAt, got %v", env.OccurredAt)
	}
	if env.SchemaVersion != SchemaVersionV1 {
		t.Fatalf("expected schema version %q, got %q", SchemaVersionV1, env.SchemaVersion)
	}

	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	again, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if again.EventID != env.EventID {
		t.Fatalf("event id changed across round trip: %s != %s", again.EventID, env.EventID)
	}
}

func TestOptionalFieldsOmittedWhenEmpty(t *testing.T) {
	env, err := New(TypeStudentDeleted, "student-service", "student/abc", "req-2", StudentDeletedData{StudentID: "abc"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(raw)
	for _, field := range []string{"causationId", "tenantId", "traceContext"} {
		if strings.Contains(s, field) {
			t.Fatalf("expected %s to be omitted, got %s", field, s)
		}
	}

	withOpts, err := New(TypeStudentDeleted, "student-service", "student/abc", "req-3", StudentDeletedData{StudentID: "abc"},
		WithCausationID("cause-1"), WithTenantID("tenant-1"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	raw, err = withOpts.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"causationId":"cause-1"`) {
		t.Fatalf("expected causationId in %s", raw)
	}
	if !strings.Contains(string(raw), `"tenantId":"tenant-1"`) {
		t.Fatalf("expected tenantId in %s", raw)
	}
}

func TestStudentStatusSerializesLowercase(t *testing.T) {
	raw, err := json.Marshal(StudentCreatedData{StudentID: "abc", Status: StudentEnrolled})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"status":"enrolled"`) {
		t.Fatalf("expected lowercase status, got %s", raw)
	}
}

func TestDecodePayloadTypedAndFallback(t *testing.T) {
	env, err := New(TypeStudentCreated, "student-service", "student/abc", "req-4", StudentCreatedData{
		StudentID: "abc",
		FirstName: "Jane",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	payload, err := env.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	created, ok := payload.(StudentCreatedData)
	if !ok {
		t.Fatalf("expected StudentCreatedData, got %T", payload)
	}
	if created.FirstName != "Jane" {
		t.Fatalf("expected Jane, got %q", created.FirstName)
	}

	// Unknown event types still decode: the raw fallback keeps the data
	// intact so a newer schema does not break this consumer.
	unknown, err := Unmarshal([]byte(`{"eventId":"e-1","eventType":"StudentGraduated","schemaVersion":"v2","occurredAt":"2026-05-01T10:00:00Z","producer":"student-service","correlationId":"req-5","subject":"student/abc","data":{"honors":true}}`))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if unknown.Subject != "student/abc" {
		t.Fatalf("common fields should populate for unknown types, got subject %q", unknown.Subject)
	}
	payload, err = unknown.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	raw, ok := payload.(RawPayload)
	if !ok {
		t.Fatalf("expected RawPayload, got %T", payload)
	}
	if raw.EventType != "StudentGraduated" || len(raw.Data) == 0 {
		t.Fatalf("unexpected raw payload: %+v", raw)
	}
}
