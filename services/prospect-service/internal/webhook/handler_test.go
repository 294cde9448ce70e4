package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/campuscrm/libs/events"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/adapter"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/projection"
)

type stubApplier struct {
	applied []events.Envelope
	outcome projection.Outcome
	err     error
}

func (s *stubApplier) Apply(_ context.Context, env events.Envelope) (projection.Outcome, error) {
	if s.err != nil {
		return "", s.err
	}
	s.applied = append(s.applied, env)
	return s.outcome, nil
}

func newTestHandler(applier Applier, key string) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(adapter.NewNormalizer(""), applier, key, logger)
}

const standardBatch = `[{
	"eventId": "e-1",
	"eventType": "StudentCreated",
	"schemaVersion": "v1",
	"occurredAt": "2026-05-01T10:00:00Z",
	"producer": "student-service",
	"correlationId": "c-1",
	"subject": "student/s-1",
	"data": {"studentId": "s-1", "firstName": "Jane", "email": "jane@x.com", "status": "applied"}
}]`

func TestEventsAppliesBatch(t *testing.T) {
	applier := &stubApplier{outcome: projection.OutcomeCreated}
	h := newTestHandler(applier, "")

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(standardBatch))
	rec := httptest.NewRecorder()
	h.Events(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(applier.applied) != 1 || applier.applied[0].EventID != "e-1" {
		t.Fatalf("expected one applied envelope, got %+v", applier.applied)
	}

	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["received"] != 1 || resp["created"] != 1 {
		t.Fatalf("unexpected counts: %v", resp)
	}
}

func TestEventsRejectsNonPost(t *testing.T) {
	h := newTestHandler(&stubApplier{}, "")
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	h.Events(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestEventsValidationKey(t *testing.T) {
	applier := &stubApplier{outcome: projection.OutcomeCreated}
	h := newTestHandler(applier, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(standardBatch))
	rec := httptest.NewRecorder()
	h.Events(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	if len(applier.applied) != 0 {
		t.Fatal("nothing must be applied on an unauthorized request")
	}

	req = httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(standardBatch))
	req.Header.Set(ValidationKeyHeader, "s3cret")
	rec = httptest.NewRecorder()
	h.Events(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
}

func TestEventsMalformedBatch(t *testing.T) {
	h := newTestHandler(&stubApplier{}, "")
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"not": "a batch"}`))
	rec := httptest.NewRecorder()
	h.Events(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEventsHandshakeShortCircuits(t *testing.T) {
	applier := &stubApplier{outcome: projection.OutcomeCreated}
	h := newTestHandler(applier, "")

	body := `[{
		"eventId": "v-1",
		"eventType": "subscription.validation",
		"schemaVersion": "v1",
		"occurredAt": "2026-05-01T10:00:00Z",
		"producer": "push-fanout",
		"correlationId": "c-1",
		"subject": "subscription",
		"data": {"validationCode": "code-123"}
	}]`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Events(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["validationResponse"] != "code-123" {
		t.Fatalf("expected echoed validation code, got %v", resp)
	}
	if len(applier.applied) != 0 {
		t.Fatal("handshake must not reach the applier")
	}
}

func TestEventsApplyFailureReturns500(t *testing.T) {
	h := newTestHandler(&stubApplier{err: errors.New("db down")}, "")
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(standardBatch))
	rec := httptest.NewRecorder()
	h.Events(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestEventsLegacyBatch(t *testing.T) {
	applier := &stubApplier{outcome: projection.OutcomeCreated}
	h := newTestHandler(applier, "")

	body := `[{
		"messageId": "m-1",
		"messageType": "STUDENT_CREATED",
		"occurredOn": "2026-05-01 10:00:00",
		"source": "campus-legacy",
		"correlationId": "c-1",
		"entity": "student",
		"entityId": "s-9",
		"body": {"studentId": "s-9", "firstName": "Jo", "email": "jo@x.com", "status": "applied"}
	}]`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Events(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(applier.applied) != 1 {
		t.Fatalf("expected one applied envelope, got %d", len(applier.applied))
	}
	if got := applier.applied[0]; got.EventID != "m-1" || got.EventType != events.TypeStudentCreated {
		t.Fatalf("unexpected normalized envelope: %+v", got)
	}
}
