package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SchemaVersionV1 is the current envelope schema version. Consumers must
// tolerate newer versions by falling back to the common envelope fields.
const SchemaVersionV1 = "v1"

// Envelope is the canonical wrapper around every domain event. The JSON field
// names are the wire contract shared by all services; optional fields are
// omitted when empty so payloads stay small.
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	SchemaVersion string          `json:"schemaVersion"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlationId"`
	CausationID   string          `json:"causationId,omitempty"`
	Subject       string          `json:"subject"`
	TenantID      string          `json:"tenantId,omitempty"`
	TraceContext  string          `json:"traceContext,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Option customizes an envelope at construction time.
type Option func(*Envelope)

func WithCausationID(id string) Option {
	return func(e *Envelope) { e.CausationID = id }
}

func WithTenantID(id string) Option {
	return func(e *Envelope) { e.TenantID = id }
}

func WithTraceContext(traceparent string) Option {
	return func(e *Envelope) { e.TraceContext = traceparent }
}

// WithOccurredAt overrides the event time (e.g. when republishing a recorded
// effect). Normal producers should let New stamp the time.
func WithOccurredAt(t time.Time) Option {
	return func(e *Envelope) { e.OccurredAt = t.UTC() }
}

// New builds an envelope for a domain event. EventID and OccurredAt are
// assigned here exactly once; retries and republish reuse the same envelope
// so the id never changes for a given effect.
func New(eventType, producer, subject, correlationID string, data any, opts ...Option) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: SchemaVersionV1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Subject:       subject,
		Data:          raw,
	}
	for _, opt := range opts {
		opt(&env)
	}
	return env, nil
}

// Marshal serializes the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses an envelope. Unknown event types are not an error here:
// the common fields still populate so the consumer can route or skip.
func Unmarshal(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, err
	}
	e.OccurredAt = e.OccurredAt.UTC()
	return e, nil
}
