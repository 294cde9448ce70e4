package adapter

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/campuscrm/libs/events"
)

// ErrMalformedBatch means the body parsed as neither the standard envelope
// schema nor the legacy schema. The transport gets an error response and
// owns any redelivery; this service does not retry malformed input.
var ErrMalformedBatch = errors.New("malformed event batch")

// DefaultValidationEventType is the reserved event type the push fan-out
// sends when a subscription endpoint must prove it is reachable.
const DefaultValidationEventType = "subscription.validation"

// Handshake is a subscription-validation request extracted from a batch. The
// endpoint echoes the code back instead of processing events.
type Handshake struct {
	ValidationCode string
}

// Normalizer turns inbound wire batches into canonical envelopes. Two
// schemas are supported: the standard envelope JSON used on the broker, and
// the legacy record format still emitted by the old campus system.
type Normalizer struct {
	validationEventType string
}

func NewNormalizer(validationEventType string) *Normalizer {
	if strings.TrimSpace(validationEventType) == "" {
		validationEventType = DefaultValidationEventType
	}
	return &Normalizer{validationEventType: validationEventType}
}

// Normalize parses a batch body. Standard schema is attempted first, legacy
// second; if both fail the batch is malformed. A handshake short-circuits:
// the returned envelopes are empty and nothing must reach the inbox.
func (n *Normalizer) Normalize(body []byte) ([]events.Envelope, *Handshake, error) {
	envs, ok := parseStandard(body)
	if ok {
		if hs := n.handshake(envs); hs != nil {
			return nil, hs, nil
		}
		return envs, nil, nil
	}

	envs, ok = parseLegacy(body)
	if !ok {
		return nil, nil, ErrMalformedBatch
	}
	return envs, nil, nil
}

func (n *Normalizer) handshake(envs []events.Envelope) *Handshake {
	// Only a batch of exactly one validation event counts; a validation
	// event mixed into a real batch is not a handshake.
	if len(envs) != 1 || envs[0].EventType != n.validationEventType {
		return nil
	}
	var data struct {
		ValidationCode string `json:"validationCode"`
	}
	if err := json.Unmarshal(envs[0].Data, &data); err != nil {
		return nil
	}
	return &Handshake{ValidationCode: data.ValidationCode}
}

// parseStandard accepts a JSON array of canonical envelopes. JSON that
// decodes but lacks the required envelope fields is not standard (the
// legacy schema also decodes into the envelope struct, just empty).
func parseStandard(body []byte) ([]events.Envelope, bool) {
	var envs []events.Envelope
	if err := json.Unmarshal(body, &envs); err != nil {
		return nil, false
	}
	for i := range envs {
		if envs[i].EventID == "" || envs[i].EventType == "" || envs[i].OccurredAt.IsZero() {
			return nil, false
		}
		envs[i].OccurredAt = envs[i].OccurredAt.UTC()
	}
	return envs, true
}

type legacyRecord struct {
	MessageID     string          `json:"messageId"`
	MessageType   string          `json:"messageType"`
	OccurredOn    string          `json:"occurredOn"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId"`
	Entity        string          `json:"entity"`
	EntityID      string          `json:"entityId"`
	Body          json.RawMessage `json:"body"`
}

// legacyTypeMap translates the old system's SCREAMING_SNAKE message types.
var legacyTypeMap = map[string]string{
	"STUDENT_CREATED":    events.TypeStudentCreated,
	"STUDENT_UPDATED":    events.TypeStudentUpdated,
	"STUDENT_DELETED":    events.TypeStudentDeleted,
	"INSTRUCTOR_CREATED": events.TypeInstructorCreated,
	"INSTRUCTOR_UPDATED": events.TypeInstructorUpdated,
}

func parseLegacy(body []byte) ([]events.Envelope, bool) {
	var records []legacyRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, false
	}

	envs := make([]events.Envelope, 0, len(records))
	for _, rec := range records {
		if rec.MessageID == "" || rec.MessageType == "" {
			return nil, false
		}
		occurredAt, ok := parseLegacyTime(rec.OccurredOn)
		if !ok {
			return nil, false
		}

		producer := rec.Source
		if producer == "" {
			producer = "legacy"
		}
		subject := rec.Entity
		if rec.EntityID != "" {
			subject = rec.Entity + "/" + rec.EntityID
		}

		envs = append(envs, events.Envelope{
			EventID:       rec.MessageID,
			EventType:     canonicalEventType(rec.MessageType),
			SchemaVersion: events.SchemaVersionV1,
			OccurredAt:    occurredAt,
			Producer:      producer,
			CorrelationID: rec.CorrelationID,
			Subject:       subject,
			Data:          rec.Body,
		})
	}
	return envs, true
}

func canonicalEventType(legacyType string) string {
	if mapped, ok := legacyTypeMap[legacyType]; ok {
		return mapped
	}
	// Unknown legacy types pass through as PascalCase so the envelope still
	// routes; the applier skips what it does not understand.
	parts := strings.Split(strings.ToLower(legacyType), "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func parseLegacyTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
