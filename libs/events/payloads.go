package events

import "encoding/json"

// Event types published by the write-side services. The Kafka topic carries
// the full envelope; these values discriminate the data payload.
const (
	TypeStudentCreated    = "StudentCreated"
	TypeStudentUpdated    = "StudentUpdated"
	TypeStudentDeleted    = "StudentDeleted"
	TypeInstructorCreated = "InstructorCreated"
	TypeInstructorUpdated = "InstructorUpdated"
)

// StudentStatus values are serialized lowercase on the wire.
type StudentStatus string

const (
	StudentApplied   StudentStatus = "applied"
	StudentEnrolled  StudentStatus = "enrolled"
	StudentWithdrawn StudentStatus = "withdrawn"
)

type StudentCreatedData struct {
	StudentID string        `json:"studentId"`
	FirstName string        `json:"firstName"`
	LastName  string        `json:"lastName"`
	Email     string        `json:"email"`
	Status    StudentStatus `json:"status"`
}

type StudentUpdatedData struct {
	StudentID string        `json:"studentId"`
	FirstName string        `json:"firstName,omitempty"`
	LastName  string        `json:"lastName,omitempty"`
	Email     string        `json:"email,omitempty"`
	Status    StudentStatus `json:"status,omitempty"`
}

type StudentDeletedData struct {
	StudentID string `json:"studentId"`
}

type InstructorCreatedData struct {
	InstructorID string `json:"instructorId"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Department   string `json:"department,omitempty"`
}

type InstructorUpdatedData struct {
	InstructorID string `json:"instructorId"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Email        string `json:"email,omitempty"`
	Department   string `json:"department,omitempty"`
}

// RawPayload carries the data of an event type this build does not know.
// Consumers decide whether to skip or dead-letter it; the envelope metadata
// stays usable either way.
type RawPayload struct {
	EventType string
	Data      json.RawMessage
}

// DecodePayload returns the typed payload for the envelope's event type, or
// a RawPayload fallback for unknown types.
func (e Envelope) DecodePayload() (any, error) {
	switch e.EventType {
	case TypeStudentCreated:
		var d StudentCreatedData
		err := json.Unmarshal(e.Data, &d)
		return d, err
	case TypeStudentUpdated:
		var d StudentUpdatedData
		err := json.Unmarshal(e.Data, &d)
		return d, err
	case TypeStudentDeleted:
		var d StudentDeletedData
		err := json.Unmarshal(e.Data, &d)
		return d, err
	case TypeInstructorCreated:
		var d InstructorCreatedData
		err := json.Unmarshal(e.Data, &d)
		return d, err
	case TypeInstructorUpdated:
		var d InstructorUpdatedData
		err := json.Unmarshal(e.Data, &d)
		return d, err
	default:
		return RawPayload{EventType: e.EventType, Data: e.Data}, nil
	}
}
