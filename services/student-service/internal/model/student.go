package model

import (
	"time"

	"github.com/md-rashed-zaman/campuscrm/libs/events"
)

type Student struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Status    events.StudentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subject is the aggregate reference carried on every student event.
func (s *Student) Subject() string {
	return "student/" + s.ID
}

func ValidStatus(status events.StudentStatus) bool {
	switch status {
	case events.StudentApplied, events.StudentEnrolled, events.StudentWithdrawn:
		return true
	}
	return false
}
