package event

import (
	"time"
)

// Status is the lifecycle state of an event. Sub-events share the same
// enumeration.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusCanceled Status = "canceled"
	StatusPending  Status = "pending"
)

// ParseStatus validates a free-form target status against the known set.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusInactive, StatusCanceled, StatusPending:
		return Status(s), true
	}
	return "", false
}

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	Status      Status    `json:"status"`

	MaxAttendees     int `json:"maxAttendees"`
	CurrentAttendees int `json:"currentAttendees"`

	// Registration gates. JSON names follow the persisted record shape.
	RegistrationsOpen    bool       `json:"permitirInscripciones"`
	RegistrationDeadline *time.Time `json:"fechaLimiteInscripcion,omitempty"`
	Blocked              bool       `json:"bloqueado"`

	SubEventIDs []string `json:"subEventIds"`

	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateEventRequest struct {
	Title                string     `json:"title" binding:"required,min=3,max=120"`
	Description          string     `json:"description" binding:"omitempty,max=1000"`
	StartAt              time.Time  `json:"startAt" binding:"required"`
	EndAt                time.Time  `json:"endAt" binding:"required,gtfield=StartAt"`
	MaxAttendees         int        `json:"maxAttendees" binding:"required,min=1,max=50000"`
	RegistrationsOpen    *bool      `json:"permitirInscripciones"`
	RegistrationDeadline *time.Time `json:"fechaLimiteInscripcion"`

	// Forced from the authenticated identity, never taken from the body.
	CreatedBy string `json:"-"`
}
