package event

import (
	"time"

	"github.com/google/uuid"
)

// NewFromCreateRequest builds a fresh Event from the incoming DTO.
// Events start active with an empty counter and registrations open
// unless the request says otherwise.
func NewFromCreateRequest(req CreateEventRequest, now time.Time) Event {
	open := true
	if req.RegistrationsOpen != nil {
		open = *req.RegistrationsOpen
	}

	return Event{
		ID:                   uuid.NewString(),
		Title:                req.Title,
		Description:          req.Description,
		StartAt:              req.StartAt,
		EndAt:                req.EndAt,
		Status:               StatusActive,
		MaxAttendees:         req.MaxAttendees,
		CurrentAttendees:     0,
		RegistrationsOpen:    open,
		RegistrationDeadline: req.RegistrationDeadline,
		Blocked:              false,
		SubEventIDs:          []string{},
		CreatedBy:            req.CreatedBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
