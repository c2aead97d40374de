package subevent

import (
	"time"

	"github.com/google/uuid"

	"github.com/mbetancur/convoca/internal/domain/event"
)

// SubEvent is a nested activity scoped to a parent event. Its window
// must lie inside the parent's window and its lifetime is bounded by
// the parent's existence.
type SubEvent struct {
	ID            string       `json:"id"`
	ParentEventID string       `json:"parentEventId"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	StartAt       time.Time    `json:"startAt"`
	EndAt         time.Time    `json:"endAt"`
	Status        event.Status `json:"status"`

	MaxAttendees     int `json:"maxAttendees"`
	CurrentAttendees int `json:"currentAttendees"`

	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateSubEventRequest struct {
	Title        string    `json:"title" binding:"required,min=3,max=120"`
	Description  string    `json:"description" binding:"omitempty,max=1000"`
	StartAt      time.Time `json:"startAt" binding:"required"`
	EndAt        time.Time `json:"endAt" binding:"required,gtfield=StartAt"`
	MaxAttendees int       `json:"maxAttendees" binding:"required,min=1,max=50000"`

	ParentEventID string `json:"-"`
	CreatedBy     string `json:"-"`
}

// UpdateSubEventRequest is a partial update: nil fields are untouched.
type UpdateSubEventRequest struct {
	Title        *string    `json:"title" binding:"omitempty,min=3,max=120"`
	Description  *string    `json:"description" binding:"omitempty,max=1000"`
	StartAt      *time.Time `json:"startAt"`
	EndAt        *time.Time `json:"endAt"`
	MaxAttendees *int       `json:"maxAttendees" binding:"omitempty,min=1,max=50000"`
}

func NewFromCreateRequest(req CreateSubEventRequest, now time.Time) SubEvent {
	return SubEvent{
		ID:               uuid.NewString(),
		ParentEventID:    req.ParentEventID,
		Title:            req.Title,
		Description:      req.Description,
		StartAt:          req.StartAt,
		EndAt:            req.EndAt,
		Status:           event.StatusActive,
		MaxAttendees:     req.MaxAttendees,
		CurrentAttendees: 0,
		CreatedBy:        req.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
