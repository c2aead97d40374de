package inscription

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMainEvent Kind = "main_event"
	KindSubEvent  Kind = "sub_event"
)

type Status string

const (
	// StatusConfirmed is the initial state of every inscription.
	StatusConfirmed Status = "confirmed"
	// StatusCancelled is terminal. A cancelled inscription is never
	// reactivated; a new attempt creates a new record.
	StatusCancelled Status = "cancelled"
)

// Inscription is a user's registration record against an event or
// sub-event. Immutable once created except for the confirmed→cancelled
// transition.
type Inscription struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	EventID      string    `json:"eventId"`
	SubEventID   string    `json:"subEventId,omitempty"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	RegisteredAt time.Time `json:"registeredAt"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
}

func NewForEvent(userID, eventID string, now time.Time) Inscription {
	return Inscription{
		ID:           uuid.NewString(),
		UserID:       userID,
		EventID:      eventID,
		Kind:         KindMainEvent,
		Status:       StatusConfirmed,
		RegisteredAt: now,
	}
}

func NewForSubEvent(userID, eventID, subEventID string, now time.Time) Inscription {
	return Inscription{
		ID:           uuid.NewString(),
		UserID:       userID,
		EventID:      eventID,
		SubEventID:   subEventID,
		Kind:         KindSubEvent,
		Status:       StatusConfirmed,
		RegisteredAt: now,
	}
}

// Stats is the occupancy summary for an event or sub-event.
type Stats struct {
	Confirmed     int     `json:"confirmed"`
	Cancelled     int     `json:"cancelled"`
	Available     int     `json:"available"`
	MaxAttendees  int     `json:"maxAttendees"`
	OccupancyRate float64 `json:"occupancyRate"`
}

// NewStats derives the summary from raw counts, flooring availability
// at zero so an over-provisioned past never reports negative seats.
func NewStats(confirmed, cancelled, maxAttendees int) Stats {
	available := maxAttendees - confirmed
	if available < 0 {
		available = 0
	}

	rate := 0.0
	if maxAttendees > 0 {
		rate = float64(confirmed) / float64(maxAttendees) * 100
	}

	return Stats{
		Confirmed:     confirmed,
		Cancelled:     cancelled,
		Available:     available,
		MaxAttendees:  maxAttendees,
		OccupancyRate: rate,
	}
}
