package eventrole

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCreator    Role = "creator"
	RoleSubCreator Role = "subcreator"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCreator, RoleSubCreator:
		return Role(s), true
	}
	return "", false
}

// EventRole grants a user management capability on a specific event.
// Grants are append-only history: deactivation flips Active to false,
// records are never deleted. UserID stays nil while an invitation sent
// to InvitationEmail is pending acceptance.
type EventRole struct {
	ID              string    `json:"id"`
	UserID          *string   `json:"userId,omitempty"`
	EventID         string    `json:"eventId"`
	Role            Role      `json:"role"`
	InvitationEmail *string   `json:"invitationEmail,omitempty"`
	Active          bool      `json:"active"`
	GrantedAt       time.Time `json:"grantedAt"`
}

// NewCreatorGrant is issued when an event is created: immediately
// active, bound to the creator.
func NewCreatorGrant(userID, eventID string, now time.Time) EventRole {
	uid := userID
	return EventRole{
		ID:        uuid.NewString(),
		UserID:    &uid,
		EventID:   eventID,
		Role:      RoleCreator,
		Active:    true,
		GrantedAt: now,
	}
}

// NewInvitation records a pending sub-creator grant addressed to an
// email. It activates only once accepted by a resolved user.
func NewInvitation(email, eventID string, role Role, now time.Time) EventRole {
	em := email
	return EventRole{
		ID:              uuid.NewString(),
		EventID:         eventID,
		Role:            role,
		InvitationEmail: &em,
		Active:          false,
		GrantedAt:       now,
	}
}
