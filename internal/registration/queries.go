package registration

import (
	"context"

	"github.com/mbetancur/convoca/internal/domain/inscription"
	"github.com/mbetancur/convoca/internal/fault"
)

// Read-only operations. No side effects, no counter mutation.

// ListUserEventRegistrations returns the user's confirmed main-event
// inscriptions.
func (e *Engine) ListUserEventRegistrations(ctx context.Context, userID string) ([]inscription.Inscription, error) {
	if _, err := e.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return e.ledger.ListActiveByUser(ctx, userID, inscription.KindMainEvent)
}

// ListUserSubEventRegistrations returns the user's confirmed sub-event
// inscriptions.
func (e *Engine) ListUserSubEventRegistrations(ctx context.Context, userID string) ([]inscription.Inscription, error) {
	if _, err := e.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return e.ledger.ListActiveByUser(ctx, userID, inscription.KindSubEvent)
}

// ListEventAttendance is the organizer view of an event's confirmed
// inscriptions.
func (e *Engine) ListEventAttendance(ctx context.Context, eventID string) ([]inscription.Inscription, error) {
	if _, err := e.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return e.ledger.FindActiveByEvent(ctx, eventID)
}

// ListSubEventAttendance is the organizer view for a sub-event.
func (e *Engine) ListSubEventAttendance(ctx context.Context, subEventID string) ([]inscription.Inscription, error) {
	if _, err := e.subevents.GetByID(ctx, subEventID); err != nil {
		return nil, err
	}
	return e.ledger.FindActiveBySubEvent(ctx, subEventID)
}

// IsRegistered reports whether the user holds a confirmed main-event
// inscription for the event.
func (e *Engine) IsRegistered(ctx context.Context, userID, eventID string) (bool, error) {
	_, err := e.ledger.FindActiveByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		if fault.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EventStats computes the occupancy summary for an event.
func (e *Engine) EventStats(ctx context.Context, eventID string) (inscription.Stats, error) {
	ev, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		return inscription.Stats{}, err
	}

	confirmed, cancelled, err := e.ledger.CountByEvent(ctx, eventID)
	if err != nil {
		return inscription.Stats{}, err
	}

	return inscription.NewStats(confirmed, cancelled, ev.MaxAttendees), nil
}

// SubEventStats computes the occupancy summary for a sub-event.
func (e *Engine) SubEventStats(ctx context.Context, subEventID string) (inscription.Stats, error) {
	se, err := e.subevents.GetByID(ctx, subEventID)
	if err != nil {
		return inscription.Stats{}, err
	}

	confirmed, cancelled, err := e.ledger.CountBySubEvent(ctx, subEventID)
	if err != nil {
		return inscription.Stats{}, err
	}

	return inscription.NewStats(confirmed, cancelled, se.MaxAttendees), nil
}
