package registration

import (
	"context"
	"time"

	"github.com/mbetancur/convoca/internal/domain/event"
	"github.com/mbetancur/convoca/internal/domain/inscription"
	"github.com/mbetancur/convoca/internal/domain/subevent"
	"github.com/mbetancur/convoca/internal/domain/user"
)

// Consumer-side contracts. Implemented by repo/postgres against a pool
// and by repo/memory for tests.

type UserDirectory interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

type EventStore interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
}

type SubEventStore interface {
	GetByID(ctx context.Context, id string) (subevent.SubEvent, error)
}

// CancelResult reports a main-event cancellation together with the
// sub-event inscriptions cancelled in the same unit of work.
type CancelResult struct {
	Main         inscription.Inscription
	CascadedSubs []inscription.Inscription
}

// Ledger holds the registration records and owns every counter
// mutation. The Create and Cancel operations are atomic: the capacity
// check plus increment happen as one indivisible step, and a main
// cancellation cascades over the user's sub-inscriptions inside a
// single transaction.
type Ledger interface {
	// CreateMain inserts a confirmed main-event inscription and
	// increments the event counter iff current < max. Fails with
	// Conflict(capacity_full) when the event is full and
	// Conflict(already_registered) when a confirmed record exists.
	CreateMain(ctx context.Context, ins inscription.Inscription) error

	// CreateSub is the sub-event twin of CreateMain, with one extra
	// gate inside the same unit of work: the user's confirmed
	// main-event inscription is re-verified there, failing with
	// Precondition(main_registration_required), so a cancellation
	// racing the engine's own check cannot strand a confirmed
	// sub-event inscription.
	CreateSub(ctx context.Context, ins inscription.Inscription) error

	// CancelMain flips the user's confirmed main inscription for the
	// event, decrements the event counter (floored at zero), then
	// cancels every confirmed sub-event inscription the user holds
	// under that event, decrementing each sub-event counter, all in
	// one unit of work.
	CancelMain(ctx context.Context, userID, eventID string, now time.Time) (CancelResult, error)

	// CancelSub flips a single confirmed sub-event inscription and
	// decrements that sub-event's counter.
	CancelSub(ctx context.Context, userID, subEventID string, now time.Time) (inscription.Inscription, error)

	FindActiveByUserAndEvent(ctx context.Context, userID, eventID string) (inscription.Inscription, error)
	FindActiveByUserAndSubEvent(ctx context.Context, userID, subEventID string) (inscription.Inscription, error)
	FindActiveByEvent(ctx context.Context, eventID string) ([]inscription.Inscription, error)
	FindActiveBySubEvent(ctx context.Context, subEventID string) ([]inscription.Inscription, error)
	ListActiveByUser(ctx context.Context, userID string, kind inscription.Kind) ([]inscription.Inscription, error)
	CountByEvent(ctx context.Context, eventID string) (confirmed, cancelled int, err error)
	CountBySubEvent(ctx context.Context, subEventID string) (confirmed, cancelled int, err error)
}
