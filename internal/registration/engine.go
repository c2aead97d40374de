package registration

import (
	"context"

	"github.com/mbetancur/convoca/internal/clock"
	"github.com/mbetancur/convoca/internal/domain/event"
	"github.com/mbetancur/convoca/internal/domain/inscription"
	"github.com/mbetancur/convoca/internal/fault"
	"github.com/mbetancur/convoca/internal/observability"
)

// Engine orchestrates registration and cancellation: it runs the
// eligibility checks in order, each failing fast with a distinct error
// kind, and delegates the atomic counter mutation to the ledger. It
// never touches role grants; registering is open to any authenticated
// user for themselves.
type Engine struct {
	users     UserDirectory
	events    EventStore
	subevents SubEventStore
	ledger    Ledger
	clock     clock.Clock
	prom      *observability.Prom
}

func NewEngine(
	users UserDirectory,
	events EventStore,
	subevents SubEventStore,
	ledger Ledger,
	clk clock.Clock,
	prom *observability.Prom,
) *Engine {
	return &Engine{
		users:     users,
		events:    events,
		subevents: subevents,
		ledger:    ledger,
		clock:     clk,
		prom:      prom,
	}
}

func (e *Engine) observe(op string, err error) {
	if e.prom != nil {
		e.prom.ObserveRegistration(op, err)
	}
}

// RegisterToEvent creates a confirmed main-event inscription and
// increments the event counter by one. The capacity check and the
// increment are a single atomic conditional operation in the ledger, so
// concurrent callers can never overbook.
func (e *Engine) RegisterToEvent(ctx context.Context, userID, eventID string) (ins inscription.Inscription, err error) {
	defer func() { e.observe("register_event", err) }()

	if _, err = e.users.GetByID(ctx, userID); err != nil {
		return inscription.Inscription{}, err
	}

	_, err = e.ledger.FindActiveByUserAndEvent(ctx, userID, eventID)
	if err == nil {
		return inscription.Inscription{}, fault.Conflict(fault.ReasonAlreadyRegistered)
	}
	if !fault.IsNotFound(err) {
		return inscription.Inscription{}, err
	}

	ev, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		return inscription.Inscription{}, err
	}

	now := e.clock.Now()

	// Advisory fast-fail; the ledger re-checks atomically on insert.
	if ev.CurrentAttendees >= ev.MaxAttendees {
		return inscription.Inscription{}, fault.Conflict(fault.ReasonCapacityFull)
	}
	if !ev.RegistrationsOpen {
		return inscription.Inscription{}, fault.Precondition(fault.ReasonRegistrationsClosed)
	}
	if ev.Blocked {
		return inscription.Inscription{}, fault.Precondition(fault.ReasonEventBlocked)
	}
	if ev.Status != event.StatusActive {
		return inscription.Inscription{}, fault.Precondition(fault.ReasonEventNotActive)
	}
	if ev.RegistrationDeadline != nil && now.After(*ev.RegistrationDeadline) {
		return inscription.Inscription{}, fault.Precondition(fault.ReasonDeadlinePassed)
	}
	if now.After(ev.StartAt) {
		return inscription.Inscription{}, fault.Precondition(fault.ReasonAlreadyStarted)
	}

	ins = inscription.NewForEvent(userID, eventID, now)

	if err = e.ledger.CreateMain(ctx, ins); err != nil {
		return inscription.Inscription{}, err
	}

	return ins, nil
}

// RegisterToSubEvent mirrors RegisterToEvent against the sub-event's
// own capacity, status and start time, with one extra gate: the user
// must already hold a confirmed main-event inscription under the
// sub-event's parent.
func (e *Engine) RegisterToSubEvent(ctx context.Context, userID, subEventID string) (ins inscription.Inscription, err error) {
	defer func() { e.observe("register_subevent", err) }()

	if _, err = e.users.GetByID(ctx, userID); err != nil {
		return inscription.Inscription{}, err
	}

	_, err = e.ledger.FindActiveByUserAndSubEvent(ctx, userID, subEventID)
	if err == nil {
		return inscription.Inscription{}, fault.Conflict(fault.ReasonAlreadyRegistered)
	}
	if !fault.IsNotFound(err) {
		return inscription.Inscription{}, err
	}

	se, err := e.subevents.GetByID(ctx, subEventID)
	if err != nil {
		return inscription.Inscription{}, err
	}

	_, err = e.ledger.FindActiveByUserAndEvent(ctx, userID, se.ParentEventID)
	if err != nil {
		if fault.IsNotFound(err) {
			return inscription.Inscription{}, fault.Precondition(fault.ReasonNoMainRegistration)
		}
		return inscription.Inscription{}, err
	}

	now := e.clock.Now()

	if se.CurrentAttendees >= se.MaxAttendees {
		return inscription.Inscription{}, fault.Conflict(fault.ReasonCapacityFull)
	}
	if se.Status != event.StatusActive {
		return inscription.Inscription{}, fault.Precondition(fault.ReasonEventNotActive)
	}
	if now.After(se.StartAt) {
		return inscription.Inscription{}, fault.Precondition(fault.ReasonAlreadyStarted)
	}

	ins = inscription.NewForSubEvent(userID, se.ParentEventID, subEventID, now)

	if err = e.ledger.CreateSub(ctx, ins); err != nil {
		return inscription.Inscription{}, err
	}

	return ins, nil
}

// CancelRegistration withdraws the user's main-event inscription and
// cascades over their confirmed sub-event inscriptions under the same
// event. The ledger performs the whole cascade as one unit of work.
func (e *Engine) CancelRegistration(ctx context.Context, userID, eventID string) (res CancelResult, err error) {
	defer func() { e.observe("cancel_event", err) }()

	if _, err = e.ledger.FindActiveByUserAndEvent(ctx, userID, eventID); err != nil {
		return CancelResult{}, err
	}

	ev, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		return CancelResult{}, err
	}

	now := e.clock.Now()
	if now.After(ev.StartAt) {
		return CancelResult{}, fault.Precondition(fault.ReasonAlreadyStarted)
	}

	return e.ledger.CancelMain(ctx, userID, eventID, now)
}

// CancelSubEventRegistration withdraws a single sub-event inscription.
// The main-event inscription is left untouched.
func (e *Engine) CancelSubEventRegistration(ctx context.Context, userID, subEventID string) (ins inscription.Inscription, err error) {
	defer func() { e.observe("cancel_subevent", err) }()

	if _, err = e.ledger.FindActiveByUserAndSubEvent(ctx, userID, subEventID); err != nil {
		return inscription.Inscription{}, err
	}

	se, err := e.subevents.GetByID(ctx, subEventID)
	if err != nil {
		return inscription.Inscription{}, err
	}

	now := e.clock.Now()
	if now.After(se.StartAt) {
		return inscription.Inscription{}, fault.Precondition(fault.ReasonAlreadyStarted)
	}

	return e.ledger.CancelSub(ctx, userID, subEventID, now)
}
