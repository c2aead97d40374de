package management

import (
	"context"
	"time"

	"github.com/mbetancur/convoca/internal/clock"
	"github.com/mbetancur/convoca/internal/domain/event"
	"github.com/mbetancur/convoca/internal/domain/eventrole"
	"github.com/mbetancur/convoca/internal/domain/subevent"
	"github.com/mbetancur/convoca/internal/domain/user"
	"github.com/mbetancur/convoca/internal/fault"
)

type EventStore interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
	Create(ctx context.Context, ev event.Event) error
	List(ctx context.Context) ([]event.Event, error)
	SetBlocked(ctx context.Context, id string, blocked bool) error
	SetRegistrationsOpen(ctx context.Context, id string, open bool) error
	UpdateStatus(ctx context.Context, id string, status event.Status) error
}

type SubEventStore interface {
	GetByID(ctx context.Context, id string) (subevent.SubEvent, error)
	// Create inserts the sub-event and appends its id to the parent's
	// sub-event list in the same unit of work.
	Create(ctx context.Context, se subevent.SubEvent) error
	// Update writes the mutable fields. The write is conditional: a
	// max_attendees below the stored attendee count is rejected with
	// Precondition(capacity_below_current) at write time, so a
	// registration racing the caller's read cannot push the counter
	// past the new capacity.
	Update(ctx context.Context, se subevent.SubEvent) error
	UpdateStatus(ctx context.Context, id string, status event.Status) error
	// Delete cancels the sub-event's confirmed inscriptions, detaches
	// the id from the parent's list and removes the record, atomically.
	Delete(ctx context.Context, id string) error
	ListByParent(ctx context.Context, eventID string) ([]subevent.SubEvent, error)
}

type UserDirectory interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

// Service carries the organizer-facing operations: event lifecycle
// flags, the sub-event lifecycle, and the role-grant lifecycle. Every
// mutating operation is gated by the Guard.
type Service struct {
	guard     *Guard
	users     UserDirectory
	events    EventStore
	subevents SubEventStore
	roles     RoleGrantStore
	clock     clock.Clock
}

func NewService(
	guard *Guard,
	users UserDirectory,
	events EventStore,
	subevents SubEventStore,
	roles RoleGrantStore,
	clk clock.Clock,
) *Service {
	return &Service{
		guard:     guard,
		users:     users,
		events:    events,
		subevents: subevents,
		roles:     roles,
		clock:     clk,
	}
}

// CreateEvent creates the event and the creator's active grant.
func (s *Service) CreateEvent(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
	if _, err := s.users.GetByID(ctx, req.CreatedBy); err != nil {
		return event.Event{}, err
	}

	now := s.clock.Now()
	ev := event.NewFromCreateRequest(req, now)

	if err := s.events.Create(ctx, ev); err != nil {
		return event.Event{}, err
	}

	grant := eventrole.NewCreatorGrant(req.CreatedBy, ev.ID, now)
	if err := s.roles.Save(ctx, grant); err != nil {
		return event.Event{}, err
	}

	return ev, nil
}

func (s *Service) GetEvent(ctx context.Context, id string) (event.Event, error) {
	return s.events.GetByID(ctx, id)
}

func (s *Service) ListEvents(ctx context.Context) ([]event.Event, error) {
	return s.events.List(ctx)
}

func (s *Service) ListSubEvents(ctx context.Context, eventID string) ([]subevent.SubEvent, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.subevents.ListByParent(ctx, eventID)
}

func (s *Service) GetSubEvent(ctx context.Context, id string) (subevent.SubEvent, error) {
	return s.subevents.GetByID(ctx, id)
}

// CreateSubEvent validates window containment against the parent and
// initializes the counter at zero with status active.
func (s *Service) CreateSubEvent(ctx context.Context, actorID string, req subevent.CreateSubEventRequest) (subevent.SubEvent, error) {
	if err := s.guard.require(ctx, actorID, req.ParentEventID); err != nil {
		return subevent.SubEvent{}, err
	}

	parent, err := s.events.GetByID(ctx, req.ParentEventID)
	if err != nil {
		return subevent.SubEvent{}, err
	}
	if parent.Blocked {
		return subevent.SubEvent{}, fault.Precondition(fault.ReasonEventBlocked)
	}
	if !req.EndAt.After(req.StartAt) {
		return subevent.SubEvent{}, fault.Precondition(fault.ReasonWindowOutsideParent)
	}
	if !windowInside(req.StartAt, req.EndAt, parent) {
		return subevent.SubEvent{}, fault.Precondition(fault.ReasonWindowOutsideParent)
	}

	req.CreatedBy = actorID
	se := subevent.NewFromCreateRequest(req, s.clock.Now())

	if err := s.subevents.Create(ctx, se); err != nil {
		return subevent.SubEvent{}, err
	}

	return se, nil
}

// UpdateSubEvent applies a partial update. A changed window must still
// sit inside the parent's, and capacity can never drop below the
// current attendee count.
func (s *Service) UpdateSubEvent(ctx context.Context, actorID, subEventID string, req subevent.UpdateSubEventRequest) (subevent.SubEvent, error) {
	se, err := s.subevents.GetByID(ctx, subEventID)
	if err != nil {
		return subevent.SubEvent{}, err
	}

	if err := s.guard.require(ctx, actorID, se.ParentEventID); err != nil {
		return subevent.SubEvent{}, err
	}

	if req.Title != nil {
		se.Title = *req.Title
	}
	if req.Description != nil {
		se.Description = *req.Description
	}
	if req.StartAt != nil {
		se.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		se.EndAt = *req.EndAt
	}
	if req.MaxAttendees != nil {
		// Advisory fast-fail; the store re-checks at write time.
		if *req.MaxAttendees < se.CurrentAttendees {
			return subevent.SubEvent{}, fault.Precondition(fault.ReasonCapacityBelowCurrent)
		}
		se.MaxAttendees = *req.MaxAttendees
	}

	if !se.EndAt.After(se.StartAt) {
		return subevent.SubEvent{}, fault.Precondition(fault.ReasonWindowOutsideParent)
	}

	parent, err := s.events.GetByID(ctx, se.ParentEventID)
	if err != nil {
		return subevent.SubEvent{}, err
	}
	if !windowInside(se.StartAt, se.EndAt, parent) {
		return subevent.SubEvent{}, fault.Precondition(fault.ReasonWindowOutsideParent)
	}

	se.UpdatedAt = s.clock.Now()

	if err := s.subevents.Update(ctx, se); err != nil {
		return subevent.SubEvent{}, err
	}

	return se, nil
}

// DeleteSubEvent removes the sub-event: its confirmed inscriptions are
// cancelled and the id is detached from the parent's list.
func (s *Service) DeleteSubEvent(ctx context.Context, actorID, subEventID string) error {
	se, err := s.subevents.GetByID(ctx, subEventID)
	if err != nil {
		return err
	}

	if err := s.guard.require(ctx, actorID, se.ParentEventID); err != nil {
		return err
	}

	return s.subevents.Delete(ctx, subEventID)
}

// ChangeSubEventStatus validates the free-form target against the known
// status set before applying it.
func (s *Service) ChangeSubEventStatus(ctx context.Context, actorID, subEventID, target string) (subevent.SubEvent, error) {
	status, ok := event.ParseStatus(target)
	if !ok {
		return subevent.SubEvent{}, fault.Precondition(fault.ReasonUnknownStatus)
	}

	se, err := s.subevents.GetByID(ctx, subEventID)
	if err != nil {
		return subevent.SubEvent{}, err
	}

	if err := s.guard.require(ctx, actorID, se.ParentEventID); err != nil {
		return subevent.SubEvent{}, err
	}

	if err := s.subevents.UpdateStatus(ctx, subEventID, status); err != nil {
		return subevent.SubEvent{}, err
	}

	se.Status = status
	return se, nil
}

// ChangeEventStatus applies a validated lifecycle status to the event.
func (s *Service) ChangeEventStatus(ctx context.Context, actorID, eventID, target string) error {
	status, ok := event.ParseStatus(target)
	if !ok {
		return fault.Precondition(fault.ReasonUnknownStatus)
	}

	if err := s.guard.require(ctx, actorID, eventID); err != nil {
		return err
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return err
	}

	return s.events.UpdateStatus(ctx, eventID, status)
}

// SetEventBlocked flips the administrative block flag.
func (s *Service) SetEventBlocked(ctx context.Context, actorID, eventID string, blocked bool) error {
	if err := s.guard.require(ctx, actorID, eventID); err != nil {
		return err
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return err
	}
	return s.events.SetBlocked(ctx, eventID, blocked)
}

// SetRegistrationsOpen flips the registrations-open gate.
func (s *Service) SetRegistrationsOpen(ctx context.Context, actorID, eventID string, open bool) error {
	if err := s.guard.require(ctx, actorID, eventID); err != nil {
		return err
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return err
	}
	return s.events.SetRegistrationsOpen(ctx, eventID, open)
}

// InviteSubCreator records a pending sub-creator grant addressed to an
// email. The grant stays inactive until accepted.
func (s *Service) InviteSubCreator(ctx context.Context, actorID, eventID, email string) (eventrole.EventRole, error) {
	if err := s.guard.require(ctx, actorID, eventID); err != nil {
		return eventrole.EventRole{}, err
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return eventrole.EventRole{}, err
	}

	grant := eventrole.NewInvitation(email, eventID, eventrole.RoleSubCreator, s.clock.Now())
	if err := s.roles.Save(ctx, grant); err != nil {
		return eventrole.EventRole{}, err
	}

	return grant, nil
}

// AcceptInvitation binds a pending grant to the accepting user. The
// invitation email must match the user's email.
func (s *Service) AcceptInvitation(ctx context.Context, userID, grantID string) (eventrole.EventRole, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return eventrole.EventRole{}, err
	}

	grant, err := s.roles.GetByID(ctx, grantID)
	if err != nil {
		return eventrole.EventRole{}, err
	}
	if grant.Active || grant.UserID != nil {
		return eventrole.EventRole{}, fault.Conflict(fault.ReasonAlreadyRegistered)
	}
	if grant.InvitationEmail == nil || *grant.InvitationEmail != u.Email {
		return eventrole.EventRole{}, fault.Forbidden()
	}

	if err := s.roles.Accept(ctx, grantID, userID); err != nil {
		return eventrole.EventRole{}, err
	}

	grant.UserID = &userID
	grant.Active = true
	return grant, nil
}

// RevokeGrant deactivates a grant. Grants are history: the record stays.
func (s *Service) RevokeGrant(ctx context.Context, actorID, grantID string) error {
	grant, err := s.roles.GetByID(ctx, grantID)
	if err != nil {
		return err
	}

	if err := s.guard.require(ctx, actorID, grant.EventID); err != nil {
		return err
	}

	return s.roles.Deactivate(ctx, grantID)
}

// CanManage is exposed for the transport layer's is-manager check.
func (s *Service) CanManage(ctx context.Context, userID, eventID string) (bool, error) {
	return s.guard.CanManage(ctx, userID, eventID)
}

// windowInside holds when [start,end] ⊆ [parent.StartAt,parent.EndAt].
func windowInside(start, end time.Time, parent event.Event) bool {
	return !start.Before(parent.StartAt) && !end.After(parent.EndAt)
}
