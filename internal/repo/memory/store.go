package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbetancur/convoca/internal/domain/event"
	"github.com/mbetancur/convoca/internal/domain/eventrole"
	"github.com/mbetancur/convoca/internal/domain/inscription"
	"github.com/mbetancur/convoca/internal/domain/subevent"
	"github.com/mbetancur/convoca/internal/domain/user"
	"github.com/mbetancur/convoca/internal/fault"
	"github.com/mbetancur/convoca/internal/registration"
)

// Store is an arena keyed by opaque ids: every cross-entity reference
// is a stored id resolved through a lookup, never a shared pointer.
// One mutex guards the whole arena so the multi-entity operations
// (registration insert + counter bump, cancellation cascade, sub-event
// delete) are as atomic here as their postgres counterparts are in a
// transaction.
type Store struct {
	mu           sync.Mutex
	users        map[string]user.User
	events       map[string]event.Event
	subevents    map[string]subevent.SubEvent
	inscriptions map[string]inscription.Inscription
	roles        map[string]eventrole.EventRole
}

func New() *Store {
	return &Store{
		users:        make(map[string]user.User),
		events:       make(map[string]event.Event),
		subevents:    make(map[string]subevent.SubEvent),
		inscriptions: make(map[string]inscription.Inscription),
		roles:        make(map[string]eventrole.EventRole),
	}
}

// --- users ---

func (s *Store) SaveUser(u user.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

func (s *Store) GetByID(ctx context.Context, id string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fault.NotFound("user")
	}
	return u, nil
}

func (s *Store) GetByUsername(ctx context.Context, username string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, fault.NotFound("user")
}

func (s *Store) GetByEmail(ctx context.Context, email string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, fault.NotFound("user")
}

// --- events ---

type Events struct{ s *Store }

func (s *Store) Events() *Events { return &Events{s: s} }

func (r *Events) Create(ctx context.Context, ev event.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ev.SubEventIDs = append([]string(nil), ev.SubEventIDs...)
	r.s.events[ev.ID] = ev
	return nil
}

func (r *Events) GetByID(ctx context.Context, id string) (event.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.getEvent(id)
}

func (r *Events) List(ctx context.Context) ([]event.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]event.Event, 0, len(r.s.events))
	for _, ev := range r.s.events {
		ev.SubEventIDs = append([]string(nil), ev.SubEventIDs...)
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (r *Events) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return r.mutate(id, func(ev *event.Event) { ev.Blocked = blocked })
}

func (r *Events) SetRegistrationsOpen(ctx context.Context, id string, open bool) error {
	return r.mutate(id, func(ev *event.Event) { ev.RegistrationsOpen = open })
}

func (r *Events) UpdateStatus(ctx context.Context, id string, status event.Status) error {
	return r.mutate(id, func(ev *event.Event) { ev.Status = status })
}

func (r *Events) mutate(id string, fn func(*event.Event)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ev, ok := r.s.events[id]
	if !ok {
		return fault.NotFound("event")
	}
	fn(&ev)
	r.s.events[id] = ev
	return nil
}

func (s *Store) getEvent(id string) (event.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return event.Event{}, fault.NotFound("event")
	}
	ev.SubEventIDs = append([]string(nil), ev.SubEventIDs...)
	return ev, nil
}

// --- sub-events ---

type SubEvents struct{ s *Store }

func (s *Store) SubEvents() *SubEvents { return &SubEvents{s: s} }

func (r *SubEvents) Create(ctx context.Context, se subevent.SubEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	parent, ok := r.s.events[se.ParentEventID]
	if !ok {
		return fault.NotFound("event")
	}

	r.s.subevents[se.ID] = se
	parent.SubEventIDs = append(append([]string(nil), parent.SubEventIDs...), se.ID)
	r.s.events[parent.ID] = parent
	return nil
}

func (r *SubEvents) GetByID(ctx context.Context, id string) (subevent.SubEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	se, ok := r.s.subevents[id]
	if !ok {
		return subevent.SubEvent{}, fault.NotFound("sub-event")
	}
	return se, nil
}

func (r *SubEvents) Update(ctx context.Context, se subevent.SubEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.subevents[se.ID]
	if !ok {
		return fault.NotFound("sub-event")
	}
	// Checked under the arena lock against the live counter, not the
	// caller's earlier read.
	if se.MaxAttendees < stored.CurrentAttendees {
		return fault.Precondition(fault.ReasonCapacityBelowCurrent)
	}
	// The counter is owned by the ledger; never overwritten here.
	se.CurrentAttendees = stored.CurrentAttendees
	r.s.subevents[se.ID] = se
	return nil
}

func (r *SubEvents) UpdateStatus(ctx context.Context, id string, status event.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	se, ok := r.s.subevents[id]
	if !ok {
		return fault.NotFound("sub-event")
	}
	se.Status = status
	r.s.subevents[id] = se
	return nil
}

func (r *SubEvents) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	se, ok := r.s.subevents[id]
	if !ok {
		return fault.NotFound("sub-event")
	}

	// The sub-event is going away: inscriptions flip to cancelled but
	// no counter is decremented on a record being removed.
	for insID, ins := range r.s.inscriptions {
		if ins.SubEventID == id && ins.Status == inscription.StatusConfirmed {
			ins.Status = inscription.StatusCancelled
			r.s.inscriptions[insID] = ins
		}
	}

	if parent, ok := r.s.events[se.ParentEventID]; ok {
		kept := make([]string, 0, len(parent.SubEventIDs))
		for _, sid := range parent.SubEventIDs {
			if sid != id {
				kept = append(kept, sid)
			}
		}
		parent.SubEventIDs = kept
		r.s.events[parent.ID] = parent
	}

	delete(r.s.subevents, id)
	return nil
}

func (r *SubEvents) ListByParent(ctx context.Context, eventID string) ([]subevent.SubEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]subevent.SubEvent, 0)
	for _, se := range r.s.subevents {
		if se.ParentEventID == eventID {
			out = append(out, se)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

// --- inscriptions (ledger) ---

type Ledger struct{ s *Store }

func (s *Store) Ledger() *Ledger { return &Ledger{s: s} }

func (r *Ledger) CreateMain(ctx context.Context, ins inscription.Inscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.findConfirmedMain(ins.UserID, ins.EventID); ok {
		return fault.Conflict(fault.ReasonAlreadyRegistered)
	}

	ev, ok := r.s.events[ins.EventID]
	if !ok {
		return fault.NotFound("event")
	}
	if ev.CurrentAttendees >= ev.MaxAttendees {
		return fault.Conflict(fault.ReasonCapacityFull)
	}

	ev.CurrentAttendees++
	r.s.events[ev.ID] = ev
	r.s.inscriptions[ins.ID] = ins
	return nil
}

func (r *Ledger) CreateSub(ctx context.Context, ins inscription.Inscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.findConfirmedSub(ins.UserID, ins.SubEventID); ok {
		return fault.Conflict(fault.ReasonAlreadyRegistered)
	}

	// Re-checked under the arena lock: a cancellation committed after
	// the engine's gate must not be overtaken by this insert.
	if _, ok := r.s.findConfirmedMain(ins.UserID, ins.EventID); !ok {
		return fault.Precondition(fault.ReasonNoMainRegistration)
	}

	se, ok := r.s.subevents[ins.SubEventID]
	if !ok {
		return fault.NotFound("sub-event")
	}
	if se.CurrentAttendees >= se.MaxAttendees {
		return fault.Conflict(fault.ReasonCapacityFull)
	}

	se.CurrentAttendees++
	r.s.subevents[se.ID] = se
	r.s.inscriptions[ins.ID] = ins
	return nil
}

func (r *Ledger) CancelMain(ctx context.Context, userID, eventID string, now time.Time) (registration.CancelResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	main, ok := r.s.findConfirmedMain(userID, eventID)
	if !ok {
		return registration.CancelResult{}, fault.NotFound("inscription")
	}

	main.Status = inscription.StatusCancelled
	main.CancelledAt = &now
	r.s.inscriptions[main.ID] = main

	if ev, ok := r.s.events[eventID]; ok && ev.CurrentAttendees > 0 {
		ev.CurrentAttendees--
		r.s.events[ev.ID] = ev
	}

	res := registration.CancelResult{Main: main}

	for id, ins := range r.s.inscriptions {
		if ins.UserID != userID || ins.EventID != eventID ||
			ins.Kind != inscription.KindSubEvent || ins.Status != inscription.StatusConfirmed {
			continue
		}
		ins.Status = inscription.StatusCancelled
		ins.CancelledAt = &now
		r.s.inscriptions[id] = ins

		if se, ok := r.s.subevents[ins.SubEventID]; ok && se.CurrentAttendees > 0 {
			se.CurrentAttendees--
			r.s.subevents[se.ID] = se
		}
		res.CascadedSubs = append(res.CascadedSubs, ins)
	}

	sort.Slice(res.CascadedSubs, func(i, j int) bool {
		return res.CascadedSubs[i].RegisteredAt.Before(res.CascadedSubs[j].RegisteredAt)
	})
	return res, nil
}

func (r *Ledger) CancelSub(ctx context.Context, userID, subEventID string, now time.Time) (inscription.Inscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ins, ok := r.s.findConfirmedSub(userID, subEventID)
	if !ok {
		return inscription.Inscription{}, fault.NotFound("inscription")
	}

	ins.Status = inscription.StatusCancelled
	ins.CancelledAt = &now
	r.s.inscriptions[ins.ID] = ins

	if se, ok := r.s.subevents[subEventID]; ok && se.CurrentAttendees > 0 {
		se.CurrentAttendees--
		r.s.subevents[se.ID] = se
	}

	return ins, nil
}

func (r *Ledger) FindActiveByUserAndEvent(ctx context.Context, userID, eventID string) (inscription.Inscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ins, ok := r.s.findConfirmedMain(userID, eventID)
	if !ok {
		return inscription.Inscription{}, fault.NotFound("inscription")
	}
	return ins, nil
}

func (r *Ledger) FindActiveByUserAndSubEvent(ctx context.Context, userID, subEventID string) (inscription.Inscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ins, ok := r.s.findConfirmedSub(userID, subEventID)
	if !ok {
		return inscription.Inscription{}, fault.NotFound("inscription")
	}
	return ins, nil
}

func (r *Ledger) FindActiveByEvent(ctx context.Context, eventID string) ([]inscription.Inscription, error) {
	return r.filter(func(ins inscription.Inscription) bool {
		return ins.EventID == eventID && ins.Kind == inscription.KindMainEvent &&
			ins.Status == inscription.StatusConfirmed
	}), nil
}

func (r *Ledger) FindActiveBySubEvent(ctx context.Context, subEventID string) ([]inscription.Inscription, error) {
	return r.filter(func(ins inscription.Inscription) bool {
		return ins.SubEventID == subEventID && ins.Status == inscription.StatusConfirmed
	}), nil
}

func (r *Ledger) ListActiveByUser(ctx context.Context, userID string, kind inscription.Kind) ([]inscription.Inscription, error) {
	return r.filter(func(ins inscription.Inscription) bool {
		return ins.UserID == userID && ins.Kind == kind &&
			ins.Status == inscription.StatusConfirmed
	}), nil
}

func (r *Ledger) CountByEvent(ctx context.Context, eventID string) (int, int, error) {
	return r.count(func(ins inscription.Inscription) bool {
		return ins.EventID == eventID && ins.Kind == inscription.KindMainEvent
	})
}

func (r *Ledger) CountBySubEvent(ctx context.Context, subEventID string) (int, int, error) {
	return r.count(func(ins inscription.Inscription) bool {
		return ins.SubEventID == subEventID
	})
}

func (r *Ledger) filter(keep func(inscription.Inscription) bool) []inscription.Inscription {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]inscription.Inscription, 0)
	for _, ins := range r.s.inscriptions {
		if keep(ins) {
			out = append(out, ins)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out
}

func (r *Ledger) count(match func(inscription.Inscription) bool) (confirmed, cancelled int, err error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, ins := range r.s.inscriptions {
		if !match(ins) {
			continue
		}
		if ins.Status == inscription.StatusConfirmed {
			confirmed++
		} else {
			cancelled++
		}
	}
	return confirmed, cancelled, nil
}

func (s *Store) findConfirmedMain(userID, eventID string) (inscription.Inscription, bool) {
	for _, ins := range s.inscriptions {
		if ins.UserID == userID && ins.EventID == eventID &&
			ins.Kind == inscription.KindMainEvent && ins.Status == inscription.StatusConfirmed {
			return ins, true
		}
	}
	return inscription.Inscription{}, false
}

func (s *Store) findConfirmedSub(userID, subEventID string) (inscription.Inscription, bool) {
	for _, ins := range s.inscriptions {
		if ins.UserID == userID && ins.SubEventID == subEventID &&
			ins.Kind == inscription.KindSubEvent && ins.Status == inscription.StatusConfirmed {
			return ins, true
		}
	}
	return inscription.Inscription{}, false
}

// --- role grants ---

type Roles struct{ s *Store }

func (s *Store) Roles() *Roles { return &Roles{s: s} }

func (r *Roles) Save(ctx context.Context, grant eventrole.EventRole) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.roles[grant.ID] = grant
	return nil
}

func (r *Roles) GetByID(ctx context.Context, id string) (eventrole.EventRole, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	grant, ok := r.s.roles[id]
	if !ok {
		return eventrole.EventRole{}, fault.NotFound("role grant")
	}
	return grant, nil
}

func (r *Roles) FindActiveGrant(ctx context.Context, userID, eventID string) (eventrole.EventRole, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, grant := range r.s.roles {
		if grant.Active && grant.EventID == eventID &&
			grant.UserID != nil && *grant.UserID == userID {
			return grant, nil
		}
	}
	return eventrole.EventRole{}, fault.NotFound("role grant")
}

func (r *Roles) Accept(ctx context.Context, grantID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	grant, ok := r.s.roles[grantID]
	if !ok {
		return fault.NotFound("role grant")
	}
	uid := userID
	grant.UserID = &uid
	grant.Active = true
	r.s.roles[grantID] = grant
	return nil
}

func (r *Roles) Deactivate(ctx context.Context, grantID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	grant, ok := r.s.roles[grantID]
	if !ok {
		return fault.NotFound("role grant")
	}
	grant.Active = false
	r.s.roles[grantID] = grant
	return nil
}
