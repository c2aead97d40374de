package registration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mbetancur/convoca/internal/domain/event"
	"github.com/mbetancur/convoca/internal/domain/inscription"
	"github.com/mbetancur/convoca/internal/domain/subevent"
	"github.com/mbetancur/convoca/internal/domain/user"
	"github.com/mbetancur/convoca/internal/fault"
	"github.com/mbetancur/convoca/internal/registration"
	"github.com/mbetancur/convoca/internal/repo/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	engine *registration.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	engine := registration.NewEngine(
		store,
		store.Events(),
		store.SubEvents(),
		store.Ledger(),
		fixedClock{t: testNow},
		nil,
	)
	return &fixture{store: store, engine: engine}
}

func (f *fixture) addUser(t *testing.T) string {
	t.Helper()
	id := uuid.NewString()
	f.store.SaveUser(user.User{
		ID:       id,
		Username: "u-" + id[:8],
		Email:    id[:8] + "@example.com",
		Name:     "Test User",
	})
	return id
}

func (f *fixture) addEvent(t *testing.T, mutate func(*event.Event)) string {
	t.Helper()
	ev := event.Event{
		ID:                uuid.NewString(),
		Title:             "Conference",
		StartAt:           testNow.Add(24 * time.Hour),
		EndAt:             testNow.Add(48 * time.Hour),
		Status:            event.StatusActive,
		MaxAttendees:      100,
		RegistrationsOpen: true,
		CreatedBy:         "organizer",
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}
	if mutate != nil {
		mutate(&ev)
	}
	require.NoError(t, f.store.Events().Create(context.Background(), ev))
	return ev.ID
}

func (f *fixture) addSubEvent(t *testing.T, parentID string, mutate func(*subevent.SubEvent)) string {
	t.Helper()
	se := subevent.SubEvent{
		ID:            uuid.NewString(),
		ParentEventID: parentID,
		Title:         "Workshop",
		StartAt:       testNow.Add(25 * time.Hour),
		EndAt:         testNow.Add(27 * time.Hour),
		Status:        event.StatusActive,
		MaxAttendees:  50,
		CreatedBy:     "organizer",
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	if mutate != nil {
		mutate(&se)
	}
	require.NoError(t, f.store.SubEvents().Create(context.Background(), se))
	return se.ID
}

func TestRegisterToEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("creates confirmed inscription and bumps counter", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)
		eventID := f.addEvent(t, nil)

		ins, err := f.engine.RegisterToEvent(ctx, userID, eventID)
		require.NoError(t, err)
		require.Equal(t, inscription.StatusConfirmed, ins.Status)
		require.Equal(t, inscription.KindMainEvent, ins.Kind)
		require.Equal(t, userID, ins.UserID)

		ev, err := f.store.Events().GetByID(ctx, eventID)
		require.NoError(t, err)
		require.Equal(t, 1, ev.CurrentAttendees)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.addEvent(t, nil)

		_, err := f.engine.RegisterToEvent(ctx, uuid.NewString(), eventID)
		require.True(t, fault.IsNotFound(err))
	})

	t.Run("unknown event", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)

		_, err := f.engine.RegisterToEvent(ctx, userID, uuid.NewString())
		require.True(t, fault.IsNotFound(err))
	})

	t.Run("duplicate registration", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)
		eventID := f.addEvent(t, nil)

		_, err := f.engine.RegisterToEvent(ctx, userID, eventID)
		require.NoError(t, err)

		_, err = f.engine.RegisterToEvent(ctx, userID, eventID)
		require.True(t, fault.IsConflict(err))
		require.True(t, fault.HasReason(err, fault.ReasonAlreadyRegistered))

		ev, err := f.store.Events().GetByID(ctx, eventID)
		require.NoError(t, err)
		require.Equal(t, 1, ev.CurrentAttendees, "counter must not move on rejection")
	})

	t.Run("capacity full", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.addEvent(t, func(ev *event.Event) { ev.MaxAttendees = 1 })

		_, err := f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.NoError(t, err)

		_, err = f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.True(t, fault.HasReason(err, fault.ReasonCapacityFull))
	})

	t.Run("registrations closed", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.addEvent(t, func(ev *event.Event) { ev.RegistrationsOpen = false })

		_, err := f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.True(t, fault.IsPrecondition(err))
		require.True(t, fault.HasReason(err, fault.ReasonRegistrationsClosed))
	})

	t.Run("blocked event", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.addEvent(t, func(ev *event.Event) { ev.Blocked = true })

		_, err := f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.True(t, fault.HasReason(err, fault.ReasonEventBlocked))
	})

	t.Run("inactive event", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.addEvent(t, func(ev *event.Event) { ev.Status = event.StatusInactive })

		_, err := f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.True(t, fault.HasReason(err, fault.ReasonEventNotActive))
	})

	t.Run("deadline passed", func(t *testing.T) {
		f := newFixture(t)
		deadline := testNow.Add(-time.Hour)
		eventID := f.addEvent(t, func(ev *event.Event) { ev.RegistrationDeadline = &deadline })

		_, err := f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.True(t, fault.HasReason(err, fault.ReasonDeadlinePassed))
	})

	t.Run("event already started", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.addEvent(t, func(ev *event.Event) { ev.StartAt = testNow.Add(-time.Hour) })

		_, err := f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.True(t, fault.HasReason(err, fault.ReasonAlreadyStarted))
	})

	t.Run("capacity is checked before the open flag", func(t *testing.T) {
		// Capacity is checked before the open flag, so a full AND closed
		// event reports capacity_full consistently.
		f := newFixture(t)
		eventID := f.addEvent(t, func(ev *event.Event) {
			ev.MaxAttendees = 1
			ev.RegistrationsOpen = false
		})

		_, err := f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.True(t, fault.HasReason(err, fault.ReasonRegistrationsClosed))

		require.NoError(t, f.store.Events().SetRegistrationsOpen(ctx, eventID, true))
		_, err = f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.NoError(t, err)

		require.NoError(t, f.store.Events().SetRegistrationsOpen(ctx, eventID, false))
		_, err = f.engine.RegisterToEvent(ctx, f.addUser(t), eventID)
		require.True(t, fault.HasReason(err, fault.ReasonCapacityFull))
	})
}

func TestRegisterToEvent_ConcurrentSingleSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	eventID := f.addEvent(t, func(ev *event.Event) { ev.MaxAttendees = 1 })

	const racers = 32
	userIDs := make([]string, racers)
	for i := range userIDs {
		userIDs[i] = f.addUser(t)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		fulls     int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := f.engine.RegisterToEvent(ctx, userID, eventID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case fault.HasReason(err, fault.ReasonCapacityFull):
				fulls++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(userIDs[i])
	}
	wg.Wait()

	require.Equal(t, 1, successes, "exactly one racer wins the last seat")
	require.Equal(t, racers-1, fulls)

	ev, err := f.store.Events().GetByID(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, 1, ev.CurrentAttendees)
}

func TestRegisterToSubEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a confirmed main registration", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)
		eventID := f.addEvent(t, nil)
		subID := f.addSubEvent(t, eventID, nil)

		_, err := f.engine.RegisterToSubEvent(ctx, userID, subID)
		require.True(t, fault.IsPrecondition(err))
		require.True(t, fault.HasReason(err, fault.ReasonNoMainRegistration))

		_, err = f.engine.RegisterToEvent(ctx, userID, eventID)
		require.NoError(t, err)

		ins, err := f.engine.RegisterToSubEvent(ctx, userID, subID)
		require.NoError(t, err)
		require.Equal(t, inscription.KindSubEvent, ins.Kind)
		require.Equal(t, eventID, ins.EventID)
		require.Equal(t, subID, ins.SubEventID)

		se, err := f.store.SubEvents().GetByID(ctx, subID)
		require.NoError(t, err)
		require.Equal(t, 1, se.CurrentAttendees)
	})

	t.Run("sub-event capacity is independent of the parent's", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.addEvent(t, nil)
		subID := f.addSubEvent(t, eventID, func(se *subevent.SubEvent) { se.MaxAttendees = 1 })

		first := f.addUser(t)
		second := f.addUser(t)
		for _, uid := range []string{first, second} {
			_, err := f.engine.RegisterToEvent(ctx, uid, eventID)
			require.NoError(t, err)
		}

		_, err := f.engine.RegisterToSubEvent(ctx, first, subID)
		require.NoError(t, err)

		_, err = f.engine.RegisterToSubEvent(ctx, second, subID)
		require.True(t, fault.HasReason(err, fault.ReasonCapacityFull))
	})

	t.Run("inactive sub-event", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)
		eventID := f.addEvent(t, nil)
		subID := f.addSubEvent(t, eventID, func(se *subevent.SubEvent) { se.Status = event.StatusCanceled })

		_, err := f.engine.RegisterToEvent(ctx, userID, eventID)
		require.NoError(t, err)

		_, err = f.engine.RegisterToSubEvent(ctx, userID, subID)
		require.True(t, fault.HasReason(err, fault.ReasonEventNotActive))
	})

	t.Run("ledger re-verifies the main registration on insert", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)
		eventID := f.addEvent(t, nil)
		subID := f.addSubEvent(t, eventID, nil)

		// Straight to the ledger, past the engine's gate: the insert
		// itself must refuse without a confirmed main inscription.
		err := f.store.Ledger().CreateSub(ctx, inscription.NewForSubEvent(userID, eventID, subID, testNow))
		require.True(t, fault.IsPrecondition(err))
		require.True(t, fault.HasReason(err, fault.ReasonNoMainRegistration))

		se, err := f.store.SubEvents().GetByID(ctx, subID)
		require.NoError(t, err)
		require.Zero(t, se.CurrentAttendees, "counter must not move on rejection")
	})

	t.Run("sub-event already started", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)
		eventID := f.addEvent(t, func(ev *event.Event) { ev.StartAt = testNow.Add(time.Minute) })
		subID := f.addSubEvent(t, eventID, func(se *subevent.SubEvent) {
			se.StartAt = testNow.Add(-time.Hour)
		})

		_, err := f.engine.RegisterToEvent(ctx, userID, eventID)
		require.NoError(t, err)

		_, err = f.engine.RegisterToSubEvent(ctx, userID, subID)
		require.True(t, fault.HasReason(err, fault.ReasonAlreadyStarted))
	})
}

func TestRegisterToSubEvent_ConcurrentWithCancel(t *testing.T) {
	// A sub-event registration racing the main cancellation must end in
	// one of two states: the cascade caught the sub inscription, or the
	// ledger refused the insert. A confirmed sub-event inscription
	// without a confirmed main one is never acceptable.
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		f := newFixture(t)
		userID := f.addUser(t)
		eventID := f.addEvent(t, nil)
		subID := f.addSubEvent(t, eventID, nil)

		_, err := f.engine.RegisterToEvent(ctx, userID, eventID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.engine.RegisterToSubEvent(ctx, userID, subID)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.engine.CancelRegistration(ctx, userID, eventID)
		}()
		wg.Wait()

		registered, err := f.engine.IsRegistered(ctx, userID, eventID)
		require.NoError(t, err)
		require.False(t, registered, "main inscription must be cancelled")

		subs, err := f.engine.ListUserSubEventRegistrations(ctx, userID)
		require.NoError(t, err)
		require.Empty(t, subs, "confirmed sub inscription outlived the cancelled main one")
	}
}

func TestCancelRegistration(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades over the user's sub-event inscriptions", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)
		bystander := f.addUser(t)
		eventID := f.addEvent(t, nil)
		subA := f.addSubEvent(t, eventID, nil)
		subB := f.addSubEvent(t, eventID, nil)

		for _, uid := range []string{userID, bystander} {
			_, err := f.engine.RegisterToEvent(ctx, uid, eventID)
			require.NoError(t, err)
		}
		for _, sid := range []string{subA, subB} {
			_, err := f.engine.RegisterToSubEvent(ctx, userID, sid)
			require.NoError(t, err)
		}
		_, err := f.engine.RegisterToSubEvent(ctx, bystander, subA)
		require.NoError(t, err)

		res, err := f.engine.CancelRegistration(ctx, userID, eventID)
		require.NoError(t, err)
		require.Equal(t, inscription.StatusCancelled, res.Main.Status)
		require.NotNil(t, res.Main.CancelledAt)
		require.Len(t, res.CascadedSubs, 2)
		for _, sub := range res.CascadedSubs {
			require.Equal(t, inscription.StatusCancelled, sub.Status)
		}

		// Counters drop only for the cancelling user.
		ev, err := f.store.Events().GetByID(ctx, eventID)
		require.NoError(t, err)
		require.Equal(t, 1, ev.CurrentAttendees)

		seA, err := f.store.SubEvents().GetByID(ctx, subA)
		require.NoError(t, err)
		require.Equal(t, 1, seA.CurrentAttendees, "bystander's seat survives")

		seB, err := f.store.SubEvents().GetByID(ctx, subB)
		require.NoError(t, err)
		require.Equal(t, 0, seB.CurrentAttendees)

		// The bystander's inscriptions are untouched.
		ok, err := f.engine.IsRegistered(ctx, bystander, eventID)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("second cancel reports not found", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)
		eventID := f.addEvent(t, nil)

		_, err := f.engine.RegisterToEvent(ctx, userID, eventID)
		require.NoError(t, err)

		_, err = f.engine.CancelRegistration(ctx, userID, eventID)
		require.NoError(t, err)

		_, err = f.engine.CancelRegistration(ctx, userID, eventID)
		require.True(t, fault.IsNotFound(err))
	})

	t.Run("rejected after the event started", func(t *testing.T) {
		f := newFixture(t)
		userID := f.addUser(t)
		eventID := f.addEvent(t, nil)

		_, err := f.engine.RegisterToEvent(ctx, userID, eventID)
		require.NoError(t, err)

		// The event starts while the registration is held.
		f2 := registration.NewEngine(f.store, f.store.Events(), f.store.SubEvents(), f.store.Ledger(),
			fixedClock{t: testNow.Add(30 * time.Hour)}, nil)

		_, err = f2.CancelRegistration(ctx, userID, eventID)
		require.True(t, fault.HasReason(err, fault.ReasonAlreadyStarted))
	})

	t.Run("cancel then re-register frees and retakes the seat", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.addEvent(t, func(ev *event.Event) { ev.MaxAttendees = 1 })
		first := f.addUser(t)
		second := f.addUser(t)

		_, err := f.engine.RegisterToEvent(ctx, first, eventID)
		require.NoError(t, err)

		_, err = f.engine.RegisterToEvent(ctx, second, eventID)
		require.True(t, fault.HasReason(err, fault.ReasonCapacityFull))

		_, err = f.engine.CancelRegistration(ctx, first, eventID)
		require.NoError(t, err)

		_, err = f.engine.RegisterToEvent(ctx, second, eventID)
		require.NoError(t, err)
	})
}

func TestCancelSubEventRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.addUser(t)
	eventID := f.addEvent(t, nil)
	subID := f.addSubEvent(t, eventID, nil)

	_, err := f.engine.RegisterToEvent(ctx, userID, eventID)
	require.NoError(t, err)
	_, err = f.engine.RegisterToSubEvent(ctx, userID, subID)
	require.NoError(t, err)

	ins, err := f.engine.CancelSubEventRegistration(ctx, userID, subID)
	require.NoError(t, err)
	require.Equal(t, inscription.StatusCancelled, ins.Status)

	// Main registration is untouched.
	ok, err := f.engine.IsRegistered(ctx, userID, eventID)
	require.NoError(t, err)
	require.True(t, ok)

	se, err := f.store.SubEvents().GetByID(ctx, subID)
	require.NoError(t, err)
	require.Equal(t, 0, se.CurrentAttendees)

	_, err = f.engine.CancelSubEventRegistration(ctx, userID, subID)
	require.True(t, fault.IsNotFound(err))
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.addUser(t)
	eventID := f.addEvent(t, func(ev *event.Event) { ev.MaxAttendees = 10 })
	subID := f.addSubEvent(t, eventID, func(se *subevent.SubEvent) { se.MaxAttendees = 5 })

	_, err := f.engine.RegisterToEvent(ctx, userID, eventID)
	require.NoError(t, err)
	_, err = f.engine.RegisterToSubEvent(ctx, userID, subID)
	require.NoError(t, err)

	other := f.addUser(t)
	_, err = f.engine.RegisterToEvent(ctx, other, eventID)
	require.NoError(t, err)
	_, err = f.engine.CancelRegistration(ctx, other, eventID)
	require.NoError(t, err)

	mains, err := f.engine.ListUserEventRegistrations(ctx, userID)
	require.NoError(t, err)
	require.Len(t, mains, 1)

	subs, err := f.engine.ListUserSubEventRegistrations(ctx, userID)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	attendance, err := f.engine.ListEventAttendance(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, attendance, 1, "cancelled inscriptions stay out of attendance")

	stats, err := f.engine.EventStats(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Confirmed)
	require.Equal(t, 1, stats.Cancelled)
	require.Equal(t, 9, stats.Available)
	require.InDelta(t, 10.0, stats.OccupancyRate, 0.001)

	subStats, err := f.engine.SubEventStats(ctx, subID)
	require.NoError(t, err)
	require.Equal(t, 1, subStats.Confirmed)
	require.Equal(t, 4, subStats.Available)
	require.InDelta(t, 20.0, subStats.OccupancyRate, 0.001)

	ok, err := f.engine.IsRegistered(ctx, other, eventID)
	require.NoError(t, err)
	require.False(t, ok)
}
