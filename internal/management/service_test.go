package management_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mbetancur/convoca/internal/domain/event"
	"github.com/mbetancur/convoca/internal/domain/eventrole"
	"github.com/mbetancur/convoca/internal/domain/inscription"
	"github.com/mbetancur/convoca/internal/domain/subevent"
	"github.com/mbetancur/convoca/internal/domain/user"
	"github.com/mbetancur/convoca/internal/fault"
	"github.com/mbetancur/convoca/internal/management"
	"github.com/mbetancur/convoca/internal/repo/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	svc   *management.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	guard := management.NewGuard(store.Roles())
	svc := management.NewService(guard, store, store.Events(), store.SubEvents(), store.Roles(), fixedClock{t: testNow})
	return &fixture{store: store, svc: svc}
}

func (f *fixture) addUser(t *testing.T, email string) string {
	t.Helper()
	id := uuid.NewString()
	f.store.SaveUser(user.User{ID: id, Username: "u-" + id[:8], Email: email, Name: "Test User"})
	return id
}

func (f *fixture) createEvent(t *testing.T, creatorID string) event.Event {
	t.Helper()
	ev, err := f.svc.CreateEvent(context.Background(), event.CreateEventRequest{
		Title:        "Conference",
		StartAt:      testNow.Add(24 * time.Hour),
		EndAt:        testNow.Add(72 * time.Hour),
		MaxAttendees: 100,
		CreatedBy:    creatorID,
	})
	require.NoError(t, err)
	return ev
}

func subReq(parentID string, start, end time.Time) subevent.CreateSubEventRequest {
	return subevent.CreateSubEventRequest{
		Title:         "Workshop",
		StartAt:       start,
		EndAt:         end,
		MaxAttendees:  30,
		ParentEventID: parentID,
	}
}

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := f.addUser(t, "creator@example.com")

	ev := f.createEvent(t, creator)
	require.Equal(t, event.StatusActive, ev.Status)
	require.True(t, ev.RegistrationsOpen)
	require.Zero(t, ev.CurrentAttendees)
	require.False(t, ev.Blocked)

	// Creating grants management immediately.
	ok, err := f.svc.CanManage(ctx, creator, ev.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// A stranger cannot manage.
	stranger := f.addUser(t, "stranger@example.com")
	ok, err = f.svc.CanManage(ctx, stranger, ev.ID)
	require.NoError(t, err)
	require.False(t, ok)

	t.Run("unknown creator", func(t *testing.T) {
		_, err := f.svc.CreateEvent(ctx, event.CreateEventRequest{
			Title:        "Ghost",
			StartAt:      testNow.Add(time.Hour),
			EndAt:        testNow.Add(2 * time.Hour),
			MaxAttendees: 10,
			CreatedBy:    uuid.NewString(),
		})
		require.True(t, fault.IsNotFound(err))
	})
}

func TestCreateSubEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("window must sit inside the parent's", func(t *testing.T) {
		f := newFixture(t)
		creator := f.addUser(t, "creator@example.com")
		ev := f.createEvent(t, creator)

		// Starts before the parent.
		_, err := f.svc.CreateSubEvent(ctx, creator, subReq(ev.ID, ev.StartAt.Add(-time.Hour), ev.StartAt.Add(time.Hour)))
		require.True(t, fault.HasReason(err, fault.ReasonWindowOutsideParent))

		// Ends after the parent.
		_, err = f.svc.CreateSubEvent(ctx, creator, subReq(ev.ID, ev.EndAt.Add(-time.Hour), ev.EndAt.Add(time.Hour)))
		require.True(t, fault.HasReason(err, fault.ReasonWindowOutsideParent))

		// Boundary-touching windows are allowed.
		se, err := f.svc.CreateSubEvent(ctx, creator, subReq(ev.ID, ev.StartAt, ev.EndAt))
		require.NoError(t, err)
		require.Equal(t, event.StatusActive, se.Status)
		require.Zero(t, se.CurrentAttendees)

		parent, err := f.svc.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		require.Contains(t, parent.SubEventIDs, se.ID)
	})

	t.Run("inverted window is rejected even inside the parent's", func(t *testing.T) {
		f := newFixture(t)
		creator := f.addUser(t, "creator@example.com")
		ev := f.createEvent(t, creator)

		// Both instants sit inside the parent's window; only the order
		// is wrong.
		_, err := f.svc.CreateSubEvent(ctx, creator, subReq(ev.ID, ev.StartAt.Add(3*time.Hour), ev.StartAt.Add(time.Hour)))
		require.True(t, fault.HasReason(err, fault.ReasonWindowOutsideParent))

		// Zero-length windows are no better.
		_, err = f.svc.CreateSubEvent(ctx, creator, subReq(ev.ID, ev.StartAt.Add(time.Hour), ev.StartAt.Add(time.Hour)))
		require.True(t, fault.HasReason(err, fault.ReasonWindowOutsideParent))
	})

	t.Run("requires an active grant", func(t *testing.T) {
		f := newFixture(t)
		creator := f.addUser(t, "creator@example.com")
		stranger := f.addUser(t, "stranger@example.com")
		ev := f.createEvent(t, creator)

		_, err := f.svc.CreateSubEvent(ctx, stranger, subReq(ev.ID, ev.StartAt, ev.EndAt))
		require.True(t, fault.IsForbidden(err))
	})

	t.Run("blocked parent rejects new sub-events", func(t *testing.T) {
		f := newFixture(t)
		creator := f.addUser(t, "creator@example.com")
		ev := f.createEvent(t, creator)
		require.NoError(t, f.svc.SetEventBlocked(ctx, creator, ev.ID, true))

		_, err := f.svc.CreateSubEvent(ctx, creator, subReq(ev.ID, ev.StartAt, ev.EndAt))
		require.True(t, fault.HasReason(err, fault.ReasonEventBlocked))
	})
}

func TestUpdateSubEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := f.addUser(t, "creator@example.com")
	ev := f.createEvent(t, creator)
	se, err := f.svc.CreateSubEvent(ctx, creator, subReq(ev.ID, ev.StartAt.Add(time.Hour), ev.StartAt.Add(3*time.Hour)))
	require.NoError(t, err)

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		title := "Renamed"
		got, err := f.svc.UpdateSubEvent(ctx, creator, se.ID, subevent.UpdateSubEventRequest{Title: &title})
		require.NoError(t, err)
		require.Equal(t, "Renamed", got.Title)
		require.Equal(t, se.StartAt, got.StartAt)
		require.Equal(t, se.MaxAttendees, got.MaxAttendees)
	})

	t.Run("moved window must stay inside the parent", func(t *testing.T) {
		outside := ev.EndAt.Add(time.Hour)
		_, err := f.svc.UpdateSubEvent(ctx, creator, se.ID, subevent.UpdateSubEventRequest{EndAt: &outside})
		require.True(t, fault.HasReason(err, fault.ReasonWindowOutsideParent))
	})

	t.Run("capacity cannot drop below current attendance", func(t *testing.T) {
		// Seed one confirmed inscription via the ledger.
		userID := f.addUser(t, "attendee@example.com")
		require.NoError(t, f.store.Ledger().CreateMain(ctx, mainInscription(userID, ev.ID)))
		require.NoError(t, f.store.Ledger().CreateSub(ctx, subInscription(userID, ev.ID, se.ID)))

		tooSmall := 0
		_, err := f.svc.UpdateSubEvent(ctx, creator, se.ID, subevent.UpdateSubEventRequest{MaxAttendees: &tooSmall})
		require.True(t, fault.HasReason(err, fault.ReasonCapacityBelowCurrent))

		fine := 1
		got, err := f.svc.UpdateSubEvent(ctx, creator, se.ID, subevent.UpdateSubEventRequest{MaxAttendees: &fine})
		require.NoError(t, err)
		require.Equal(t, 1, got.MaxAttendees)
	})

	t.Run("store rejects a stale capacity write", func(t *testing.T) {
		// A registration that lands between the service's read and the
		// store write must not be overtaken: the store re-checks the
		// live counter at write time.
		stale := se
		stale.MaxAttendees = 0
		err := f.store.SubEvents().Update(ctx, stale)
		require.True(t, fault.HasReason(err, fault.ReasonCapacityBelowCurrent))

		got, err := f.svc.GetSubEvent(ctx, se.ID)
		require.NoError(t, err)
		require.Equal(t, 1, got.MaxAttendees, "rejected write leaves the record untouched")
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		stranger := f.addUser(t, "stranger@example.com")
		title := "Nope"
		_, err := f.svc.UpdateSubEvent(ctx, stranger, se.ID, subevent.UpdateSubEventRequest{Title: &title})
		require.True(t, fault.IsForbidden(err))
	})
}

func TestDeleteSubEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := f.addUser(t, "creator@example.com")
	ev := f.createEvent(t, creator)
	se, err := f.svc.CreateSubEvent(ctx, creator, subReq(ev.ID, ev.StartAt, ev.EndAt))
	require.NoError(t, err)

	userID := f.addUser(t, "attendee@example.com")
	require.NoError(t, f.store.Ledger().CreateMain(ctx, mainInscription(userID, ev.ID)))
	require.NoError(t, f.store.Ledger().CreateSub(ctx, subInscription(userID, ev.ID, se.ID)))

	require.NoError(t, f.svc.DeleteSubEvent(ctx, creator, se.ID))

	_, err = f.svc.GetSubEvent(ctx, se.ID)
	require.True(t, fault.IsNotFound(err))

	parent, err := f.svc.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.NotContains(t, parent.SubEventIDs, se.ID)

	// The attendee's sub inscription was cancelled by the delete.
	_, err = f.store.Ledger().FindActiveByUserAndSubEvent(ctx, userID, se.ID)
	require.True(t, fault.IsNotFound(err))

	// Main inscription survives.
	_, err = f.store.Ledger().FindActiveByUserAndEvent(ctx, userID, ev.ID)
	require.NoError(t, err)
}

func TestStatusChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := f.addUser(t, "creator@example.com")
	ev := f.createEvent(t, creator)
	se, err := f.svc.CreateSubEvent(ctx, creator, subReq(ev.ID, ev.StartAt, ev.EndAt))
	require.NoError(t, err)

	t.Run("unknown status is rejected before any lookup", func(t *testing.T) {
		err := f.svc.ChangeEventStatus(ctx, creator, ev.ID, "paused")
		require.True(t, fault.HasReason(err, fault.ReasonUnknownStatus))

		_, err = f.svc.ChangeSubEventStatus(ctx, creator, se.ID, "paused")
		require.True(t, fault.HasReason(err, fault.ReasonUnknownStatus))
	})

	t.Run("valid transitions apply", func(t *testing.T) {
		require.NoError(t, f.svc.ChangeEventStatus(ctx, creator, ev.ID, "inactive"))
		got, err := f.svc.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		require.Equal(t, event.StatusInactive, got.Status)

		updated, err := f.svc.ChangeSubEventStatus(ctx, creator, se.ID, "canceled")
		require.NoError(t, err)
		require.Equal(t, event.StatusCanceled, updated.Status)
	})
}

func TestInvitationLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	creator := f.addUser(t, "creator@example.com")
	invitee := f.addUser(t, "helper@example.com")
	ev := f.createEvent(t, creator)

	grant, err := f.svc.InviteSubCreator(ctx, creator, ev.ID, "helper@example.com")
	require.NoError(t, err)
	require.False(t, grant.Active)
	require.Nil(t, grant.UserID)
	require.Equal(t, eventrole.RoleSubCreator, grant.Role)

	// Pending grant conveys nothing yet.
	ok, err := f.svc.CanManage(ctx, invitee, ev.ID)
	require.NoError(t, err)
	require.False(t, ok)

	t.Run("wrong email cannot accept", func(t *testing.T) {
		wrong := f.addUser(t, "other@example.com")
		_, err := f.svc.AcceptInvitation(ctx, wrong, grant.ID)
		require.True(t, fault.IsForbidden(err))
	})

	t.Run("matching email accepts and activates", func(t *testing.T) {
		accepted, err := f.svc.AcceptInvitation(ctx, invitee, grant.ID)
		require.NoError(t, err)
		require.True(t, accepted.Active)
		require.NotNil(t, accepted.UserID)
		require.Equal(t, invitee, *accepted.UserID)

		ok, err := f.svc.CanManage(ctx, invitee, ev.ID)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("accepting twice conflicts", func(t *testing.T) {
		_, err := f.svc.AcceptInvitation(ctx, invitee, grant.ID)
		require.True(t, fault.IsConflict(err))
	})

	t.Run("revocation removes management but keeps the record", func(t *testing.T) {
		require.NoError(t, f.svc.RevokeGrant(ctx, creator, grant.ID))

		ok, err := f.svc.CanManage(ctx, invitee, ev.ID)
		require.NoError(t, err)
		require.False(t, ok)

		stored, err := f.store.Roles().GetByID(ctx, grant.ID)
		require.NoError(t, err)
		require.False(t, stored.Active)
	})

	t.Run("only a manager can invite or revoke", func(t *testing.T) {
		stranger := f.addUser(t, "stranger@example.com")
		_, err := f.svc.InviteSubCreator(ctx, stranger, ev.ID, "x@example.com")
		require.True(t, fault.IsForbidden(err))
	})
}

func mainInscription(userID, eventID string) inscription.Inscription {
	return inscription.NewForEvent(userID, eventID, testNow)
}

func subInscription(userID, eventID, subEventID string) inscription.Inscription {
	return inscription.NewForSubEvent(userID, eventID, subEventID, testNow)
}
