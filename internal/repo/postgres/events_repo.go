package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbetancur/convoca/internal/domain/event"
	"github.com/mbetancur/convoca/internal/fault"
	"github.com/mbetancur/convoca/internal/observability"
)

type EventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{pool: pool, prom: prom}
}

func (r *EventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const eventColumns = `id, title, description, start_at, end_at, status,
	max_attendees, current_attendees,
	registrations_open, registration_deadline, blocked,
	sub_event_ids, created_by, created_at, updated_at`

func scanEvent(row pgx.Row) (event.Event, error) {
	var ev event.Event
	err := row.Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.StartAt, &ev.EndAt, &ev.Status,
		&ev.MaxAttendees, &ev.CurrentAttendees,
		&ev.RegistrationsOpen, &ev.RegistrationDeadline, &ev.Blocked,
		&ev.SubEventIDs, &ev.CreatedBy, &ev.CreatedAt, &ev.UpdatedAt,
	)
	return ev, err
}

func (r *EventsRepo) Create(ctx context.Context, ev event.Event) error {
	return r.observe("events.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO events (id, title, description, start_at, end_at, status,
				max_attendees, current_attendees,
				registrations_open, registration_deadline, blocked,
				sub_event_ids, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			ev.ID, ev.Title, ev.Description, ev.StartAt, ev.EndAt, ev.Status,
			ev.MaxAttendees, ev.CurrentAttendees,
			ev.RegistrationsOpen, ev.RegistrationDeadline, ev.Blocked,
			ev.SubEventIDs, ev.CreatedBy, ev.CreatedAt, ev.UpdatedAt)
		return err
	})
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	var ev event.Event

	err := r.observe("events.get_by_id", func() error {
		var scanErr error
		ev, scanErr = scanEvent(r.pool.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
		return scanErr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, fault.NotFound("event")
		}
		return event.Event{}, err
	}
	return ev, nil
}

func (r *EventsRepo) List(ctx context.Context) ([]event.Event, error) {
	var rows pgx.Rows

	err := r.observe("events.list", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx,
			`SELECT `+eventColumns+` FROM events ORDER BY start_at ASC, id ASC`)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]event.Event, 0)
	for rows.Next() {
		ev, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *EventsRepo) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return r.flag(ctx, "events.set_blocked",
		`UPDATE events SET blocked = $2, updated_at = now() WHERE id = $1`, id, blocked)
}

func (r *EventsRepo) SetRegistrationsOpen(ctx context.Context, id string, open bool) error {
	return r.flag(ctx, "events.set_registrations_open",
		`UPDATE events SET registrations_open = $2, updated_at = now() WHERE id = $1`, id, open)
}

func (r *EventsRepo) UpdateStatus(ctx context.Context, id string, status event.Status) error {
	return r.flag(ctx, "events.update_status",
		`UPDATE events SET status = $2, updated_at = now() WHERE id = $1`, id, status)
}

func (r *EventsRepo) flag(ctx context.Context, op, sql string, args ...any) error {
	var affected int64

	err := r.observe(op, func() error {
		tag, execErr := r.pool.Exec(ctx, sql, args...)
		if execErr != nil {
			return execErr
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fault.NotFound("event")
	}
	return nil
}
