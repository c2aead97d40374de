package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbetancur/convoca/internal/domain/event"
	"github.com/mbetancur/convoca/internal/domain/subevent"
	"github.com/mbetancur/convoca/internal/fault"
	"github.com/mbetancur/convoca/internal/observability"
)

type SubEventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSubEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SubEventsRepo {
	return &SubEventsRepo{pool: pool, prom: prom}
}

func (r *SubEventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const subEventColumns = `id, parent_event_id, title, description, start_at, end_at,
	status, max_attendees, current_attendees, created_by, created_at, updated_at`

func scanSubEvent(row pgx.Row) (subevent.SubEvent, error) {
	var se subevent.SubEvent
	err := row.Scan(
		&se.ID, &se.ParentEventID, &se.Title, &se.Description, &se.StartAt, &se.EndAt,
		&se.Status, &se.MaxAttendees, &se.CurrentAttendees,
		&se.CreatedBy, &se.CreatedAt, &se.UpdatedAt,
	)
	return se, err
}

// Create inserts the sub-event and appends its id to the parent's
// sub_event_ids list inside one transaction.
func (r *SubEventsRepo) Create(ctx context.Context, se subevent.SubEvent) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = r.observe("subevents.create.insert", func() error {
		_, execErr := tx.Exec(ctx, `
			INSERT INTO subevents (id, parent_event_id, title, description, start_at, end_at,
				status, max_attendees, current_attendees, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			se.ID, se.ParentEventID, se.Title, se.Description, se.StartAt, se.EndAt,
			se.Status, se.MaxAttendees, se.CurrentAttendees,
			se.CreatedBy, se.CreatedAt, se.UpdatedAt)
		return execErr
	})
	if err != nil {
		return err
	}

	var affected int64
	err = r.observe("subevents.create.attach_parent", func() error {
		tag, execErr := tx.Exec(ctx, `
			UPDATE events
			SET sub_event_ids = array_append(sub_event_ids, $2), updated_at = now()
			WHERE id = $1`,
			se.ParentEventID, se.ID)
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

	return tx.Commit(ctx)
}

func (r *SubEventsRepo) GetByID(ctx context.Context, id string) (subevent.SubEvent, error) {
	var se subevent.SubEvent

	err := r.observe("subevents.get_by_id", func() error {
		var scanErr error
		se, scanErr = scanSubEvent(r.pool.QueryRow(ctx,
			`SELECT `+subEventColumns+` FROM subevents WHERE id = $1`, id))
		return scanErr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subevent.SubEvent{}, fault.NotFound("sub-event")
		}
		return subevent.SubEvent{}, err
	}
	return se, nil
}

func (r *SubEventsRepo) ListByParent(ctx context.Context, eventID string) ([]subevent.SubEvent, error) {
	var rows pgx.Rows

	err := r.observe("subevents.list_by_parent", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx,
			`SELECT `+subEventColumns+`
			 FROM subevents
			 WHERE parent_event_id = $1
			 ORDER BY start_at ASC, id ASC`, eventID)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]subevent.SubEvent, 0)
	for rows.Next() {
		se, scanErr := scanSubEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

// Update writes the mutable fields. The attendee counter is owned by
// the inscriptions ledger and deliberately not written here; the write
// is conditional on the new capacity still covering the live counter,
// so a registration racing the caller's read cannot leave
// current_attendees above max_attendees.
func (r *SubEventsRepo) Update(ctx context.Context, se subevent.SubEvent) error {
	var affected int64

	err := r.observe("subevents.update", func() error {
		tag, execErr := r.pool.Exec(ctx, `
			UPDATE subevents
			SET title = $2, description = $3, start_at = $4, end_at = $5,
				max_attendees = $6, updated_at = $7
			WHERE id = $1 AND current_attendees <= $6`,
			se.ID, se.Title, se.Description, se.StartAt, se.EndAt,
			se.MaxAttendees, se.UpdatedAt)
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
		var dummy string
		err = r.observe("subevents.update.exists_check", func() error {
			return r.pool.QueryRow(ctx, `SELECT id FROM subevents WHERE id = $1`, se.ID).Scan(&dummy)
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFound("sub-event")
		}
		if err != nil {
			return err
		}
		return fault.Precondition(fault.ReasonCapacityBelowCurrent)
	}
	return nil
}

func (r *SubEventsRepo) UpdateStatus(ctx context.Context, id string, status event.Status) error {
	var affected int64

	err := r.observe("subevents.update_status", func() error {
		tag, execErr := r.pool.Exec(ctx,
			`UPDATE subevents SET status = $2, updated_at = now() WHERE id = $1`,
			id, status)
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
		return fault.NotFound("sub-event")
	}
	return nil
}

// Delete removes the sub-event in one transaction: confirmed
// inscriptions flip to cancelled (no counter decrement, the record is
// going away), the id is detached from the parent's list, the row is
// deleted.
func (r *SubEventsRepo) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var parentID string
	err = r.observe("subevents.delete.lock", func() error {
		return tx.QueryRow(ctx,
			`SELECT parent_event_id FROM subevents WHERE id = $1 FOR UPDATE`, id,
		).Scan(&parentID)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFound("sub-event")
		}
		return err
	}

	err = r.observe("subevents.delete.cancel_inscriptions", func() error {
		_, execErr := tx.Exec(ctx, `
			UPDATE inscriptions
			SET status = 'cancelled', cancelled_at = now()
			WHERE sub_event_id = $1 AND status = 'confirmed'`, id)
		return execErr
	})
	if err != nil {
		return err
	}

	err = r.observe("subevents.delete.detach_parent", func() error {
		_, execErr := tx.Exec(ctx, `
			UPDATE events
			SET sub_event_ids = array_remove(sub_event_ids, $2), updated_at = now()
			WHERE id = $1`, parentID, id)
		return execErr
	})
	if err != nil {
		return err
	}

	err = r.observe("subevents.delete.row", func() error {
		_, execErr := tx.Exec(ctx, `DELETE FROM subevents WHERE id = $1`, id)
		return execErr
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
