package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbetancur/convoca/internal/domain/inscription"
	"github.com/mbetancur/convoca/internal/fault"
	"github.com/mbetancur/convoca/internal/observability"
	"github.com/mbetancur/convoca/internal/registration"
)

// InscriptionsRepo is the registration ledger. The capacity check and
// the counter increment are one conditional UPDATE, and cancellation
// cascades run inside a single transaction, so concurrent writers can
// neither overbook nor leave a half-cancelled registration behind.
type InscriptionsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewInscriptionsRepo(pool *pgxpool.Pool, prom *observability.Prom) *InscriptionsRepo {
	return &InscriptionsRepo{pool: pool, prom: prom}
}

func (r *InscriptionsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const inscriptionColumns = `id, user_id, event_id, sub_event_id, kind, status, registered_at, cancelled_at`

func scanInscription(row pgx.Row) (inscription.Inscription, error) {
	var (
		ins   inscription.Inscription
		subID *string
	)
	err := row.Scan(&ins.ID, &ins.UserID, &ins.EventID, &subID,
		&ins.Kind, &ins.Status, &ins.RegisteredAt, &ins.CancelledAt)
	if subID != nil {
		ins.SubEventID = *subID
	}
	return ins, err
}

func nullableSubID(ins inscription.Inscription) *string {
	if ins.SubEventID == "" {
		return nil
	}
	s := ins.SubEventID
	return &s
}

// CreateMain checks for a duplicate, takes a seat with a conditional
// increment and inserts the confirmed record, all in one transaction.
func (r *InscriptionsRepo) CreateMain(ctx context.Context, ins inscription.Inscription) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = r.observe("inscriptions.create_main.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM inscriptions
			WHERE user_id = $1 AND event_id = $2
			  AND kind = 'main_event' AND status = 'confirmed'
		)`, ins.UserID, ins.EventID).Scan(&exists)
	})
	if err != nil {
		return err
	}
	if exists {
		return fault.Conflict(fault.ReasonAlreadyRegistered)
	}

	// Seat is taken here or not at all: increment succeeds only while
	// current < max.
	var affected int64
	err = r.observe("inscriptions.create_main.increment", func() error {
		tag, execErr := tx.Exec(ctx, `
			UPDATE events
			SET current_attendees = current_attendees + 1, updated_at = now()
			WHERE id = $1 AND current_attendees < max_attendees`,
			ins.EventID)
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
		err = r.observe("inscriptions.create_main.exists_check", func() error {
			return tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1`, ins.EventID).Scan(&dummy)
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFound("event")
		}
		if err != nil {
			return err
		}
		return fault.Conflict(fault.ReasonCapacityFull)
	}

	err = r.observe("inscriptions.create_main.insert", func() error {
		_, execErr := tx.Exec(ctx, `
			INSERT INTO inscriptions (id, user_id, event_id, sub_event_id, kind, status, registered_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			ins.ID, ins.UserID, ins.EventID, nullableSubID(ins),
			ins.Kind, ins.Status, ins.RegisteredAt)
		return execErr
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return fault.Conflict(fault.ReasonAlreadyRegistered)
		}
		return err
	}

	return tx.Commit(ctx)
}

// CreateSub is CreateMain against the sub-event's counter, plus a
// share lock on the user's confirmed main inscription. CancelMain
// locks that same row FOR UPDATE, so a cascade either sees this record
// committed or forces this transaction to observe the cancellation;
// a confirmed sub inscription can never outlive its main one.
func (r *InscriptionsRepo) CreateSub(ctx context.Context, ins inscription.Inscription) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = r.observe("inscriptions.create_sub.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM inscriptions
			WHERE user_id = $1 AND sub_event_id = $2 AND status = 'confirmed'
		)`, ins.UserID, ins.SubEventID).Scan(&exists)
	})
	if err != nil {
		return err
	}
	if exists {
		return fault.Conflict(fault.ReasonAlreadyRegistered)
	}

	var mainID string
	err = r.observe("inscriptions.create_sub.main_gate", func() error {
		return tx.QueryRow(ctx, `
			SELECT id FROM inscriptions
			WHERE user_id = $1 AND event_id = $2
			  AND kind = 'main_event' AND status = 'confirmed'
			FOR SHARE`, ins.UserID, ins.EventID).Scan(&mainID)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.Precondition(fault.ReasonNoMainRegistration)
		}
		return err
	}

	var affected int64
	err = r.observe("inscriptions.create_sub.increment", func() error {
		tag, execErr := tx.Exec(ctx, `
			UPDATE subevents
			SET current_attendees = current_attendees + 1, updated_at = now()
			WHERE id = $1 AND current_attendees < max_attendees`,
			ins.SubEventID)
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
		err = r.observe("inscriptions.create_sub.exists_check", func() error {
			return tx.QueryRow(ctx, `SELECT id FROM subevents WHERE id = $1`, ins.SubEventID).Scan(&dummy)
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFound("sub-event")
		}
		if err != nil {
			return err
		}
		return fault.Conflict(fault.ReasonCapacityFull)
	}

	err = r.observe("inscriptions.create_sub.insert", func() error {
		_, execErr := tx.Exec(ctx, `
			INSERT INTO inscriptions (id, user_id, event_id, sub_event_id, kind, status, registered_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			ins.ID, ins.UserID, ins.EventID, nullableSubID(ins),
			ins.Kind, ins.Status, ins.RegisteredAt)
		return execErr
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return fault.Conflict(fault.ReasonAlreadyRegistered)
		}
		return err
	}

	return tx.Commit(ctx)
}

// CancelMain locks the main record and every cascading sub record up
// front, then flips and decrements them in the same transaction.
// Nothing is committed unless the whole cascade succeeded.
func (r *InscriptionsRepo) CancelMain(ctx context.Context, userID, eventID string, now time.Time) (res registration.CancelResult, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return registration.CancelResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var main inscription.Inscription
	err = r.observe("inscriptions.cancel_main.lock", func() error {
		var scanErr error
		main, scanErr = scanInscription(tx.QueryRow(ctx, `
			SELECT `+inscriptionColumns+`
			FROM inscriptions
			WHERE user_id = $1 AND event_id = $2
			  AND kind = 'main_event' AND status = 'confirmed'
			FOR UPDATE`, userID, eventID))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registration.CancelResult{}, fault.NotFound("inscription")
		}
		return registration.CancelResult{}, err
	}

	var subs []inscription.Inscription
	err = r.observe("inscriptions.cancel_main.lock_subs", func() error {
		rows, qerr := tx.Query(ctx, `
			SELECT `+inscriptionColumns+`
			FROM inscriptions
			WHERE user_id = $1 AND event_id = $2
			  AND kind = 'sub_event' AND status = 'confirmed'
			ORDER BY registered_at ASC, id ASC
			FOR UPDATE`, userID, eventID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()

		for rows.Next() {
			sub, scanErr := scanInscription(rows)
			if scanErr != nil {
				return scanErr
			}
			subs = append(subs, sub)
		}
		return rows.Err()
	})
	if err != nil {
		return registration.CancelResult{}, err
	}

	if err = r.cancelTx(ctx, tx, main.ID, now); err != nil {
		return registration.CancelResult{}, err
	}
	err = r.observe("inscriptions.cancel_main.decrement_event", func() error {
		_, execErr := tx.Exec(ctx, `
			UPDATE events
			SET current_attendees = GREATEST(current_attendees - 1, 0), updated_at = now()
			WHERE id = $1`, eventID)
		return execErr
	})
	if err != nil {
		return registration.CancelResult{}, err
	}

	for i := range subs {
		if err = r.cancelTx(ctx, tx, subs[i].ID, now); err != nil {
			return registration.CancelResult{}, err
		}
		err = r.observe("inscriptions.cancel_main.decrement_subevent", func() error {
			_, execErr := tx.Exec(ctx, `
				UPDATE subevents
				SET current_attendees = GREATEST(current_attendees - 1, 0), updated_at = now()
				WHERE id = $1`, subs[i].SubEventID)
			return execErr
		})
		if err != nil {
			return registration.CancelResult{}, err
		}
		subs[i].Status = inscription.StatusCancelled
		subs[i].CancelledAt = &now
	}

	if err = tx.Commit(ctx); err != nil {
		return registration.CancelResult{}, err
	}

	main.Status = inscription.StatusCancelled
	main.CancelledAt = &now
	return registration.CancelResult{Main: main, CascadedSubs: subs}, nil
}

// CancelSub flips one confirmed sub-event inscription and decrements
// that counter, floored at zero.
func (r *InscriptionsRepo) CancelSub(ctx context.Context, userID, subEventID string, now time.Time) (ins inscription.Inscription, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return inscription.Inscription{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = r.observe("inscriptions.cancel_sub.lock", func() error {
		var scanErr error
		ins, scanErr = scanInscription(tx.QueryRow(ctx, `
			SELECT `+inscriptionColumns+`
			FROM inscriptions
			WHERE user_id = $1 AND sub_event_id = $2
			  AND kind = 'sub_event' AND status = 'confirmed'
			FOR UPDATE`, userID, subEventID))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inscription.Inscription{}, fault.NotFound("inscription")
		}
		return inscription.Inscription{}, err
	}

	if err = r.cancelTx(ctx, tx, ins.ID, now); err != nil {
		return inscription.Inscription{}, err
	}
	err = r.observe("inscriptions.cancel_sub.decrement", func() error {
		_, execErr := tx.Exec(ctx, `
			UPDATE subevents
			SET current_attendees = GREATEST(current_attendees - 1, 0), updated_at = now()
			WHERE id = $1`, subEventID)
		return execErr
	})
	if err != nil {
		return inscription.Inscription{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return inscription.Inscription{}, err
	}

	ins.Status = inscription.StatusCancelled
	ins.CancelledAt = &now
	return ins, nil
}

func (r *InscriptionsRepo) cancelTx(ctx context.Context, tx pgx.Tx, id string, now time.Time) error {
	return r.observe("inscriptions.cancel.flip", func() error {
		_, execErr := tx.Exec(ctx, `
			UPDATE inscriptions
			SET status = 'cancelled', cancelled_at = $2
			WHERE id = $1 AND status = 'confirmed'`, id, now)
		return execErr
	})
}

// --- queries ---

func (r *InscriptionsRepo) FindActiveByUserAndEvent(ctx context.Context, userID, eventID string) (inscription.Inscription, error) {
	return r.findOne(ctx, "inscriptions.find_active_by_user_event", `
		WHERE user_id = $1 AND event_id = $2
		  AND kind = 'main_event' AND status = 'confirmed'`, userID, eventID)
}

func (r *InscriptionsRepo) FindActiveByUserAndSubEvent(ctx context.Context, userID, subEventID string) (inscription.Inscription, error) {
	return r.findOne(ctx, "inscriptions.find_active_by_user_subevent", `
		WHERE user_id = $1 AND sub_event_id = $2
		  AND kind = 'sub_event' AND status = 'confirmed'`, userID, subEventID)
}

func (r *InscriptionsRepo) findOne(ctx context.Context, op, where string, args ...any) (inscription.Inscription, error) {
	var ins inscription.Inscription

	err := r.observe(op, func() error {
		var scanErr error
		ins, scanErr = scanInscription(r.pool.QueryRow(ctx,
			`SELECT `+inscriptionColumns+` FROM inscriptions `+where, args...))
		return scanErr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inscription.Inscription{}, fault.NotFound("inscription")
		}
		return inscription.Inscription{}, err
	}
	return ins, nil
}

func (r *InscriptionsRepo) FindActiveByEvent(ctx context.Context, eventID string) ([]inscription.Inscription, error) {
	return r.findMany(ctx, "inscriptions.find_active_by_event", `
		WHERE event_id = $1 AND kind = 'main_event' AND status = 'confirmed'`, eventID)
}

func (r *InscriptionsRepo) FindActiveBySubEvent(ctx context.Context, subEventID string) ([]inscription.Inscription, error) {
	return r.findMany(ctx, "inscriptions.find_active_by_subevent", `
		WHERE sub_event_id = $1 AND status = 'confirmed'`, subEventID)
}

func (r *InscriptionsRepo) ListActiveByUser(ctx context.Context, userID string, kind inscription.Kind) ([]inscription.Inscription, error) {
	return r.findMany(ctx, "inscriptions.list_active_by_user", `
		WHERE user_id = $1 AND kind = $2 AND status = 'confirmed'`, userID, kind)
}

func (r *InscriptionsRepo) findMany(ctx context.Context, op, where string, args ...any) ([]inscription.Inscription, error) {
	var rows pgx.Rows

	err := r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx,
			`SELECT `+inscriptionColumns+` FROM inscriptions `+where+
				` ORDER BY registered_at ASC, id ASC`, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]inscription.Inscription, 0)
	for rows.Next() {
		ins, scanErr := scanInscription(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

func (r *InscriptionsRepo) CountByEvent(ctx context.Context, eventID string) (confirmed, cancelled int, err error) {
	err = r.observe("inscriptions.count_by_event", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE status = 'confirmed'),
				COUNT(*) FILTER (WHERE status = 'cancelled')
			FROM inscriptions
			WHERE event_id = $1 AND kind = 'main_event'`, eventID,
		).Scan(&confirmed, &cancelled)
	})
	return confirmed, cancelled, err
}

func (r *InscriptionsRepo) CountBySubEvent(ctx context.Context, subEventID string) (confirmed, cancelled int, err error) {
	err = r.observe("inscriptions.count_by_subevent", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE status = 'confirmed'),
				COUNT(*) FILTER (WHERE status = 'cancelled')
			FROM inscriptions
			WHERE sub_event_id = $1`, subEventID,
		).Scan(&confirmed, &cancelled)
	})
	return confirmed, cancelled, err
}
