package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbetancur/convoca/internal/domain/eventrole"
	"github.com/mbetancur/convoca/internal/fault"
	"github.com/mbetancur/convoca/internal/observability"
)

// RolesRepo stores grant history. Rows are never deleted; revocation
// flips active to false.
type RolesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRolesRepo(pool *pgxpool.Pool, prom *observability.Prom) *RolesRepo {
	return &RolesRepo{pool: pool, prom: prom}
}

func (r *RolesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const roleColumns = `id, user_id, event_id, role, invitation_email, active, granted_at`

func (r *RolesRepo) Save(ctx context.Context, grant eventrole.EventRole) error {
	return r.observe("roles.save", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO event_roles (id, user_id, event_id, role, invitation_email, active, granted_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			grant.ID, grant.UserID, grant.EventID, grant.Role,
			grant.InvitationEmail, grant.Active, grant.GrantedAt)
		return err
	})
}

func (r *RolesRepo) GetByID(ctx context.Context, id string) (eventrole.EventRole, error) {
	var grant eventrole.EventRole

	err := r.observe("roles.get_by_id", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT `+roleColumns+` FROM event_roles WHERE id = $1`, id,
		).Scan(&grant.ID, &grant.UserID, &grant.EventID, &grant.Role,
			&grant.InvitationEmail, &grant.Active, &grant.GrantedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eventrole.EventRole{}, fault.NotFound("role grant")
		}
		return eventrole.EventRole{}, err
	}
	return grant, nil
}

// FindActiveGrant is a point lookup backed by the partial index on
// (user_id, event_id) WHERE active.
func (r *RolesRepo) FindActiveGrant(ctx context.Context, userID, eventID string) (eventrole.EventRole, error) {
	var grant eventrole.EventRole

	err := r.observe("roles.find_active_grant", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT `+roleColumns+`
			 FROM event_roles
			 WHERE user_id = $1 AND event_id = $2 AND active
			   AND role IN ('creator','subcreator')
			 LIMIT 1`,
			userID, eventID,
		).Scan(&grant.ID, &grant.UserID, &grant.EventID, &grant.Role,
			&grant.InvitationEmail, &grant.Active, &grant.GrantedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eventrole.EventRole{}, fault.NotFound("role grant")
		}
		return eventrole.EventRole{}, err
	}
	return grant, nil
}

func (r *RolesRepo) Accept(ctx context.Context, grantID, userID string) error {
	return r.tagged(ctx, "roles.accept", `
		UPDATE event_roles
		SET user_id = $2, active = true
		WHERE id = $1 AND active = false AND user_id IS NULL`,
		grantID, userID)
}

func (r *RolesRepo) Deactivate(ctx context.Context, grantID string) error {
	return r.tagged(ctx, "roles.deactivate", `
		UPDATE event_roles SET active = false WHERE id = $1`,
		grantID)
}

func (r *RolesRepo) tagged(ctx context.Context, op, sql string, args ...any) error {
	var affected int64

	err := r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fault.NotFound("role grant")
	}
	return nil
}
