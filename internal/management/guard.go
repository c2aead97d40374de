package management

import (
	"context"

	"github.com/mbetancur/convoca/internal/domain/eventrole"
	"github.com/mbetancur/convoca/internal/fault"
)

// RoleGrantStore is the grant registry contract. FindActiveGrant must
// be an indexed point lookup on (userID, eventID), never a scan.
type RoleGrantStore interface {
	FindActiveGrant(ctx context.Context, userID, eventID string) (eventrole.EventRole, error)
	GetByID(ctx context.Context, id string) (eventrole.EventRole, error)
	Save(ctx context.Context, grant eventrole.EventRole) error
	Accept(ctx context.Context, grantID, userID string) error
	Deactivate(ctx context.Context, grantID string) error
}

// Guard answers "may this user manage this event". It only reads the
// grant registry; the registration engine never consults it.
type Guard struct {
	roles RoleGrantStore
}

func NewGuard(roles RoleGrantStore) *Guard {
	return &Guard{roles: roles}
}

// CanManage reports whether the user holds an active creator or
// sub-creator grant on the event.
func (g *Guard) CanManage(ctx context.Context, userID, eventID string) (bool, error) {
	_, err := g.roles.FindActiveGrant(ctx, userID, eventID)
	if err != nil {
		if fault.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// require turns a failed CanManage into the Forbidden fault management
// operations surface.
func (g *Guard) require(ctx context.Context, userID, eventID string) error {
	ok, err := g.CanManage(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if !ok {
		return fault.Forbidden()
	}
	return nil
}
