package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mbetancur/convoca/internal/domain/eventrole"
	"github.com/mbetancur/convoca/internal/http/middlewares"
)

type RoleManager interface {
	InviteSubCreator(ctx context.Context, actorID, eventID, email string) (eventrole.EventRole, error)
	AcceptInvitation(ctx context.Context, userID, grantID string) (eventrole.EventRole, error)
	RevokeGrant(ctx context.Context, actorID, grantID string) error
}

type RolesHandler struct {
	svc RoleManager
}

func NewRolesHandler(svc RoleManager) *RolesHandler {
	return &RolesHandler{svc: svc}
}

type inviteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// Invite handles POST /events/:id/roles/invitations.
func (h *RolesHandler) Invite(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if uuid.Validate(eventID) != nil {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return
	}

	var req inviteRequest
	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return
	}

	grant, err := h.svc.InviteSubCreator(ctx.Request.Context(), userID, eventID, req.Email)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"grant": grant})
}

// Accept handles POST /roles/:grantId/accept.
func (h *RolesHandler) Accept(ctx *gin.Context) {
	grantID := ctx.Param("grantId")
	if uuid.Validate(grantID) != nil {
		RespondBadRequest(ctx, "grant id must be a valid UUID", nil)
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return
	}

	grant, err := h.svc.AcceptInvitation(ctx.Request.Context(), userID, grantID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"grant": grant})
}

// Revoke handles DELETE /roles/:grantId.
func (h *RolesHandler) Revoke(ctx *gin.Context) {
	grantID := ctx.Param("grantId")
	if uuid.Validate(grantID) != nil {
		RespondBadRequest(ctx, "grant id must be a valid UUID", nil)
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return
	}

	if err := h.svc.RevokeGrant(ctx.Request.Context(), userID, grantID); err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
