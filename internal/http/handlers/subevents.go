package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mbetancur/convoca/internal/domain/subevent"
	"github.com/mbetancur/convoca/internal/http/middlewares"
)

type SubEventManager interface {
	CreateSubEvent(ctx context.Context, actorID string, req subevent.CreateSubEventRequest) (subevent.SubEvent, error)
	GetSubEvent(ctx context.Context, id string) (subevent.SubEvent, error)
	ListSubEvents(ctx context.Context, eventID string) ([]subevent.SubEvent, error)
	UpdateSubEvent(ctx context.Context, actorID, subEventID string, req subevent.UpdateSubEventRequest) (subevent.SubEvent, error)
	DeleteSubEvent(ctx context.Context, actorID, subEventID string) error
	ChangeSubEventStatus(ctx context.Context, actorID, subEventID, target string) (subevent.SubEvent, error)
}

type SubEventsHandler struct {
	svc SubEventManager
}

func NewSubEventsHandler(svc SubEventManager) *SubEventsHandler {
	return &SubEventsHandler{svc: svc}
}

// Create handles POST /events/:id/subevents. The parent id comes from
// the URL, never the body.
func (h *SubEventsHandler) Create(ctx *gin.Context) {
	parentID := ctx.Param("id")
	if uuid.Validate(parentID) != nil {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return
	}

	var req subevent.CreateSubEventRequest
	if !BindJSON(ctx, &req) {
		return
	}
	req.ParentEventID = parentID

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return
	}

	se, err := h.svc.CreateSubEvent(ctx.Request.Context(), userID, req)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"subEvent": se})
}

func (h *SubEventsHandler) Get(ctx *gin.Context) {
	id := ctx.Param("subEventId")
	if uuid.Validate(id) != nil {
		RespondBadRequest(ctx, "sub-event id must be a valid UUID", nil)
		return
	}

	se, err := h.svc.GetSubEvent(ctx.Request.Context(), id)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"subEvent": se})
}

func (h *SubEventsHandler) ListByEvent(ctx *gin.Context) {
	parentID := ctx.Param("id")
	if uuid.Validate(parentID) != nil {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return
	}

	subs, err := h.svc.ListSubEvents(ctx.Request.Context(), parentID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"subEvents": subs})
}

func (h *SubEventsHandler) Update(ctx *gin.Context) {
	id := ctx.Param("subEventId")
	if uuid.Validate(id) != nil {
		RespondBadRequest(ctx, "sub-event id must be a valid UUID", nil)
		return
	}

	var req subevent.UpdateSubEventRequest
	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return
	}

	se, err := h.svc.UpdateSubEvent(ctx.Request.Context(), userID, id, req)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"subEvent": se})
}

func (h *SubEventsHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("subEventId")
	if uuid.Validate(id) != nil {
		RespondBadRequest(ctx, "sub-event id must be a valid UUID", nil)
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return
	}

	if err := h.svc.DeleteSubEvent(ctx.Request.Context(), userID, id); err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *SubEventsHandler) ChangeStatus(ctx *gin.Context) {
	id := ctx.Param("subEventId")
	if uuid.Validate(id) != nil {
		RespondBadRequest(ctx, "sub-event id must be a valid UUID", nil)
		return
	}

	var req changeStatusRequest
	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return
	}

	se, err := h.svc.ChangeSubEventStatus(ctx.Request.Context(), userID, id, req.Status)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"subEvent": se})
}
