package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mbetancur/convoca/internal/domain/event"
	"github.com/mbetancur/convoca/internal/http/middlewares"
)

// EventManager is the slice of the management service this handler
// needs. Kept small so tests can fake it.
type EventManager interface {
	CreateEvent(ctx context.Context, req event.CreateEventRequest) (event.Event, error)
	GetEvent(ctx context.Context, id string) (event.Event, error)
	ListEvents(ctx context.Context) ([]event.Event, error)
	ChangeEventStatus(ctx context.Context, actorID, eventID, target string) error
	SetEventBlocked(ctx context.Context, actorID, eventID string, blocked bool) error
	SetRegistrationsOpen(ctx context.Context, actorID, eventID string, open bool) error
}

type EventsHandler struct {
	svc EventManager
}

func NewEventsHandler(svc EventManager) *EventsHandler {
	return &EventsHandler{svc: svc}
}

func (h *EventsHandler) Create(ctx *gin.Context) {
	var req event.CreateEventRequest
	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return
	}
	req.CreatedBy = userID

	ev, err := h.svc.CreateEvent(ctx.Request.Context(), req)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"event": ev})
}

func (h *EventsHandler) Get(ctx *gin.Context) {
	id := ctx.Param("id")
	if uuid.Validate(id) != nil {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return
	}

	ev, err := h.svc.GetEvent(ctx.Request.Context(), id)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"event": ev})
}

func (h *EventsHandler) List(ctx *gin.Context) {
	events, err := h.svc.ListEvents(ctx.Request.Context())
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"events": events})
}

type changeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *EventsHandler) ChangeStatus(ctx *gin.Context) {
	id := ctx.Param("id")
	if uuid.Validate(id) != nil {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
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

	if err := h.svc.ChangeEventStatus(ctx.Request.Context(), userID, id, req.Status); err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

type setFlagRequest struct {
	Value *bool `json:"value" binding:"required"`
}

func (h *EventsHandler) SetBlocked(ctx *gin.Context) {
	h.setFlag(ctx, h.svc.SetEventBlocked, "blocked")
}

func (h *EventsHandler) SetRegistrationsOpen(ctx *gin.Context) {
	h.setFlag(ctx, h.svc.SetRegistrationsOpen, "registrationsOpen")
}

func (h *EventsHandler) setFlag(ctx *gin.Context, apply func(context.Context, string, string, bool) error, name string) {
	id := ctx.Param("id")
	if uuid.Validate(id) != nil {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return
	}

	var req setFlagRequest
	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return
	}

	if err := apply(ctx.Request.Context(), userID, id, *req.Value); err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"id": id, name: *req.Value})
}
