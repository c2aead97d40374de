package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mbetancur/convoca/internal/cache"
	"github.com/mbetancur/convoca/internal/domain/inscription"
	"github.com/mbetancur/convoca/internal/domain/subevent"
	"github.com/mbetancur/convoca/internal/http/middlewares"
	"github.com/mbetancur/convoca/internal/registration"
)

// Registrar is the engine surface this handler consumes.
type Registrar interface {
	RegisterToEvent(ctx context.Context, userID, eventID string) (inscription.Inscription, error)
	RegisterToSubEvent(ctx context.Context, userID, subEventID string) (inscription.Inscription, error)
	CancelRegistration(ctx context.Context, userID, eventID string) (registration.CancelResult, error)
	CancelSubEventRegistration(ctx context.Context, userID, subEventID string) (inscription.Inscription, error)
	ListUserEventRegistrations(ctx context.Context, userID string) ([]inscription.Inscription, error)
	ListUserSubEventRegistrations(ctx context.Context, userID string) ([]inscription.Inscription, error)
	ListEventAttendance(ctx context.Context, eventID string) ([]inscription.Inscription, error)
	ListSubEventAttendance(ctx context.Context, subEventID string) ([]inscription.Inscription, error)
	IsRegistered(ctx context.Context, userID, eventID string) (bool, error)
	EventStats(ctx context.Context, eventID string) (inscription.Stats, error)
	SubEventStats(ctx context.Context, subEventID string) (inscription.Stats, error)
}

// ManagerChecker answers whether a user may see organizer views.
type ManagerChecker interface {
	CanManage(ctx context.Context, userID, eventID string) (bool, error)
}

// SubEventResolver maps a sub-event to its parent for the organizer
// checks on sub-event attendance.
type SubEventResolver interface {
	GetSubEvent(ctx context.Context, id string) (subevent.SubEvent, error)
}

type RegistrationsHandler struct {
	engine   Registrar
	managers ManagerChecker
	resolver SubEventResolver
	stats    *cache.Cache[inscription.Stats]
}

func NewRegistrationsHandler(engine Registrar, managers ManagerChecker, resolver SubEventResolver, stats *cache.Cache[inscription.Stats]) *RegistrationsHandler {
	return &RegistrationsHandler{engine: engine, managers: managers, resolver: resolver, stats: stats}
}

func (h *RegistrationsHandler) identity(ctx *gin.Context) (string, bool) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Missing identity")
		return "", false
	}
	return userID, true
}

func validID(ctx *gin.Context, id, what string) bool {
	if uuid.Validate(id) != nil {
		RespondBadRequest(ctx, what+" must be a valid UUID", nil)
		return false
	}
	return true
}

// Register handles POST /events/:id/registrations.
func (h *RegistrationsHandler) Register(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !validID(ctx, eventID, "event id") {
		return
	}
	userID, ok := h.identity(ctx)
	if !ok {
		return
	}

	ins, err := h.engine.RegisterToEvent(ctx.Request.Context(), userID, eventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	h.stats.Delete("event:" + eventID)
	ctx.JSON(http.StatusCreated, gin.H{"inscription": ins})
}

// RegisterSub handles POST /subevents/:subEventId/registrations.
func (h *RegistrationsHandler) RegisterSub(ctx *gin.Context) {
	subEventID := ctx.Param("subEventId")
	if !validID(ctx, subEventID, "sub-event id") {
		return
	}
	userID, ok := h.identity(ctx)
	if !ok {
		return
	}

	ins, err := h.engine.RegisterToSubEvent(ctx.Request.Context(), userID, subEventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	h.stats.Delete("subevent:" + subEventID)
	ctx.JSON(http.StatusCreated, gin.H{"inscription": ins})
}

// Cancel handles DELETE /events/:id/registrations. The response carries
// the sub-event inscriptions the cascade also cancelled.
func (h *RegistrationsHandler) Cancel(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !validID(ctx, eventID, "event id") {
		return
	}
	userID, ok := h.identity(ctx)
	if !ok {
		return
	}

	res, err := h.engine.CancelRegistration(ctx.Request.Context(), userID, eventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	h.stats.Clear()
	ctx.JSON(http.StatusOK, gin.H{
		"inscription":  res.Main,
		"cascadedSubs": res.CascadedSubs,
	})
}

// CancelSub handles DELETE /subevents/:subEventId/registrations.
func (h *RegistrationsHandler) CancelSub(ctx *gin.Context) {
	subEventID := ctx.Param("subEventId")
	if !validID(ctx, subEventID, "sub-event id") {
		return
	}
	userID, ok := h.identity(ctx)
	if !ok {
		return
	}

	ins, err := h.engine.CancelSubEventRegistration(ctx.Request.Context(), userID, subEventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	h.stats.Delete("subevent:" + subEventID)
	ctx.JSON(http.StatusOK, gin.H{"inscription": ins})
}

// MyRegistrations handles GET /me/registrations.
func (h *RegistrationsHandler) MyRegistrations(ctx *gin.Context) {
	userID, ok := h.identity(ctx)
	if !ok {
		return
	}

	list, err := h.engine.ListUserEventRegistrations(ctx.Request.Context(), userID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"inscriptions": list})
}

// MySubRegistrations handles GET /me/subevent-registrations.
func (h *RegistrationsHandler) MySubRegistrations(ctx *gin.Context) {
	userID, ok := h.identity(ctx)
	if !ok {
		return
	}

	list, err := h.engine.ListUserSubEventRegistrations(ctx.Request.Context(), userID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"inscriptions": list})
}

// IsRegistered handles GET /events/:id/registrations/me.
func (h *RegistrationsHandler) IsRegistered(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !validID(ctx, eventID, "event id") {
		return
	}
	userID, ok := h.identity(ctx)
	if !ok {
		return
	}

	registered, err := h.engine.IsRegistered(ctx.Request.Context(), userID, eventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"registered": registered})
}

// Attendance handles GET /events/:id/registrations. Organizer-only.
func (h *RegistrationsHandler) Attendance(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !validID(ctx, eventID, "event id") {
		return
	}
	userID, ok := h.identity(ctx)
	if !ok {
		return
	}

	if !h.requireManager(ctx, userID, eventID) {
		return
	}

	list, err := h.engine.ListEventAttendance(ctx.Request.Context(), eventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"inscriptions": list})
}

// SubAttendance handles GET /subevents/:subEventId/registrations.
// Organizer-only, checked against the parent event.
func (h *RegistrationsHandler) SubAttendance(ctx *gin.Context) {
	subEventID := ctx.Param("subEventId")
	if !validID(ctx, subEventID, "sub-event id") {
		return
	}
	userID, ok := h.identity(ctx)
	if !ok {
		return
	}

	se, err := h.resolver.GetSubEvent(ctx.Request.Context(), subEventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	if !h.requireManager(ctx, userID, se.ParentEventID) {
		return
	}

	list, err := h.engine.ListSubEventAttendance(ctx.Request.Context(), subEventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"inscriptions": list})
}

// Stats handles GET /events/:id/stats. Cached briefly; occupancy reads
// vastly outnumber registrations.
func (h *RegistrationsHandler) Stats(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !validID(ctx, eventID, "event id") {
		return
	}

	key := "event:" + eventID
	if stats, ok := h.stats.Get(key); ok {
		ctx.JSON(http.StatusOK, gin.H{"stats": stats})
		return
	}

	stats, err := h.engine.EventStats(ctx.Request.Context(), eventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	h.stats.Set(key, stats)
	ctx.JSON(http.StatusOK, gin.H{"stats": stats})
}

// SubStats handles GET /subevents/:subEventId/stats.
func (h *RegistrationsHandler) SubStats(ctx *gin.Context) {
	subEventID := ctx.Param("subEventId")
	if !validID(ctx, subEventID, "sub-event id") {
		return
	}

	key := "subevent:" + subEventID
	if stats, ok := h.stats.Get(key); ok {
		ctx.JSON(http.StatusOK, gin.H{"stats": stats})
		return
	}

	stats, err := h.engine.SubEventStats(ctx.Request.Context(), subEventID)
	if err != nil {
		RespondFault(ctx, err)
		return
	}

	h.stats.Set(key, stats)
	ctx.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *RegistrationsHandler) requireManager(ctx *gin.Context, userID, eventID string) bool {
	allowed, err := h.managers.CanManage(ctx.Request.Context(), userID, eventID)
	if err != nil {
		RespondFault(ctx, err)
		return false
	}
	if !allowed {
		RespondError(ctx, http.StatusForbidden, "forbidden", "forbidden", nil)
		return false
	}
	return true
}
