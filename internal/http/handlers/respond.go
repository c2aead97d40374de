package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbetancur/convoca/internal/fault"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, "unauthorized", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

// RespondFault translates a domain error into the HTTP envelope. The
// machine-readable code is the fault reason when there is one, so
// clients can branch on capacity_full vs already_registered without
// parsing messages. Unknown errors become a 500 with no internals
// leaked.
func RespondFault(ctx *gin.Context, err error) {
	fe, ok := fault.As(err)
	if !ok {
		RespondInternal(ctx, "Something went wrong")
		return
	}

	switch fe.Kind {
	case fault.KindNotFound:
		RespondError(ctx, http.StatusNotFound, "not_found", fe.Error(), gin.H{"resource": fe.Resource})
	case fault.KindConflict:
		RespondError(ctx, http.StatusConflict, fe.Reason, fe.Error(), nil)
	case fault.KindPrecondition:
		RespondError(ctx, http.StatusPreconditionFailed, fe.Reason, fe.Error(), nil)
	case fault.KindForbidden:
		RespondError(ctx, http.StatusForbidden, "forbidden", fe.Error(), nil)
	default:
		RespondInternal(ctx, "Something went wrong")
	}
}
