package middlewares

// Context keys shared between middlewares and handlers. Gin contexts
// are keyed by string, so these stay plain strings.
const (
	CtxRequestID = "request_id"
	CtxUserID    = "auth.userID"
	CtxUsername  = "auth.username"
	CtxEmail     = "auth.email"
)
