package middlewares

// Keys stored on the gin context.
const (
	CtxRequestID = "request_id"
	CtxUserID    = "auth.userID"
	CtxEmail     = "auth.email"
	CtxRole      = "auth.role"
	CtxStation   = "auth.station"
	CtxSession   = "session.store"
	CtxSessionID = "session.id"
	CtxViewer    = "session.viewer"
)
