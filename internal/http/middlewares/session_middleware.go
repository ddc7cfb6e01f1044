package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/guard"
	"github.com/geocoder89/parcelhub/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const SessionCookie = "sid"

// Sessions opens the server-side session named by the sid cookie for each
// request.
type Sessions struct {
	backend session.Backend
	ttl     time.Duration
	secure  bool
	log     *slog.Logger
}

func NewSessions(backend session.Backend, ttl time.Duration, secure bool, log *slog.Logger) *Sessions {
	if log == nil {
		log = slog.Default()
	}
	return &Sessions{backend: backend, ttl: ttl, secure: secure, log: log}
}

// Load attaches the request's session store, if it has a session cookie. A
// session that cannot be opened is treated as anonymous.
func (s *Sessions) Load() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookie)
		if err != nil || sid == "" {
			c.Next()
			return
		}

		store, err := session.Open(c.Request.Context(), s.backend.Storage(sid))
		if err != nil {
			s.log.WarnContext(c.Request.Context(), "open session", "err", err)
			c.Next()
			return
		}
		defer store.Close()

		c.Set(CtxSessionID, sid)
		c.Set(CtxSession, store)
		c.Next()
	}
}

// Start opens a fresh session for userID and sets its cookie. Handlers call it
// on login.
func (s *Sessions) Start(c *gin.Context, userID string) (*session.Store, error) {
	sid := uuid.NewString()

	store, err := session.Open(c.Request.Context(), s.backend.Storage(sid))
	if err != nil {
		return nil, err
	}
	if err := s.backend.Track(c.Request.Context(), userID, sid); err != nil {
		return nil, err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sid, int(s.ttl.Seconds()), "/", "", s.secure, true)
	c.Set(CtxSessionID, sid)
	c.Set(CtxSession, store)
	return store, nil
}

// EndAll drops every session of userID, on any device.
func (s *Sessions) EndAll(ctx context.Context, userID string) error {
	return s.backend.EndAll(ctx, userID)
}

// End clears the session cookie.
func (s *Sessions) End(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", s.secure, true)
}

func SessionFromContext(c *gin.Context) (*session.Store, bool) {
	v, ok := c.Get(CtxSession)
	if !ok {
		return nil, false
	}
	st, ok := v.(*session.Store)
	return st, ok && st != nil
}

// RequireView guards a navigation route: visitors the guard turns away get a
// 302 to its redirect target, everyone else continues with the viewer set.
// A session holding a deactivated identity is signed out first.
func RequireView(allowed []role.Role, redirect string) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, _ := SessionFromContext(c)
		if store != nil {
			if cur := store.Current(); cur != nil && !cur.Active {
				_ = store.Logout(c.Request.Context())
			}
		}

		d := guard.Check(store, allowed, redirect)
		if !d.Allowed() {
			c.Redirect(http.StatusFound, d.Redirect)
			c.Abort()
			return
		}

		c.Set(CtxViewer, d.Identity)
		c.Next()
	}
}

func ViewerFromContext(c *gin.Context) (*session.Identity, bool) {
	v, ok := c.Get(CtxViewer)
	if !ok {
		return nil, false
	}
	id, ok := v.(*session.Identity)
	return id, ok && id != nil
}
