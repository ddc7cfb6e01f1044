package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/parcelhub/internal/actorctx"
	"github.com/geocoder89/parcelhub/internal/auth"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Missing or invalid access token")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token")
			return
		}

		r, err := role.Parse(claims.Role)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token")
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxEmail, claims.Email)
		c.Set(CtxRole, r)
		c.Set(CtxStation, claims.Station)

		// repositories read the actor from the request context
		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// Optional helpers so handlers don’t need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	id := c.GetString(CtxUserID)
	return id, id != ""
}

func RoleFromContext(c *gin.Context) (role.Role, bool) {
	v, ok := c.Get(CtxRole)
	if !ok {
		return "", false
	}
	r, ok := v.(role.Role)
	return r, ok && r.Valid()
}

// StationFromContext is the station an admin token is bound to.
func StationFromContext(c *gin.Context) (string, bool) {
	st := c.GetString(CtxStation)
	return st, st != ""
}

// Principal is the authenticated caller as handlers see it.
type Principal struct {
	UserID  string
	Email   string
	Role    role.Role
	Station string
}

func PrincipalFromContext(c *gin.Context) (Principal, bool) {
	id, ok := UserIDFromContext(c)
	if !ok {
		return Principal{}, false
	}
	r, ok := RoleFromContext(c)
	if !ok {
		return Principal{}, false
	}
	st, _ := StationFromContext(c)

	return Principal{UserID: id, Email: c.GetString(CtxEmail), Role: r, Station: st}, true
}
