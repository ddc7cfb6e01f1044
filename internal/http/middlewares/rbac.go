package middlewares

import (
	"net/http"

	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/gin-gonic/gin"
)

// RequireRole lets the request through when the caller's role is one of
// allowed. It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(allowed ...role.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := RoleFromContext(c)

		if !ok {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}
		if !r.In(allowed...) {
			abortWithError(c, http.StatusForbidden, "forbidden", "Insufficient role for this resource")
			return
		}
		c.Next()
	}
}
