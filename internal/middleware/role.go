package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ledgerwise/coaching-backend/internal/models"
	"github.com/ledgerwise/coaching-backend/internal/tenant"
	"github.com/ledgerwise/coaching-backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
// It is a coarse route gate; row visibility is decided by the gateway.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		tc, ok := tenant.FromContext(c.Request.Context())
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, ok := allowed[tc.Role()]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
