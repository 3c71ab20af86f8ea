package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerwise/coaching-backend/internal/auth"
	"github.com/ledgerwise/coaching-backend/internal/tenant"
	"github.com/ledgerwise/coaching-backend/pkg/response"
)

// ContextUserID is the key for the authenticated user ID in gin context (used by request logging).
const ContextUserID = "user_id"

// IdentityResolver looks up the current role and organization of a user.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (auth.Identity, error)
}

// Authenticate validates the bearer token, re-resolves the user and attaches the tenant
// context to the request. Nothing downstream runs without one.
func Authenticate(v *auth.Validator, ids IdentityResolver, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := v.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		userID, _ := claims.UserID()

		id, err := ids.Resolve(c.Request.Context(), userID)
		switch {
		case errors.Is(err, auth.ErrUnknownUser):
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		case errors.Is(err, auth.ErrInactiveUser), errors.Is(err, auth.ErrInactiveOrganization):
			logger.Warn("security_violation",
				zap.String("event", "security_violation"),
				zap.String("user_id", userID.String()),
				zap.String("reason", err.Error()),
			)
			response.Forbidden(c, "account disabled")
			c.Abort()
			return
		case err != nil:
			logger.Error("identity lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
			response.ServiceUnavailable(c, "authentication unavailable")
			c.Abort()
			return
		}

		tc, err := tenant.New(id.UserID, id.Role, id.OrganizationID)
		if err != nil {
			logger.Warn("security_violation",
				zap.String("event", "security_violation"),
				zap.String("user_id", userID.String()),
				zap.String("role", string(id.Role)),
				zap.Error(err),
			)
			response.Forbidden(c, "account misconfigured")
			c.Abort()
			return
		}
		ctx, err := tenant.WithContext(c.Request.Context(), tc)
		if err != nil {
			logger.Error("tenant context already attached", zap.String("user_id", userID.String()))
			response.Internal(c, "internal error")
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(ContextUserID, userID.String())
		c.Next()
	}
}
