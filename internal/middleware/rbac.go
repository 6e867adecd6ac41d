package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tourdesk/booking-api/internal/models"
	appErrors "github.com/tourdesk/booking-api/pkg/errors"
	"github.com/tourdesk/booking-api/pkg/response"
)

// RequireRoles enforces role-based access control for console routes.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
