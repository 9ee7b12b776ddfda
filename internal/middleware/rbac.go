package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/washnet/washnet-api/internal/models"
	appErrors "github.com/washnet/washnet-api/pkg/errors"
	"github.com/washnet/washnet-api/pkg/response"
)

// RequireRole restricts a route to the listed admin roles. Must run after
// the JWT guard.
func RequireRole(roles ...models.AdminRole) gin.HandlerFunc {
	allowed := make(map[models.AdminRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClaimsFromContext returns the access-token claims set by the JWT guard.
func ClaimsFromContext(c *gin.Context) (*models.AccessClaims, bool) {
	v, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*models.AccessClaims)
	return claims, ok
}
