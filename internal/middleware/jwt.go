package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/washnet/washnet-api/internal/service"
	appErrors "github.com/washnet/washnet-api/pkg/errors"
	"github.com/washnet/washnet-api/pkg/response"
)

// ContextUserKey is the gin context key storing access-token claims.
const ContextUserKey = "currentUser"

// JWT protects admin routes by requiring a valid access token. Validation
// is purely cryptographic; no store round trip on the hot path.
func JWT(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims := tokens.ValidateAccessToken(parts[1])
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}
