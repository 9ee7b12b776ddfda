package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/washnet/washnet-api/internal/models"
	"github.com/washnet/washnet-api/internal/service"
	appErrors "github.com/washnet/washnet-api/pkg/errors"
	"github.com/washnet/washnet-api/pkg/response"
)

// ContextSessionKey is the gin context key storing the resolved session.
const ContextSessionKey = "currentSession"

// SessionHeader carries the opaque handle for portal requests.
const SessionHeader = "X-Session-Token"

// Session guards portal routes behind a valid opaque session of the
// expected kind. Missing, expired, and wrong-kind handles all yield the
// same 401; nothing distinguishes the cases to the client.
func Session(sessions *service.SessionService, expectedKind models.SessionKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle := c.GetHeader(SessionHeader)
		if handle == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		session, err := sessions.Get(c.Request.Context(), handle, expectedKind)
		if err != nil {
			if errors.Is(err, service.ErrSessionNotFound) {
				response.Error(c, appErrors.ErrUnauthorized)
			} else {
				response.Error(c, err)
			}
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

// SessionFromContext returns the session resolved by the Session guard.
func SessionFromContext(c *gin.Context) (*models.Session, bool) {
	v, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil, false
	}
	session, ok := v.(*models.Session)
	return session, ok
}
