package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/washnet/washnet-api/internal/middleware"
	"github.com/washnet/washnet-api/internal/service"
	appErrors "github.com/washnet/washnet-api/pkg/errors"
	"github.com/washnet/washnet-api/pkg/response"
)

// SessionHandler exposes the portal session surface. Session creation
// happens in-process inside the portal login flows; over HTTP the portals
// only introspect, extend, and destroy their own session.
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

type extendSessionRequest struct {
	TTL string `json:"ttl,omitempty"`
}

// Show godoc
// @Summary Current portal session
// @Description Return the session context behind the presented handle
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /portal/session [get]
func (h *SessionHandler) Show(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"kind":       session.Kind,
		"payload":    session.Payload,
		"expires_at": session.ExpiresAt,
	})
}

// Extend godoc
// @Summary Extend portal session
// @Description Push the session expiry forward (keep me logged in)
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body extendSessionRequest false "Optional TTL override"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /portal/session/extend [post]
func (h *SessionHandler) Extend(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req extendSessionRequest
	_ = c.ShouldBindJSON(&req)

	var ttl time.Duration
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid ttl"))
			return
		}
		ttl = parsed
	}

	extended, err := h.service.Extend(c.Request.Context(), session.Handle, ttl)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !extended {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"extended": true})
}

// Destroy godoc
// @Summary Portal logout
// @Description Delete the presented session
// @Tags Sessions
// @Success 204
// @Router /portal/session [delete]
func (h *SessionHandler) Destroy(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), session.Handle); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
