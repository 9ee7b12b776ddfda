package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/washnet/washnet-api/internal/service"
	"github.com/washnet/washnet-api/pkg/response"
)

// OpsHandler exposes operational actions for platform administrators.
type OpsHandler struct {
	sweeper *service.Sweeper
}

// NewOpsHandler creates a new handler.
func NewOpsHandler(sweeper *service.Sweeper) *OpsHandler {
	return &OpsHandler{sweeper: sweeper}
}

// Sweep godoc
// @Summary Run cleanup sweeps now
// @Description Trigger the session and token sweeps without waiting for the next tick
// @Tags Ops
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/sweep [post]
func (h *OpsHandler) Sweep(c *gin.Context) {
	h.sweeper.RunOnce(c.Request.Context())
	response.JSON(c, http.StatusOK, gin.H{"swept": true})
}
