package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenRigCore/internal/auth"
	"github.com/KevinKickass/OpenRigCore/internal/display"
	"github.com/KevinKickass/OpenRigCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/machine/status
func (s *Server) getMachineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Snapshot())
}

// GET /api/v1/machine/controls
func (s *Server) listControls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"controls": s.lm.Controls()})
}

// POST /api/v1/machine/command
func (s *Server) executeMachineCommand(c *gin.Context) {
	var req struct {
		Control string `json:"control" binding:"required"`
		Action  string `json:"action"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeInvalidBody, "Invalid request body", err.Error()))
		return
	}

	action, err := display.ParseAction(req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeInvalidAction, "Invalid action", err.Error()))
		return
	}

	if err := s.lm.Command(req.Control, action); err != nil {
		status := http.StatusBadRequest
		code := types.CodeCommandRejected
		if errors.Is(err, display.ErrQueueFull) {
			status = http.StatusServiceUnavailable
			code = types.CodeCommandQueueFull
		}
		s.logger.Warn("Machine command rejected",
			zap.String("control", req.Control),
			zap.Error(err))
		c.JSON(status, types.NewErrorResponse(code, "Command rejected", err.Error()))
		return
	}

	s.logger.Info("Operator command via API",
		zap.String("username", c.GetString(auth.ContextUsername)),
		zap.String("control", req.Control),
		zap.String("action", string(action)))

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Command accepted",
		"control": req.Control,
		"action":  action,
	})
}
