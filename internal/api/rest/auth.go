package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/auth"
	"github.com/KevinKickass/OpenRigCore/internal/types"
	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// POST /api/v1/auth/login
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeInvalidBody, "Invalid request body", err.Error()))
		return
	}

	if !s.authService.Enabled() {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeAuthDisabled, "Authentication is disabled", nil))
		return
	}

	token, expires, err := s.authService.Login(req.Username, req.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, auth.ErrAccountLocked) {
			c.JSON(http.StatusTooManyRequests, types.NewErrorResponse(types.CodeAccountLocked, "Account locked", err.Error()))
			return
		}
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeInvalidCredentials, "Invalid credentials", nil))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expires).Seconds()),
	})
}

// GET /api/v1/auth/me
func (s *Server) getCurrentUser(c *gin.Context) {
	perms, _ := c.Get(auth.ContextPermissions)
	c.JSON(http.StatusOK, gin.H{
		"username":    c.GetString(auth.ContextUsername),
		"role":        c.GetString(auth.ContextRole),
		"permissions": perms,
	})
}
