package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenRigCore/internal/auth"
	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type counterView struct {
	counter.Def
	Value int64 `json:"value"`
}

// GET /api/v1/counters
func (s *Server) listCounters(c *gin.Context) {
	bank := s.lm.Counters()
	values := bank.Values()
	defs := bank.Defs()

	out := make([]counterView, 0, len(defs))
	for _, d := range defs {
		out = append(out, counterView{Def: d, Value: values[d.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"counters": out})
}

// PUT /api/v1/counters/:id
func (s *Server) setCounter(c *gin.Context) {
	var req struct {
		Value *int64 `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeInvalidBody, "Invalid request body", err.Error()))
		return
	}

	id := counter.ID(c.Param("id"))
	value, err := s.lm.Counters().Set(id, *req.Value)
	if err != nil {
		if errors.Is(err, counter.ErrUnknownCounter) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeUnknownCounter, "Unknown counter", string(id)))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeCounterStore, "Failed to set counter", err.Error()))
		return
	}

	s.logger.Info("Counter set via API",
		zap.String("username", c.GetString(auth.ContextUsername)),
		zap.String("counter", string(id)),
		zap.Int64("value", value))

	c.JSON(http.StatusOK, gin.H{"id": id, "value": value})
}
