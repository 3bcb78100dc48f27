package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Soar-Robotics/hashfarm/internal/game"
	"github.com/Soar-Robotics/hashfarm/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{game.ErrValidation, http.StatusBadRequest, "validation"},
	{game.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{game.ErrInsufficientXP, http.StatusPaymentRequired, "insufficient_xp"},
	{game.ErrNotFound, http.StatusNotFound, "not_found"},
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{game.ErrSlotOccupied, http.StatusConflict, "slot_occupied"},
	{game.ErrAlreadyFullDurability, http.StatusConflict, "already_full_durability"},
	{game.ErrAlreadyUnlocked, http.StatusConflict, "already_unlocked"},
	{game.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{game.ErrMaxLevelReached, http.StatusUnprocessableEntity, "max_level_reached"},
	{game.ErrPowerLimitExceeded, http.StatusUnprocessableEntity, "power_limit_exceeded"},
	{game.ErrNoNextLevel, http.StatusUnprocessableEntity, "no_next_level"},
	{game.ErrPersistence, http.StatusServiceUnavailable, "persistence"},
	{game.ErrSessionClosed, http.StatusServiceUnavailable, "session_closed"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "timeout"},
}

// classify maps an error to its HTTP status and stable code.
func classify(err error) (int, string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.String("wallet", c.Param("wallet")), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
