package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/game"
	"github.com/Soar-Robotics/hashfarm/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	defaultPeriod     = "1h"
	maxPeriod         = 30 * 24 * time.Hour
	defaultBoardLimit = 50
	maxBoardLimit     = 500
)

func (s *Server) session(c *gin.Context) (*game.Session, bool) {
	sess, err := s.mgr.Session(c.Request.Context(), c.Param("wallet"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) getPlayer(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, playerResponse(sess.View()))
}

func (s *Server) claim(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	amount, err := sess.Claim(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": amount, "player": playerResponse(sess.View())})
}

func (s *Server) buyDevice(c *gin.Context) {
	var req BuyDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%v: %w", err, game.ErrValidation))
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	d, err := sess.BuyDevice(c.Request.Context(), req.TemplateID, *req.Slot)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"device": d, "player": playerResponse(sess.View())})
}

func (s *Server) upgradeDevice(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	d, err := sess.UpgradeDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": d, "player": playerResponse(sess.View())})
}

func (s *Server) repairDevice(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	d, err := sess.RepairDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": d, "player": playerResponse(sess.View())})
}

func (s *Server) recycleDevice(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	refund, err := sess.RecycleDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund": refund, "player": playerResponse(sess.View())})
}

func (s *Server) removeDevice(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.RemoveDevice(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"player": playerResponse(sess.View())})
}

func (s *Server) upgradeRoom(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	room, err := sess.UpgradeRoom(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "player": playerResponse(sess.View())})
}

func (s *Server) claimStreak(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	reward, err := sess.ClaimStreak(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reward": reward, "player": playerResponse(sess.View())})
}

func (s *Server) unlockMetaUpgrade(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.UnlockMetaUpgrade(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"player": playerResponse(sess.View())})
}

// getEarnings reports lifetime earnings and the amount claimed over the last
// period (a Go duration, default 1h). It reads the store directly and does not
// open a session.
func (s *Server) getEarnings(c *gin.Context) {
	wallet := c.Param("wallet")
	period := c.Query("period")

	player, err := s.ledger.GetPlayer(c.Request.Context(), wallet)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Player not found", "code": "not_found"})
			return
		}
		s.fail(c, err)
		return
	}

	if period == "" {
		period = defaultPeriod
	}
	duration, err := time.ParseDuration(period)
	if err != nil || duration <= 0 || duration > maxPeriod {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period format", "code": "validation"})
		return
	}

	endTime := s.now()
	startTime := endTime.Add(-duration)
	earningsOverPeriod, err := s.ledger.SumClaims(c.Request.Context(), wallet, startTime, endTime)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, EarningsResponse{
		Wallet:             player.Wallet,
		TotalEarned:        player.TotalEarned,
		Unclaimed:          player.Unclaimed,
		EarningsOverPeriod: earningsOverPeriod,
		Period:             period,
	})
}

func (s *Server) getLeaderboard(c *gin.Context) {
	limit := defaultBoardLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxBoardLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit", "code": "validation"})
			return
		}
		limit = n
	}
	entries, err := s.ledger.ListLeaderboard(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TotalEarned > entries[j].TotalEarned })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) getPowerPrice(c *gin.Context) {
	q, err := s.prices.Quote(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) getCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, CatalogResponse{
		Templates:    s.catalog.Templates(),
		Rooms:        s.catalog.Rooms(),
		MetaUpgrades: game.MetaUpgrades,
		Achievements: game.Achievements,
	})
}
