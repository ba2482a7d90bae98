package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"engagement-service/internal/model"
	"engagement-service/internal/repository"
	"engagement-service/internal/settings"
	"engagement-service/internal/xp"
	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	maxSettingsBody     = 1 << 20
)

type viewerResponse struct {
	Profile     *model.ViewerProfile    `json:"profile"`
	NextLevelXP int64                   `json:"next_level_xp"`
	Events      []model.XPEvent         `json:"recent_events"`
	Spins       []model.SpinTransaction `json:"recent_spins"`
}

type optOutRequest struct {
	OptedOut *bool  `json:"opted_out" binding:"required"`
	UserID   string `json:"user_id"`
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Board.Snapshot())
}

func (s *Server) handleReset(c *gin.Context) {
	s.deps.Board.ResetSession()
	c.JSON(http.StatusOK, s.deps.Board.Snapshot())
}

func (s *Server) handleViewer(c *gin.Context) {
	username := c.Param("username")
	ctx := c.Request.Context()

	profile, err := s.deps.Viewers.Profile(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "viewer not found"})
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("username", username).Error("failed to load viewer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load viewer"})
		return
	}

	limit := historyLimit(c.Query("limit"))
	events, err := s.deps.History.ListByUsername(ctx, username, limit)
	if err != nil {
		s.log.WithError(err).WithField("username", username).Error("failed to load xp history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load viewer"})
		return
	}
	spins, err := s.deps.History.ListSpins(ctx, username, limit)
	if err != nil {
		s.log.WithError(err).WithField("username", username).Error("failed to load spin history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load viewer"})
		return
	}

	c.JSON(http.StatusOK, viewerResponse{
		Profile:     profile,
		NextLevelXP: xp.XPForLevel(s.deps.Settings.Current().LevelCurve, profile.Level+1),
		Events:      events,
		Spins:       spins,
	})
}

func (s *Server) handleOptOut(c *gin.Context) {
	var req optOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := c.Param("username")
	if err := s.deps.Viewers.SetOptOut(c.Request.Context(), username, req.UserID, *req.OptedOut); err != nil {
		s.log.WithError(err).WithField("username", username).Error("failed to change opt-out")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change opt-out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username, "opted_out": *req.OptedOut})
}

func (s *Server) handleSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Settings.Current())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	name := c.Param("name")

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSettingsBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if err := s.deps.Settings.Update(c.Request.Context(), name, raw); err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.log.WithError(err).WithField("name", name).Error("failed to update settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update settings"})
		return
	}

	c.JSON(http.StatusOK, s.deps.Settings.Current())
}

func historyLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
