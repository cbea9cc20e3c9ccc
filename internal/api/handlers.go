package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"calendar-mirror/internal/filter"
	"calendar-mirror/internal/models"
	"calendar-mirror/internal/store"
)

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	dbStatus := "connected"
	if err := s.store.Ping(ctx); err != nil {
		dbStatus = "disconnected"
	}

	redisStatus := "connected"
	if s.redis == nil {
		redisStatus = "not_configured"
	} else if err := s.redis.RDB().Ping(ctx).Err(); err != nil {
		redisStatus = "disconnected"
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	response := gin.H{
		"status":   status,
		"database": dbStatus,
		"redis":    redisStatus,
	}

	if status == "unhealthy" {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) listFollows(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	follows, err := s.store.Follows(ctx, s.userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "db_error", "message": "failed to list follows"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"follows": follows})
}

func (s *Server) createFollow(c *gin.Context) {
	var req struct {
		EventID string `json:"event_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_request", "message": err.Error()}})
		return
	}
	if _, err := uuid.Parse(req.EventID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_event_id", "message": "event_id must be a uuid"}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	userID := s.userID(c)

	exists, err := s.store.PublishedEventExists(ctx, req.EventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "db_error", "message": "failed to check event"}})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "event not found or not published"}})
		return
	}

	if err := s.store.CreateManualFollow(ctx, userID, req.EventID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "db_error", "message": "failed to create follow"}})
		return
	}

	// the mirror catches up on the next batch run
	if err := s.store.MarkSyncPending(ctx, userID); err != nil {
		s.log.Warn("mark_pending_failed", "user_id", userID, "error", err)
	}
	s.invalidateStatusCache(ctx, userID)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) removeFollow(c *gin.Context) {
	eventID := c.Param("event_id")
	if _, err := uuid.Parse(eventID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_event_id", "message": "event_id must be a uuid"}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	userID := s.userID(c)

	if err := s.store.RemoveFollow(ctx, userID, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "follow not found"}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "db_error", "message": "failed to remove follow"}})
		return
	}

	if err := s.store.MarkSyncPending(ctx, userID); err != nil {
		s.log.Warn("mark_pending_failed", "user_id", userID, "error", err)
	}
	s.invalidateStatusCache(ctx, userID)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) listSubscriptions(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	subs, err := s.store.Subscriptions(ctx, s.userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "db_error", "message": "failed to list subscriptions"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (s *Server) createSubscription(c *gin.Context) {
	var req struct {
		Filter  models.Filter `json:"filter"`
		Confirm bool          `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_request", "message": err.Error()}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	userID := s.userID(c)

	published, err := s.store.PublishedEvents(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "db_error", "message": "failed to load events"}})
		return
	}

	stats := filter.ComputeStats(published, &req.Filter)
	if stats.TooBroad() && !req.Confirm {
		// a filter this broad is effectively FULL mode; make the user say so
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":    "filter_too_broad",
				"message": "filter matches most published events; switch to FULL mode or confirm",
			},
			"stats": stats,
		})
		return
	}

	sub, err := s.store.CreateFilterSubscription(ctx, userID, &req.Filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "db_error", "message": "failed to create subscription"}})
		return
	}

	matching := filter.MatchingEvents(published, &req.Filter)
	eventIDs := make([]string, 0, len(matching))
	for _, ev := range matching {
		eventIDs = append(eventIDs, ev.ID)
	}

	followed, err := s.store.AutoFollowEvents(ctx, userID, sub.ID, eventIDs)
	if err != nil {
		s.log.Warn("auto_follow_failed", "user_id", userID, "subscription_id", sub.ID, "error", err)
	}

	if err := s.store.MarkSyncPending(ctx, userID); err != nil {
		s.log.Warn("mark_pending_failed", "user_id", userID, "error", err)
	}
	s.invalidateStatusCache(ctx, userID)

	c.JSON(http.StatusOK, gin.H{
		"subscription": sub,
		"followed":     followed,
		"stats":        stats,
	})
}

func (s *Server) removeSubscription(c *gin.Context) {
	var req struct {
		ID int64 `uri:"id" binding:"required"`
	}
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_request", "message": "invalid subscription id"}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	userID := s.userID(c)

	if err := s.store.DeactivateSubscription(ctx, userID, req.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "subscription not found"}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "db_error", "message": "failed to remove subscription"}})
		return
	}

	if err := s.store.MarkSyncPending(ctx, userID); err != nil {
		s.log.Warn("mark_pending_failed", "user_id", userID, "error", err)
	}
	s.invalidateStatusCache(ctx, userID)

	c.JSON(http.StatusOK, gin.H{"success": true})
}
