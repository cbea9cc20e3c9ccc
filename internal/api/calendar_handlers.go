package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"calendar-mirror/internal/models"
	"calendar-mirror/internal/store"
	"calendar-mirror/internal/sync"
)

func statusCacheKey(userID string) string {
	return fmt.Sprintf("calstatus:%s", userID)
}

func (s *Server) invalidateStatusCache(ctx context.Context, userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, statusCacheKey(userID)); err != nil {
		s.log.Warn("status_cache_invalidate_failed", "user_id", userID, "error", err)
	}
}

func (s *Server) calendarStatus(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	userID := s.userID(c)

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, statusCacheKey(userID)); err == nil && cached != "" {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		}
	}

	st, err := s.store.UserSyncState(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "user not found"}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "db_error", "message": "failed to load sync state"}})
		return
	}

	connected := true
	if _, err := s.store.LinkedAccount(ctx, userID, sync.ProviderGoogle); err != nil {
		connected = false
	}

	response := gin.H{
		"connected": connected,
		"sync": gin.H{
			"enabled":              st.SyncEnabled,
			"pending":              st.SyncStatus == models.SyncStatusPending,
			"status":               st.SyncStatus,
			"mode":                 st.SyncMode,
			"calendar_id":          st.CalendarID,
			"last_synced_at":       st.LastSyncedAt,
			"last_sync_error":      st.LastSyncError,
			"last_sync_attempt_at": st.LastSyncAttemptAt,
		},
	}

	if s.redis != nil {
		if body, err := json.Marshal(response); err == nil {
			_ = s.redis.Set(ctx, statusCacheKey(userID), string(body), 30*time.Second)
		}
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) calendarEnsure(c *gin.Context) {
	ctx, cancel := s.syncCtx(c)
	defer cancel()
	userID := s.userID(c)

	calendarID, action, err := s.orch.EnsureCalendar(ctx, userID)
	if err != nil {
		if errors.Is(err, sync.ErrAuthMissing) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "auth_missing", "message": "no linked google account"}})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "provisioning_failed", "message": err.Error()}})
		return
	}

	s.invalidateStatusCache(ctx, userID)

	c.JSON(http.StatusOK, gin.H{
		"calendar_id": calendarID,
		"action":      string(action),
	})
}

func (s *Server) calendarDisconnect(c *gin.Context) {
	ctx, cancel := s.syncCtx(c)
	defer cancel()
	userID := s.userID(c)

	if err := s.orch.Disconnect(ctx, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "disconnect_failed", "message": err.Error()}})
		return
	}

	s.invalidateStatusCache(ctx, userID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) calendarSync(c *gin.Context) {
	userID := s.userID(c)

	if !s.syncLimiter.Allow(userID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": gin.H{"code": "rate_limited", "message": "sync already requested recently"}})
		return
	}

	ctx, cancel := s.syncCtx(c)
	defer cancel()

	// manual runs are always full passes; the user wants convergence now
	res, err := s.orch.Sync(ctx, userID, false)
	if err != nil {
		if errors.Is(err, sync.ErrAuthMissing) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "auth_missing", "message": "no linked google account"}})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "sync_failed", "message": err.Error()}})
		return
	}

	s.invalidateStatusCache(ctx, userID)

	c.JSON(http.StatusOK, gin.H{
		"created": res.Created,
		"deleted": res.Deleted,
		"errors":  res.Errors,
	})
}

func (s *Server) calendarMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_request", "message": err.Error()}})
		return
	}
	if !models.ValidSyncMode(req.Mode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_mode", "message": "mode must be FULL or CUSTOM"}})
		return
	}

	ctx, cancel := s.syncCtx(c)
	defer cancel()
	userID := s.userID(c)

	res, err := s.orch.SwitchMode(ctx, userID, models.SyncMode(req.Mode))
	if err != nil {
		if errors.Is(err, sync.ErrAuthMissing) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "auth_missing", "message": "no linked google account"}})
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "user not found"}})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "mode_switch_failed", "message": err.Error()}})
		return
	}

	s.invalidateStatusCache(ctx, userID)

	c.JSON(http.StatusOK, gin.H{
		"mode":    req.Mode,
		"created": res.Created,
		"deleted": res.Deleted,
		"errors":  res.Errors,
	})
}

func (s *Server) runCron(c *gin.Context) {
	// the trigger's own timeout bounds the run; batch size caps the work
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	res, err := s.batch.Run(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "batch_failed", "message": err.Error()}})
		return
	}

	// partial per-user failures still return 200; they retry next trigger
	c.JSON(http.StatusOK, gin.H{
		"run_id":    res.RunID,
		"processed": res.Processed,
		"synced":    res.Synced,
		"errors":    res.Errors,
	})
}
