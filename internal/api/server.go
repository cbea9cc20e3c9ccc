package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"calendar-mirror/internal/config"
	"calendar-mirror/internal/redis"
	"calendar-mirror/internal/security"
	"calendar-mirror/internal/store"
	"calendar-mirror/internal/sync"
)

type Server struct {
	log    *slog.Logger
	store  *store.Store
	redis  *redis.Client
	cfg    config.Config
	router *gin.Engine
	orch   *sync.Orchestrator
	batch  *sync.BatchDriver

	// manual sync is expensive; throttle it per user in-memory
	syncLimiter *security.LimiterStore
}

func NewServer(log *slog.Logger, st *store.Store, redisClient *redis.Client, orch *sync.Orchestrator, batch *sync.BatchDriver, cfg config.Config) *Server {
	s := &Server{
		log:         log,
		store:       st,
		redis:       redisClient,
		cfg:         cfg,
		router:      gin.New(),
		orch:        orch,
		batch:       batch,
		syncLimiter: security.NewLimiterStore(rate.Every(30*time.Second), 2, 10*time.Minute),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.rateLimitMiddleware())

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		user := v1.Group("")
		user.Use(s.requireUserMiddleware())
		{
			user.GET("/follows", s.listFollows)
			user.POST("/follows", s.createFollow)
			user.DELETE("/follows/:event_id", s.removeFollow)

			user.GET("/subscriptions", s.listSubscriptions)
			user.POST("/subscriptions", s.createSubscription)
			user.DELETE("/subscriptions/:id", s.removeSubscription)

			cal := user.Group("/calendar")
			{
				cal.GET("/status", s.calendarStatus)
				cal.POST("/ensure", s.calendarEnsure)
				cal.POST("/disconnect", s.calendarDisconnect)
				cal.POST("/sync", s.calendarSync)
				cal.PATCH("/mode", s.calendarMode)
			}
		}
	}

	// cron trigger and legacy aliases
	r.GET("/sync/cron", s.cronAuthMiddleware(), s.runCron)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	legacy := r.Group("/calendar")
	legacy.Use(s.requireUserMiddleware())
	{
		legacy.GET("/status", s.calendarStatus)
		legacy.POST("/ensure", s.calendarEnsure)
		legacy.POST("/disconnect", s.calendarDisconnect)
		legacy.POST("/sync", s.calendarSync)
		legacy.PATCH("/mode", s.calendarMode)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}

// syncCtx gives user-initiated sync passes more room than ordinary requests.
func (s *Server) syncCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 2*time.Minute)
}
