package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"calendar-mirror/internal/api"
	"calendar-mirror/internal/config"
	"calendar-mirror/internal/db"
	"calendar-mirror/internal/gcal"
	"calendar-mirror/internal/logging"
	"calendar-mirror/internal/redis"
	"calendar-mirror/internal/storage"
	"calendar-mirror/internal/store"
	"calendar-mirror/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_api", "service", "calendar-mirror-api", "http_addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL (with retry)
	var dbConn *db.DB
	for i := 0; i < 5; i++ {
		dbConn, err = db.New(ctx, cfg.DBDSN)
		if err == nil {
			break
		}
		logger.Warn("db_connect_retry", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Connect to Redis (optional: status cache and request rate limiting)
	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Warn("redis_connect_failed", "error", err)
		redisClient = nil
	}

	st := store.New(logger, dbConn, cfg.EncryptionKey)

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarScope},
	}
	creds := sync.NewCredentialManager(logger, st, oauthCfg, time.Duration(cfg.TokenRefreshWindowS)*time.Second)

	factory := gcal.NewFactory(logger, cfg.GCalQPS)
	orch := sync.NewOrchestrator(logger, st, creds, factory)

	// report archive: S3/R2 when configured, local simulator otherwise
	var reports storage.ReportArchiver
	if cfg.ReportsBucket != "" {
		s3Client, err := storage.NewS3Client(storage.S3Config{
			Endpoint:        cfg.ReportsEndpoint,
			AccessKeyID:     cfg.ReportsAccessKey,
			SecretAccessKey: cfg.ReportsSecretKey,
			Bucket:          cfg.ReportsBucket,
			Region:          cfg.ReportsRegion,
		})
		if err != nil {
			logger.Warn("s3_init_failed", "error", err)
		} else {
			reports = s3Client
			logger.Info("using_s3_reports", "bucket", cfg.ReportsBucket)
		}
	}
	if reports == nil {
		reports = storage.NewSimulator(logger)
		logger.Info("using_report_simulator")
	}

	batch := sync.NewBatchDriver(logger, st, orch, cfg.SyncBatchSize, reports)

	srv := api.NewServer(logger, st, redisClient, orch, batch, cfg)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("api_started", "addr", cfg.HTTPAddr)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis_close_error", "error", err)
		} else {
			logger.Info("redis_closed")
		}
	}

	dbConn.Close()
	logger.Info("db_closed")

	logger.Info("api_stopped")
}
