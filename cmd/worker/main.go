// The worker is a one-shot batch runner: it drains one page of pending users
// and exits. Schedulers (cron, k8s CronJob) provide the cadence.
package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"calendar-mirror/internal/config"
	"calendar-mirror/internal/db"
	"calendar-mirror/internal/gcal"
	"calendar-mirror/internal/logging"
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
	logger.Info("starting_worker", "service", "calendar-mirror-worker", "batch_size", cfg.SyncBatchSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
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

	res, err := batch.Run(ctx)
	if err != nil {
		logger.Error("batch_run_failed", "error", err)
		os.Exit(1)
	}

	logger.Info("worker_finished",
		"run_id", res.RunID,
		"processed", res.Processed,
		"synced", res.Synced,
		"errors", len(res.Errors),
	)

	if res.Processed > 0 && res.Synced == 0 {
		// every user failed; surface it to the scheduler
		os.Exit(1)
	}
}
