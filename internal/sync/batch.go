package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"calendar-mirror/internal/storage"
)

// BatchError is one user's failure inside an otherwise-successful run.
type BatchError struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

type BatchResult struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Processed  int          `json:"processed"`
	Synced     int          `json:"synced"`
	Errors     []BatchError `json:"errors"`
}

// BatchDriver runs one bounded page of pending users to completion and exits.
// There is no persistent loop: the cron endpoint or the worker binary trigger
// it. Failed users stay pending and are retried on the next trigger.
type BatchDriver struct {
	log       *slog.Logger
	store     Store
	orch      *Orchestrator
	batchSize int
	reports   storage.ReportArchiver
}

func NewBatchDriver(log *slog.Logger, st Store, orch *Orchestrator, batchSize int, reports storage.ReportArchiver) *BatchDriver {
	return &BatchDriver{
		log:       log,
		store:     st,
		orch:      orch,
		batchSize: batchSize,
		reports:   reports,
	}
}

// Run processes up to batchSize pending users sequentially. Every failure is
// contained at the per-user boundary; only an inability to list pending users
// fails the run itself.
func (b *BatchDriver) Run(ctx context.Context) (BatchResult, error) {
	res := BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Errors:    make([]BatchError, 0),
	}

	users, err := b.store.PendingUsers(ctx, b.batchSize)
	if err != nil {
		return res, fmt.Errorf("failed to list pending users: %w", err)
	}

	b.log.Info("batch_run_started", "run_id", res.RunID, "pending_users", len(users))

	for _, userID := range users {
		res.Processed++

		if _, err := b.runUser(ctx, userID); err != nil {
			b.log.Warn("user_sync_failed", "run_id", res.RunID, "user_id", userID, "error", err)
			res.Errors = append(res.Errors, BatchError{UserID: userID, Error: err.Error()})
			continue
		}
		res.Synced++
	}

	res.FinishedAt = time.Now().UTC()
	b.log.Info("batch_run_complete",
		"run_id", res.RunID,
		"processed", res.Processed,
		"synced", res.Synced,
		"errors", len(res.Errors),
		"elapsed_ms", res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
	)

	b.archiveReport(ctx, res)
	return res, nil
}

// runUser is the per-user isolation boundary; a panic in one user's pass must
// not take down the rest of the batch.
func (b *BatchDriver) runUser(ctx context.Context, userID string) (created int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during sync: %v", r)
		}
	}()

	res, err := b.orch.Sync(ctx, userID, true)
	return res.Created, err
}

// archiveReport is best-effort: a failed upload never fails the run.
func (b *BatchDriver) archiveReport(ctx context.Context, res BatchResult) {
	if b.reports == nil {
		return
	}
	body, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := b.reports.PutSyncReport(ctx, res.RunID, body); err != nil {
		b.log.Warn("report_archive_failed", "run_id", res.RunID, "error", err)
	}
}
