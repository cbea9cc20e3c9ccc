// Package store holds every query the sync engine runs against Postgres:
// per-user sync state, subscriptions and follows, the mirror ledger, and the
// read-only view of the event store.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"calendar-mirror/internal/db"
	"calendar-mirror/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db     *db.DB
	log    *slog.Logger
	encKey []byte
}

// New wires the store. encKey encrypts refresh tokens at rest; it may be nil
// in tests that never touch linked accounts.
func New(log *slog.Logger, dbConn *db.DB, encKey []byte) *Store {
	return &Store{db: dbConn, log: log, encKey: encKey}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Pool.Ping(ctx)
}

// UserSyncState reads the sync bookkeeping columns for one user.
func (s *Store) UserSyncState(ctx context.Context, userID string) (*models.UserSyncState, error) {
	st := models.UserSyncState{UserID: userID}
	err := s.db.Pool.QueryRow(ctx,
		`SELECT gcal_sync_enabled, gcal_sync_status, gcal_sync_mode,
		        gcal_calendar_id, gcal_last_synced_at, gcal_last_sync_error, gcal_last_sync_attempt_at
		 FROM users
		 WHERE id = $1`,
		userID,
	).Scan(&st.SyncEnabled, &st.SyncStatus, &st.SyncMode,
		&st.CalendarID, &st.LastSyncedAt, &st.LastSyncError, &st.LastSyncAttemptAt)
	if err != nil {
		// only a missing row means not-found; everything else is transient
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	return &st, nil
}

// ClaimCalendarID performs the conditional calendar-id claim: the update only
// wins if the column still holds what the caller last observed (nil or a
// verified-missing value). Losing the claim is not an error.
func (s *Store) ClaimCalendarID(ctx context.Context, userID string, previous *string, candidate string) (bool, error) {
	if previous == nil {
		cmd, err := s.db.Pool.Exec(ctx,
			`UPDATE users SET gcal_calendar_id = $2
			 WHERE id = $1 AND gcal_calendar_id IS NULL`,
			userID, candidate,
		)
		if err != nil {
			return false, err
		}
		return cmd.RowsAffected() == 1, nil
	}

	cmd, err := s.db.Pool.Exec(ctx,
		`UPDATE users SET gcal_calendar_id = $2
		 WHERE id = $1 AND (gcal_calendar_id IS NULL OR gcal_calendar_id = $3)`,
		userID, candidate, *previous,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// EnableSync flips the user into the enabled+pending state after first
// provisioning. Mode defaults to FULL only when sync was previously disabled,
// so re-provisioning keeps a CUSTOM choice.
func (s *Store) EnableSync(ctx context.Context, userID string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE users
		 SET gcal_sync_mode = CASE WHEN gcal_sync_enabled THEN gcal_sync_mode ELSE 'FULL' END,
		     gcal_sync_enabled = true,
		     gcal_sync_status = 'pending'
		 WHERE id = $1`,
		userID,
	)
	return err
}

func (s *Store) SetSyncMode(ctx context.Context, userID string, mode models.SyncMode) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE users SET gcal_sync_mode = $2, gcal_sync_status = 'pending' WHERE id = $1`,
		userID, string(mode),
	)
	return err
}

// MarkSyncPending flags the user for pickup by the next batch run. Follow and
// subscription writes call this; it is a no-op for users without sync.
func (s *Store) MarkSyncPending(ctx context.Context, userID string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE users SET gcal_sync_status = 'pending' WHERE id = $1 AND gcal_sync_enabled`,
		userID,
	)
	return err
}

// WriteSyncSuccess records a completed pass. Per-event errors ride along in
// errJoin without blocking the transition to synced.
func (s *Store) WriteSyncSuccess(ctx context.Context, userID string, at time.Time, errJoin *string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE users
		 SET gcal_sync_status = 'synced',
		     gcal_last_synced_at = $2,
		     gcal_last_sync_attempt_at = $2,
		     gcal_last_sync_error = $3
		 WHERE id = $1`,
		userID, at, errJoin,
	)
	return err
}

// WriteSyncFailure records a pass that did not complete. status stays pending
// so the next run retries the whole user.
func (s *Store) WriteSyncFailure(ctx context.Context, userID string, at time.Time, errMsg string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE users
		 SET gcal_sync_status = 'pending',
		     gcal_last_sync_attempt_at = $2,
		     gcal_last_sync_error = $3
		 WHERE id = $1`,
		userID, at, errMsg,
	)
	return err
}

// DisableSync parks the user on a fatal error (no credentials at all) instead
// of retrying forever.
func (s *Store) DisableSync(ctx context.Context, userID string, at time.Time, reason string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE users
		 SET gcal_sync_enabled = false,
		     gcal_sync_status = 'error',
		     gcal_last_sync_attempt_at = $2,
		     gcal_last_sync_error = $3
		 WHERE id = $1`,
		userID, at, reason,
	)
	return err
}

// ClearSyncState wipes the calendar linkage on disconnect; the linked-account
// row stays, owned by the auth subsystem.
func (s *Store) ClearSyncState(ctx context.Context, userID string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE users
		 SET gcal_sync_enabled = false,
		     gcal_sync_status = 'pending',
		     gcal_sync_mode = 'FULL',
		     gcal_calendar_id = NULL,
		     gcal_last_synced_at = NULL,
		     gcal_last_sync_error = NULL,
		     gcal_last_sync_attempt_at = NULL
		 WHERE id = $1`,
		userID,
	)
	if err != nil {
		return err
	}
	_, err = s.db.Pool.Exec(ctx, `DELETE FROM user_event_sync WHERE user_id = $1`, userID)
	return err
}

// PendingUsers selects the bounded page of users the batch driver processes.
// Oldest attempts first so a repeatedly-failing user cannot starve the rest.
func (s *Store) PendingUsers(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id FROM users
		 WHERE gcal_sync_enabled AND gcal_sync_status = 'pending'
		 ORDER BY gcal_last_sync_attempt_at ASC NULLS FIRST, id ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
