package store

import (
	"context"
	"time"

	"calendar-mirror/internal/models"
)

// Ledger returns the user's mirror ledger: everything we believe currently
// exists in their external calendar.
func (s *Store) Ledger(ctx context.Context, userID string) ([]models.UserEventSync, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT event_id, external_event_id, synced_at
		 FROM user_event_sync
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.UserEventSync, 0, 64)
	for rows.Next() {
		e := models.UserEventSync{UserID: userID}
		if err := rows.Scan(&e.EventID, &e.ExternalEventID, &e.SyncedAt); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertLedger records a confirmed external write. Only the orchestrator
// calls this, and only after the mirror operation succeeded.
func (s *Store) UpsertLedger(ctx context.Context, userID, eventID, externalEventID string, at time.Time) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO user_event_sync (user_id, event_id, external_event_id, synced_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, event_id)
		 DO UPDATE SET external_event_id = EXCLUDED.external_event_id, synced_at = EXCLUDED.synced_at`,
		userID, eventID, externalEventID, at,
	)
	return err
}

func (s *Store) DeleteLedger(ctx context.Context, userID, eventID string) error {
	_, err := s.db.Pool.Exec(ctx,
		`DELETE FROM user_event_sync WHERE user_id = $1 AND event_id = $2`,
		userID, eventID,
	)
	return err
}
