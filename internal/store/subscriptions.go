package store

import (
	"context"
	"fmt"
	"time"

	"calendar-mirror/internal/db"
	"calendar-mirror/internal/models"
)

// EnsureFullSubscription is the idempotent find-or-create for the single FULL
// row per user. A deactivated row is revived instead of duplicated.
func (s *Store) EnsureFullSubscription(ctx context.Context, userID string) (int64, error) {
	var id int64
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id FROM subscriptions WHERE user_id = $1 AND kind = 'FULL'`,
		userID,
	).Scan(&id)
	if err == nil {
		_, err = s.db.Pool.Exec(ctx, `UPDATE subscriptions SET active = true WHERE id = $1`, id)
		return id, err
	}

	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, kind, active, created_at)
		 VALUES ($1, 'FULL', true, NOW())
		 ON CONFLICT (user_id) WHERE kind = 'FULL' DO UPDATE SET active = true
		 RETURNING id`,
		userID,
	).Scan(&id)
	return id, err
}

func (s *Store) CreateFilterSubscription(ctx context.Context, userID string, f *models.Filter) (*models.Subscription, error) {
	raw, err := f.MarshalJSONText()
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}

	sub := models.Subscription{
		UserID: userID,
		Kind:   models.SubscriptionCustom,
		Active: true,
		Filter: f,
	}
	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, kind, active, filter_json, created_at)
		 VALUES ($1, 'CUSTOM', true, $2, NOW())
		 RETURNING id, created_at`,
		userID, string(raw),
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeactivateSubscription turns a subscription off and drops the follows it
// auto-created. Manual and converted follows are untouched.
func (s *Store) DeactivateSubscription(ctx context.Context, userID string, subID int64) error {
	cmd, err := s.db.Pool.Exec(ctx,
		`UPDATE subscriptions SET active = false WHERE id = $1 AND user_id = $2`,
		subID, userID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = s.db.Pool.Exec(ctx,
		`DELETE FROM event_follows
		 WHERE user_id = $1 AND subscription_id = $2 AND source = 'FILTER'`,
		userID, subID,
	)
	return err
}

func (s *Store) Subscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, kind, active, filter_json, created_at
		 FROM subscriptions
		 WHERE user_id = $1
		 ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]models.Subscription, 0, 8)
	for rows.Next() {
		sub := models.Subscription{UserID: userID}
		var filterJSON []byte
		if err := rows.Scan(&sub.ID, &sub.Kind, &sub.Active, &filterJSON, &sub.CreatedAt); err != nil {
			continue
		}
		sub.Filter = models.ParseFilter(filterJSON)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) Follows(ctx context.Context, userID string) ([]models.EventFollow, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, event_id, subscription_id, source, created_at
		 FROM event_follows
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	follows := make([]models.EventFollow, 0, 32)
	for rows.Next() {
		f := models.EventFollow{UserID: userID}
		if err := rows.Scan(&f.ID, &f.EventID, &f.SubscriptionID, &f.Source, &f.CreatedAt); err != nil {
			continue
		}
		follows = append(follows, f)
	}
	return follows, rows.Err()
}

// CreateManualFollow is idempotent on (user, event).
func (s *Store) CreateManualFollow(ctx context.Context, userID, eventID string) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO event_follows (user_id, event_id, source, created_at)
		 VALUES ($1, $2, 'MANUAL', NOW())
		 ON CONFLICT (user_id, event_id) DO NOTHING`,
		userID, eventID,
	)
	return err
}

// RemoveFollow deletes the follow and, when it came from a filter, records an
// exclusion so the filter cannot resurrect the event on its next match pass.
func (s *Store) RemoveFollow(ctx context.Context, userID, eventID string) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var source models.FollowSource
	var subID *int64
	err = tx.QueryRow(ctx,
		`DELETE FROM event_follows
		 WHERE user_id = $1 AND event_id = $2
		 RETURNING source, subscription_id`,
		userID, eventID,
	).Scan(&source, &subID)
	if err != nil {
		return ErrNotFound
	}

	if source == models.FollowFilter && subID != nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO filter_exclusions (user_id, subscription_id, event_id, created_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT DO NOTHING`,
			userID, *subID, eventID,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// AutoFollowEvents bulk-inserts filter-sourced follows for the given events,
// skipping anything already followed or explicitly excluded. Uses COPY since
// a broad filter can match thousands of events at once.
func (s *Store) AutoFollowEvents(ctx context.Context, userID string, subID int64, eventIDs []string) (int, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}

	rows, err := s.db.Pool.Query(ctx,
		`SELECT candidate FROM unnest($3::text[]) AS candidate
		 WHERE candidate NOT IN (SELECT event_id FROM event_follows WHERE user_id = $1)
		   AND candidate NOT IN (SELECT event_id FROM filter_exclusions WHERE user_id = $1 AND subscription_id = $2)`,
		userID, subID, eventIDs,
	)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	values := make([][]interface{}, 0, len(eventIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		values = append(values, []interface{}{userID, id, subID, string(models.FollowFilter), now})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	return s.db.BatchInsert(ctx, "event_follows",
		[]string{"user_id", "event_id", "subscription_id", "source", "created_at"},
		values, db.DefaultBatchConfig())
}
