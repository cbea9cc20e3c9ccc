package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"calendar-mirror/internal/models"
)

const eventColumns = `id, status, title, COALESCE(description, ''), COALESCE(url, ''),
	COALESCE(city, ''), COALESCE(region, ''), COALESCE(country, ''), COALESCE(source, ''),
	tags, starts_at, ends_at, timezone, updated_at`

// PublishedEvents returns every published event — the FULL-mode target set.
func (s *Store) PublishedEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE status = 'PUBLISHED'
		 ORDER BY starts_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

// FollowedPublishedEvents returns the published events reachable through the
// user's follow rows — the CUSTOM-mode target set.
func (s *Store) FollowedPublishedEvents(ctx context.Context, userID string) ([]models.Event, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events e
		 JOIN event_follows f ON f.event_id = e.id
		 WHERE f.user_id = $1 AND e.status = 'PUBLISHED'
		 ORDER BY e.starts_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

// PublishedEventExists guards follow creation against dangling event IDs.
func (s *Store) PublishedEventExists(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.db.Pool.QueryRow(ctx,
		`SELECT 1 FROM events WHERE id = $1 AND status = 'PUBLISHED'`,
		eventID,
	).Scan(&one)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) scanEvents(rows pgx.Rows) ([]models.Event, error) {
	events := make([]models.Event, 0, 64)
	for rows.Next() {
		var ev models.Event
		var tagsJSON []byte
		if err := rows.Scan(&ev.ID, &ev.Status, &ev.Title, &ev.Description, &ev.URL,
			&ev.City, &ev.Region, &ev.Country, &ev.Source,
			&tagsJSON, &ev.StartsAt, &ev.EndsAt, &ev.Timezone, &ev.UpdatedAt); err != nil {
			s.log.Warn("failed_to_scan_event", "error", err)
			continue
		}
		// tags arrive as serialized JSON text; garbage means no tags
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &ev.Tags); err != nil {
				ev.Tags = nil
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
