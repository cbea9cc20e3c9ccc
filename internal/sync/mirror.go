package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"calendar-mirror/internal/gcal"
	"calendar-mirror/internal/models"
)

const icalUIDDomain = "mirror.conftrack.app"

// GenerateEventICalUID derives the iCalendar UID for an internal event. It is
// a function of the event ID alone, never of content, so every upsert of the
// same event addresses the same external resource.
func GenerateEventICalUID(eventID string) string {
	return "evt-" + eventID + "@" + icalUIDDomain
}

// GenerateExternalEventID derives the Google event ID. Hex keeps it inside
// the API's base32hex alphabet.
func GenerateExternalEventID(eventID string) string {
	sum := sha256.Sum256([]byte("evt:" + eventID))
	return hex.EncodeToString(sum[:])
}

// Convert maps an internal event to its external representation. A nil
// timezone means all-day: the entry spans inclusive calendar days (the
// external end date is exclusive, hence the +1 day).
func Convert(ev models.Event) *calendar.Event {
	gev := &calendar.Event{
		Id:          GenerateExternalEventID(ev.ID),
		ICalUID:     GenerateEventICalUID(ev.ID),
		Summary:     ev.Title,
		Description: buildDescription(ev),
		Location:    buildLocation(ev),
	}

	if ev.AllDay() {
		gev.Start = &calendar.EventDateTime{Date: ev.StartsAt.Format("2006-01-02")}
		gev.End = &calendar.EventDateTime{Date: ev.EndsAt.AddDate(0, 0, 1).Format("2006-01-02")}
	} else {
		tz := *ev.Timezone
		gev.Start = &calendar.EventDateTime{DateTime: ev.StartsAt.Format(time.RFC3339), TimeZone: tz}
		gev.End = &calendar.EventDateTime{DateTime: ev.EndsAt.Format(time.RFC3339), TimeZone: tz}
	}

	return gev
}

func buildDescription(ev models.Event) string {
	parts := make([]string, 0, 2)
	if ev.Description != "" {
		parts = append(parts, ev.Description)
	}
	if ev.URL != "" {
		parts = append(parts, ev.URL)
	}
	return strings.Join(parts, "\n\n")
}

func buildLocation(ev models.Event) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{ev.City, ev.Region, ev.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Mirror applies single-event operations against one external calendar.
type Mirror struct {
	log *slog.Logger
	api gcal.API
}

func NewMirror(log *slog.Logger, api gcal.API) *Mirror {
	return &Mirror{log: log, api: api}
}

// Upsert pushes the event into the calendar, creating or updating in place.
func (m *Mirror) Upsert(ctx context.Context, calendarID string, ev models.Event) (string, error) {
	return m.api.UpsertEvent(ctx, calendarID, Convert(ev))
}

// Delete removes a previously-mirrored event. Already-gone is success: the
// goal state is "not present".
func (m *Mirror) Delete(ctx context.Context, calendarID, externalEventID string) error {
	err := m.api.DeleteEvent(ctx, calendarID, externalEventID)
	if err != nil && errors.Is(err, gcal.ErrNotFound) {
		return nil
	}
	return err
}
