package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"calendar-mirror/internal/models"
)

func TestGenerateExternalEventID_Deterministic(t *testing.T) {
	a := GenerateExternalEventID("3f1c9a2e-0000-0000-0000-000000000001")
	b := GenerateExternalEventID("3f1c9a2e-0000-0000-0000-000000000001")

	if a != b {
		t.Errorf("expected deterministic id, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	// Google event IDs only accept lowercase base32hex characters
	if strings.ToLower(a) != a {
		t.Errorf("expected lowercase id, got %s", a)
	}

	other := GenerateExternalEventID("3f1c9a2e-0000-0000-0000-000000000002")
	if a == other {
		t.Error("expected different events to map to different external ids")
	}
}

func TestGenerateEventICalUID(t *testing.T) {
	uid := GenerateEventICalUID("abc-123")
	if uid != "evt-abc-123@mirror.conftrack.app" {
		t.Errorf("unexpected ical uid: %s", uid)
	}
}

func TestConvert_AllDayEvent(t *testing.T) {
	ev := models.Event{
		ID:       "ev-1",
		Title:    "GopherCon",
		StartsAt: time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		// nil timezone means all-day
	}

	gev := Convert(ev)

	if gev.Start.Date != "2026-09-10" {
		t.Errorf("expected start date 2026-09-10, got %s", gev.Start.Date)
	}
	// external end date is exclusive; a 10th-12th event ends on the 13th
	if gev.End.Date != "2026-09-13" {
		t.Errorf("expected exclusive end date 2026-09-13, got %s", gev.End.Date)
	}
	if gev.Start.DateTime != "" || gev.End.DateTime != "" {
		t.Error("all-day events must not carry datetimes")
	}
}

func TestConvert_TimedEvent(t *testing.T) {
	tz := "Europe/Berlin"
	ev := models.Event{
		ID:       "ev-2",
		Title:    "Go Meetup",
		Timezone: &tz,
		StartsAt: time.Date(2026, 9, 10, 18, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 9, 10, 20, 0, 0, 0, time.UTC),
	}

	gev := Convert(ev)

	if gev.Start.DateTime == "" || gev.End.DateTime == "" {
		t.Fatal("timed events must carry datetimes")
	}
	if gev.Start.TimeZone != tz {
		t.Errorf("expected timezone %s, got %s", tz, gev.Start.TimeZone)
	}
	if gev.Start.Date != "" {
		t.Error("timed events must not carry bare dates")
	}
}

func TestConvert_DescriptionAndLocation(t *testing.T) {
	ev := models.Event{
		ID:          "ev-3",
		Title:       "Conf",
		Description: "Two days of talks",
		URL:         "https://conf.example.com",
		City:        "Berlin",
		Country:     "DE",
	}

	gev := Convert(ev)

	if !strings.Contains(gev.Description, "Two days of talks") || !strings.Contains(gev.Description, "https://conf.example.com") {
		t.Errorf("description missing parts: %q", gev.Description)
	}
	if gev.Location != "Berlin, DE" {
		t.Errorf("expected location 'Berlin, DE', got %q", gev.Location)
	}
}

func TestMirror_UpsertIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	api.seedCalendar("cal-1")
	m := NewMirror(testLogger(), api)

	ev := models.Event{ID: "ev-1", Title: "Conf"}

	id1, err := m.Upsert(context.Background(), "cal-1", ev)
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	id2, err := m.Upsert(context.Background(), "cal-1", ev)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if id1 != id2 {
		t.Errorf("expected same external id, got %s and %s", id1, id2)
	}
	if n := api.eventCount("cal-1"); n != 1 {
		t.Errorf("expected exactly one external event, got %d", n)
	}
}

func TestMirror_DeleteAlreadyGoneIsSuccess(t *testing.T) {
	api := newFakeAPI()
	api.seedCalendar("cal-1")
	m := NewMirror(testLogger(), api)

	if err := m.Delete(context.Background(), "cal-1", "no-such-event"); err != nil {
		t.Errorf("expected nil for already-deleted event, got %v", err)
	}
}
