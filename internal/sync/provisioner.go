package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"calendar-mirror/internal/gcal"
)

const (
	calendarSummary  = "Conference Events"
	calendarTimezone = "UTC"
)

type ProvisionAction string

const (
	ProvisionCreated   ProvisionAction = "CREATED"
	ProvisionReused    ProvisionAction = "REUSED"
	ProvisionRecreated ProvisionAction = "RECREATED"
)

// Provisioner guarantees at most one durable dedicated calendar per user,
// even when two OAuth callbacks race to provision at once.
type Provisioner struct {
	log   *slog.Logger
	store Store
}

func NewProvisioner(log *slog.Logger, st Store) *Provisioner {
	return &Provisioner{log: log, store: st}
}

// EnsureCalendar resolves the user's dedicated external calendar, creating
// one when absent or stale. The conditional claim on the calendar-id column
// is the only place the engine needs stronger-than-read-then-write atomicity:
// the loser of a concurrent claim discards its calendar and adopts the winner.
func (p *Provisioner) EnsureCalendar(ctx context.Context, userID string, api gcal.API) (string, ProvisionAction, error) {
	st, err := p.store.UserSyncState(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load sync state: %w", err)
	}

	var stale *string
	recreating := false
	if st.CalendarID != nil && *st.CalendarID != "" {
		verifyErr := api.VerifyCalendar(ctx, *st.CalendarID)
		if verifyErr == nil {
			return *st.CalendarID, ProvisionReused, nil
		}
		if !errors.Is(verifyErr, gcal.ErrNotFound) {
			// transient verification failure: keep the stored ID, retry next run
			return "", "", fmt.Errorf("failed to verify calendar: %w", verifyErr)
		}
		p.log.Info("calendar_stale", "user_id", userID, "calendar_id", *st.CalendarID)
		stale = st.CalendarID
		recreating = true
	}

	created, err := api.CreateCalendar(ctx, calendarSummary, calendarTimezone)
	if err != nil {
		return "", "", fmt.Errorf("failed to create calendar: %w", err)
	}

	claimed, err := p.store.ClaimCalendarID(ctx, userID, stale, created)
	if err != nil {
		return "", "", fmt.Errorf("failed to claim calendar id: %w", err)
	}

	if !claimed {
		// lost the race: a concurrent caller claimed first. Drop ours and
		// adopt the winner.
		if delErr := api.DeleteCalendar(ctx, created); delErr != nil {
			p.log.Warn("orphan_calendar_cleanup_failed", "user_id", userID, "calendar_id", created, "error", delErr)
		}
		st, err = p.store.UserSyncState(ctx, userID)
		if err != nil || st.CalendarID == nil || *st.CalendarID == "" {
			return "", "", fmt.Errorf("lost provisioning race but no winner recorded for user %s", userID)
		}
		p.log.Info("provisioning_race_resolved", "user_id", userID, "calendar_id", *st.CalendarID)
		return *st.CalendarID, ProvisionReused, nil
	}

	// first successful provisioning enables sync and queues the initial pass
	if err := p.store.EnableSync(ctx, userID); err != nil {
		return "", "", fmt.Errorf("failed to enable sync: %w", err)
	}

	action := ProvisionCreated
	if recreating {
		action = ProvisionRecreated
	}
	p.log.Info("calendar_provisioned", "user_id", userID, "calendar_id", created, "action", string(action))
	return created, action, nil
}
