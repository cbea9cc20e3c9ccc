package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"calendar-mirror/internal/gcal"
	"calendar-mirror/internal/models"
	"calendar-mirror/internal/store"
)

// Orchestrator runs one user's convergence pass: resolve credentials, ensure
// the calendar, diff the target set against the ledger, and mirror the
// difference. A returned error means the pass did not complete and the user
// stays pending (or is disabled, for auth failures); per-event failures are
// carried in SyncResult.Errors and never abort the pass.
type Orchestrator struct {
	log    *slog.Logger
	store  Store
	creds  *CredentialManager
	prov   *Provisioner
	newAPI gcal.Factory
	now    func() time.Time
}

func NewOrchestrator(log *slog.Logger, st Store, creds *CredentialManager, factory gcal.Factory) *Orchestrator {
	return &Orchestrator{
		log:    log,
		store:  st,
		creds:  creds,
		prov:   NewProvisioner(log, st),
		newAPI: factory,
		now:    time.Now,
	}
}

// Sync converges one user. incremental limits the upsert pass to events
// updated since the last completed pass; orphan detection always runs against
// the full target set — incrementality never skips deletes.
func (o *Orchestrator) Sync(ctx context.Context, userID string, incremental bool) (models.SyncResult, error) {
	var res models.SyncResult

	st, err := o.store.UserSyncState(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("failed to load sync state: %w", err)
	}

	api, err := o.connect(ctx, userID)
	if err != nil {
		return res, err
	}

	calendarID, action, err := o.prov.EnsureCalendar(ctx, userID, api)
	if err != nil {
		o.failPass(ctx, userID, err)
		return res, err
	}

	// a created or recreated calendar is empty no matter what the ledger says;
	// incrementality must never skip repopulating it
	if action != ProvisionReused {
		incremental = false
	}

	target, err := o.targetEvents(ctx, userID, st.SyncMode)
	if err != nil {
		o.failPass(ctx, userID, err)
		return res, err
	}

	mirror := NewMirror(o.log, api)
	now := o.now().UTC()

	// upsert pass, optionally restricted to recently-updated events
	for _, ev := range target {
		if incremental && st.LastSyncedAt != nil && ev.UpdatedAt.Before(*st.LastSyncedAt) {
			continue
		}

		externalID, err := mirror.Upsert(ctx, calendarID, ev)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("upsert %s: %v", ev.ID, err))
			continue
		}
		if err := o.store.UpsertLedger(ctx, userID, ev.ID, externalID, now); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("ledger %s: %v", ev.ID, err))
			continue
		}
		res.Created++
	}

	// orphan cleanup always diffs the full target set against the ledger
	targetIDs := make(map[string]struct{}, len(target))
	for _, ev := range target {
		targetIDs[ev.ID] = struct{}{}
	}

	ledger, err := o.store.Ledger(ctx, userID)
	if err != nil {
		o.failPass(ctx, userID, err)
		return res, err
	}

	for _, entry := range ledger {
		if _, ok := targetIDs[entry.EventID]; ok {
			continue
		}
		if err := mirror.Delete(ctx, calendarID, entry.ExternalEventID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("delete %s: %v", entry.EventID, err))
			continue
		}
		if err := o.store.DeleteLedger(ctx, userID, entry.EventID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("ledger delete %s: %v", entry.EventID, err))
			continue
		}
		res.Deleted++
	}

	var errJoin *string
	if len(res.Errors) > 0 {
		j := strings.Join(res.Errors, "; ")
		errJoin = &j
	}
	if err := o.store.WriteSyncSuccess(ctx, userID, now, errJoin); err != nil {
		return res, fmt.Errorf("failed to write sync state: %w", err)
	}

	o.log.Info("sync_pass_complete",
		"user_id", userID,
		"incremental", incremental,
		"created", res.Created,
		"deleted", res.Deleted,
		"errors", len(res.Errors),
	)
	return res, nil
}

// EnsureCalendar is the user-initiated provisioning entry point (connect flow).
func (o *Orchestrator) EnsureCalendar(ctx context.Context, userID string) (string, ProvisionAction, error) {
	api, err := o.connect(ctx, userID)
	if err != nil {
		return "", "", err
	}
	calendarID, action, err := o.prov.EnsureCalendar(ctx, userID, api)
	if err != nil {
		o.failPass(ctx, userID, err)
	}
	return calendarID, action, err
}

// SwitchMode applies a FULL<->CUSTOM change and immediately runs a full pass
// so the user sees convergence without waiting for the next batch cycle.
func (o *Orchestrator) SwitchMode(ctx context.Context, userID string, mode models.SyncMode) (models.SyncResult, error) {
	if err := o.store.SetSyncMode(ctx, userID, mode); err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to set sync mode: %w", err)
	}

	if mode == models.SyncModeFull {
		if _, err := o.store.EnsureFullSubscription(ctx, userID); err != nil {
			return models.SyncResult{}, fmt.Errorf("failed to ensure full subscription: %w", err)
		}
	}

	return o.Sync(ctx, userID, false)
}

// Disconnect removes the dedicated external calendar best-effort and clears
// the local sync state. The linked-account row stays with the auth subsystem.
func (o *Orchestrator) Disconnect(ctx context.Context, userID string) error {
	st, err := o.store.UserSyncState(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}

	if st.CalendarID != nil && *st.CalendarID != "" {
		if api, err := o.connect(ctx, userID); err == nil {
			if err := api.DeleteCalendar(ctx, *st.CalendarID); err != nil {
				o.log.Warn("calendar_delete_failed", "user_id", userID, "calendar_id", *st.CalendarID, "error", err)
			}
		} else {
			o.log.Warn("disconnect_without_credentials", "user_id", userID, "error", err)
		}
	}

	return o.store.ClearSyncState(ctx, userID)
}

// connect resolves credentials into a calendar API client. Auth-missing is
// fatal for the user: sync is force-disabled rather than retried forever.
// Transient account-load failures keep the user pending instead.
func (o *Orchestrator) connect(ctx context.Context, userID string) (gcal.API, error) {
	acct, err := o.store.LinkedAccount(ctx, userID, ProviderGoogle)
	if err != nil {
		if errors.Is(err, store.ErrNoLinkedAccount) {
			o.disableUser(ctx, userID, "no linked google account")
			return nil, ErrAuthMissing
		}
		o.failPass(ctx, userID, err)
		return nil, fmt.Errorf("failed to load linked account: %w", err)
	}

	token, err := o.creds.ValidAccessToken(ctx, acct)
	if err != nil {
		if errors.Is(err, ErrAuthMissing) {
			o.disableUser(ctx, userID, "no usable access token")
		}
		return nil, err
	}

	api, err := o.newAPI(ctx, token)
	if err != nil {
		o.failPass(ctx, userID, err)
		return nil, err
	}
	return api, nil
}

func (o *Orchestrator) disableUser(ctx context.Context, userID, reason string) {
	o.log.Error("sync_disabled", "user_id", userID, "reason", reason)
	if err := o.store.DisableSync(ctx, userID, o.now().UTC(), reason); err != nil {
		o.log.Warn("disable_sync_write_failed", "user_id", userID, "error", err)
	}
}

// failPass records a fatal, non-per-item failure; status stays pending so the
// next batch run retries the whole user.
func (o *Orchestrator) failPass(ctx context.Context, userID string, cause error) {
	if err := o.store.WriteSyncFailure(ctx, userID, o.now().UTC(), cause.Error()); err != nil {
		o.log.Warn("sync_failure_write_failed", "user_id", userID, "error", err)
	}
}

func (o *Orchestrator) targetEvents(ctx context.Context, userID string, mode models.SyncMode) ([]models.Event, error) {
	if mode == models.SyncModeFull {
		return o.store.PublishedEvents(ctx)
	}
	return o.store.FollowedPublishedEvents(ctx, userID)
}
