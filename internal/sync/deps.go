// Package sync is the calendar synchronization engine: it decides which
// events belong in a user's external calendar, converges the external mirror
// through idempotent upserts and orphan deletes, and tracks the outcome in
// per-user sync state.
package sync

import (
	"context"
	"errors"
	"time"

	"calendar-mirror/internal/models"
)

// ProviderGoogle is the only external calendar provider modeled today.
const ProviderGoogle = "google"

var (
	// ErrAuthMissing means the user has no usable credential at all; sync is
	// force-disabled for them instead of retried forever.
	ErrAuthMissing = errors.New("no linked account or usable token")
)

// Store is the persistence surface the engine needs. *store.Store implements
// it; tests substitute an in-memory fake.
type Store interface {
	UserSyncState(ctx context.Context, userID string) (*models.UserSyncState, error)
	ClaimCalendarID(ctx context.Context, userID string, previous *string, candidate string) (bool, error)
	EnableSync(ctx context.Context, userID string) error
	SetSyncMode(ctx context.Context, userID string, mode models.SyncMode) error
	WriteSyncSuccess(ctx context.Context, userID string, at time.Time, errJoin *string) error
	WriteSyncFailure(ctx context.Context, userID string, at time.Time, errMsg string) error
	DisableSync(ctx context.Context, userID string, at time.Time, reason string) error
	ClearSyncState(ctx context.Context, userID string) error
	PendingUsers(ctx context.Context, limit int) ([]string, error)

	LinkedAccount(ctx context.Context, userID, provider string) (*models.LinkedAccount, error)
	SaveTokens(ctx context.Context, accountID int64, accessToken, refreshToken string, expiresAt time.Time) error

	EnsureFullSubscription(ctx context.Context, userID string) (int64, error)

	PublishedEvents(ctx context.Context) ([]models.Event, error)
	FollowedPublishedEvents(ctx context.Context, userID string) ([]models.Event, error)

	Ledger(ctx context.Context, userID string) ([]models.UserEventSync, error)
	UpsertLedger(ctx context.Context, userID, eventID, externalEventID string, at time.Time) error
	DeleteLedger(ctx context.Context, userID, eventID string) error
}
