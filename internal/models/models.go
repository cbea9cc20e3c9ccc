package models

import "time"

type EventStatus string

const (
	EventPending   EventStatus = "PENDING"
	EventPublished EventStatus = "PUBLISHED"
)

// Event is owned by the internal event store; this service only reads it.
type Event struct {
	ID          string      `json:"id"`
	Status      EventStatus `json:"status"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	URL         string      `json:"url,omitempty"`
	City        string      `json:"city,omitempty"`
	Region      string      `json:"region,omitempty"`
	Country     string      `json:"country,omitempty"`
	Source      string      `json:"source,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	StartsAt    time.Time   `json:"starts_at"`
	EndsAt      time.Time   `json:"ends_at"`
	// Timezone is nil for all-day events (the event store's convention).
	Timezone  *string   `json:"timezone,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e Event) AllDay() bool {
	return e.Timezone == nil || *e.Timezone == ""
}

type SyncMode string

const (
	SyncModeFull   SyncMode = "FULL"
	SyncModeCustom SyncMode = "CUSTOM"
)

func ValidSyncMode(s string) bool {
	return s == string(SyncModeFull) || s == string(SyncModeCustom)
}

// SyncStatus is the tri-state replacement for the old pending boolean:
// a user is either waiting for a pass, converged, or parked on a fatal error.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

// UserSyncState carries the per-user sync bookkeeping columns of the users table.
type UserSyncState struct {
	UserID            string     `json:"user_id"`
	SyncEnabled       bool       `json:"sync_enabled"`
	SyncStatus        SyncStatus `json:"sync_status"`
	SyncMode          SyncMode   `json:"sync_mode"`
	CalendarID        *string    `json:"calendar_id,omitempty"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty"`
	LastSyncError     *string    `json:"last_sync_error,omitempty"`
	LastSyncAttemptAt *time.Time `json:"last_sync_attempt_at,omitempty"`
}

// LinkedAccount is owned by the auth subsystem; the sync engine reads it and
// writes back rotated tokens. RefreshToken arrives decrypted from the store.
type LinkedAccount struct {
	ID           int64
	UserID       string
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type SubscriptionKind string

const (
	SubscriptionFull   SubscriptionKind = "FULL"
	SubscriptionCustom SubscriptionKind = "CUSTOM"
)

type Subscription struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      SubscriptionKind `json:"kind"`
	Active    bool             `json:"active"`
	Filter    *Filter          `json:"filter,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type FollowSource string

const (
	FollowManual FollowSource = "MANUAL"
	FollowFilter FollowSource = "FILTER"
)

type EventFollow struct {
	ID             int64        `json:"id"`
	UserID         string       `json:"user_id"`
	EventID        string       `json:"event_id"`
	SubscriptionID *int64       `json:"subscription_id,omitempty"`
	Source         FollowSource `json:"source"`
	CreatedAt      time.Time    `json:"created_at"`
}

// UserEventSync is one row of the mirror ledger: what we actually pushed
// externally, keyed (user_id, event_id). Orphan detection diffs this against
// the target set instead of listing the external calendar.
type UserEventSync struct {
	UserID          string    `json:"user_id"`
	EventID         string    `json:"event_id"`
	ExternalEventID string    `json:"external_event_id"`
	SyncedAt        time.Time `json:"synced_at"`
}

// SyncResult is what a single orchestrator pass returns for one user.
// Created counts idempotent upserts, so an in-place update of an
// already-mirrored event counts the same as a fresh insert.
type SyncResult struct {
	Created int      `json:"created"`
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors"`
}
