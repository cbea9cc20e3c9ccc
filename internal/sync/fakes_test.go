package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/api/calendar/v3"

	"calendar-mirror/internal/gcal"
	"calendar-mirror/internal/models"
	"calendar-mirror/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory Store covering the handful of users a test touches.
type fakeStore struct {
	mu sync.Mutex

	states   map[string]*models.UserSyncState
	accounts map[string]*models.LinkedAccount
	events   []models.Event
	follows  map[string]map[string]bool // userID -> eventID
	ledger   map[string]map[string]models.UserEventSync
	pending  []string

	savedTokens []string

	acctErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:   make(map[string]*models.UserSyncState),
		accounts: make(map[string]*models.LinkedAccount),
		follows:  make(map[string]map[string]bool),
		ledger:   make(map[string]map[string]models.UserEventSync),
	}
}

func (f *fakeStore) addUser(userID string, mode models.SyncMode) {
	f.states[userID] = &models.UserSyncState{
		UserID:      userID,
		SyncEnabled: true,
		SyncStatus:  models.SyncStatusPending,
		SyncMode:    mode,
	}
	f.accounts[userID] = &models.LinkedAccount{
		ID:          1,
		UserID:      userID,
		Provider:    ProviderGoogle,
		AccessToken: "tok-" + userID,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func (f *fakeStore) UserSyncState(_ context.Context, userID string) (*models.UserSyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	cp := *st
	return &cp, nil
}

func (f *fakeStore) ClaimCalendarID(_ context.Context, userID string, previous *string, candidate string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[userID]
	if !ok {
		return false, errors.New("user not found")
	}
	current := st.CalendarID
	if previous == nil {
		if current != nil && *current != "" {
			return false, nil
		}
	} else {
		if current == nil || *current != *previous {
			return false, nil
		}
	}
	st.CalendarID = &candidate
	return true, nil
}

func (f *fakeStore) EnableSync(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.states[userID]
	if !st.SyncEnabled {
		st.SyncMode = models.SyncModeFull
	}
	st.SyncEnabled = true
	st.SyncStatus = models.SyncStatusPending
	return nil
}

func (f *fakeStore) SetSyncMode(_ context.Context, userID string, mode models.SyncMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[userID].SyncMode = mode
	return nil
}

func (f *fakeStore) WriteSyncSuccess(_ context.Context, userID string, at time.Time, errJoin *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.states[userID]
	st.SyncStatus = models.SyncStatusSynced
	st.LastSyncedAt = &at
	st.LastSyncAttemptAt = &at
	st.LastSyncError = errJoin
	return nil
}

func (f *fakeStore) WriteSyncFailure(_ context.Context, userID string, at time.Time, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.states[userID]
	st.LastSyncAttemptAt = &at
	st.LastSyncError = &errMsg
	return nil
}

func (f *fakeStore) DisableSync(_ context.Context, userID string, at time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[userID]
	if !ok {
		return errors.New("user not found")
	}
	st.SyncEnabled = false
	st.SyncStatus = models.SyncStatusError
	st.LastSyncAttemptAt = &at
	st.LastSyncError = &reason
	return nil
}

func (f *fakeStore) ClearSyncState(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[userID] = &models.UserSyncState{UserID: userID, SyncMode: models.SyncModeFull}
	delete(f.ledger, userID)
	return nil
}

func (f *fakeStore) PendingUsers(_ context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	out := make([]string, limit)
	copy(out, f.pending[:limit])
	return out, nil
}

func (f *fakeStore) LinkedAccount(_ context.Context, userID, provider string) (*models.LinkedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acctErr != nil {
		return nil, f.acctErr
	}
	acct, ok := f.accounts[userID]
	if !ok {
		return nil, store.ErrNoLinkedAccount
	}
	cp := *acct
	return &cp, nil
}

func (f *fakeStore) SaveTokens(_ context.Context, accountID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedTokens = append(f.savedTokens, accessToken)
	for _, acct := range f.accounts {
		if acct.ID == accountID {
			acct.AccessToken = accessToken
			acct.RefreshToken = refreshToken
			acct.ExpiresAt = expiresAt
		}
	}
	return nil
}

func (f *fakeStore) EnsureFullSubscription(_ context.Context, userID string) (int64, error) {
	return 1, nil
}

func (f *fakeStore) PublishedEvents(_ context.Context) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Event, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeStore) FollowedPublishedEvents(_ context.Context, userID string) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	followed := f.follows[userID]
	out := make([]models.Event, 0)
	for _, ev := range f.events {
		if followed[ev.ID] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) Ledger(_ context.Context, userID string) ([]models.UserEventSync, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.UserEventSync, 0, len(f.ledger[userID]))
	for _, entry := range f.ledger[userID] {
		out = append(out, entry)
	}
	return out, nil
}

func (f *fakeStore) UpsertLedger(_ context.Context, userID, eventID, externalEventID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ledger[userID] == nil {
		f.ledger[userID] = make(map[string]models.UserEventSync)
	}
	f.ledger[userID][eventID] = models.UserEventSync{
		UserID:          userID,
		EventID:         eventID,
		ExternalEventID: externalEventID,
		SyncedAt:        at,
	}
	return nil
}

func (f *fakeStore) DeleteLedger(_ context.Context, userID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ledger[userID], eventID)
	return nil
}

// fakeAPI is an in-memory calendar service: one map of calendars, each a map
// of events keyed by external event ID.
type fakeAPI struct {
	mu sync.Mutex

	calendars map[string]map[string]*calendar.Event
	nextID    int

	createCalls int
	deleteCalls int
	upsertCalls int

	upsertErr error
	verifyErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calendars: make(map[string]map[string]*calendar.Event)}
}

func (a *fakeAPI) CreateCalendar(_ context.Context, summary, timezone string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.createCalls++
	a.nextID++
	id := fmt.Sprintf("cal-%d", a.nextID)
	a.calendars[id] = make(map[string]*calendar.Event)
	return id, nil
}

func (a *fakeAPI) VerifyCalendar(_ context.Context, calendarID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.verifyErr != nil {
		return a.verifyErr
	}
	if _, ok := a.calendars[calendarID]; !ok {
		return gcal.ErrNotFound
	}
	return nil
}

func (a *fakeAPI) DeleteCalendar(_ context.Context, calendarID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleteCalls++
	if _, ok := a.calendars[calendarID]; !ok {
		return gcal.ErrNotFound
	}
	delete(a.calendars, calendarID)
	return nil
}

func (a *fakeAPI) UpsertEvent(_ context.Context, calendarID string, ev *calendar.Event) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.upsertCalls++
	if a.upsertErr != nil {
		return "", a.upsertErr
	}
	cal, ok := a.calendars[calendarID]
	if !ok {
		return "", gcal.ErrNotFound
	}
	cal[ev.Id] = ev
	return ev.Id, nil
}

func (a *fakeAPI) DeleteEvent(_ context.Context, calendarID, eventID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cal, ok := a.calendars[calendarID]
	if !ok {
		return gcal.ErrNotFound
	}
	if _, ok := cal[eventID]; !ok {
		return gcal.ErrNotFound
	}
	delete(cal, eventID)
	return nil
}

func (a *fakeAPI) eventCount(calendarID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calendars[calendarID])
}

func (a *fakeAPI) hasEvent(calendarID, externalID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.calendars[calendarID][externalID]
	return ok
}

// seedCalendar registers an existing calendar without counting it as a create.
func (a *fakeAPI) seedCalendar(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calendars[id] = make(map[string]*calendar.Event)
}

func fakeFactory(api *fakeAPI) gcal.Factory {
	return func(ctx context.Context, accessToken string) (gcal.API, error) {
		return api, nil
	}
}
