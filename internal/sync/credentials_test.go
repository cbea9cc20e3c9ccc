package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"calendar-mirror/internal/models"
)

func testCredentialManager(st *fakeStore, window time.Duration, refresh refreshFunc) *CredentialManager {
	return &CredentialManager{
		log:     testLogger(),
		store:   st,
		window:  window,
		refresh: refresh,
	}
}

func TestValidAccessToken_NoCredentials(t *testing.T) {
	cm := testCredentialManager(newFakeStore(), time.Minute, nil)

	_, err := cm.ValidAccessToken(context.Background(), &models.LinkedAccount{})
	if !errors.Is(err, ErrAuthMissing) {
		t.Errorf("expected ErrAuthMissing, got %v", err)
	}

	_, err = cm.ValidAccessToken(context.Background(), nil)
	if !errors.Is(err, ErrAuthMissing) {
		t.Errorf("expected ErrAuthMissing for nil account, got %v", err)
	}
}

func TestValidAccessToken_FreshTokenReturnedWithoutRefresh(t *testing.T) {
	refreshed := false
	cm := testCredentialManager(newFakeStore(), time.Minute, func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
		refreshed = true
		return tok, nil
	})

	acct := &models.LinkedAccount{
		UserID:       "u1",
		AccessToken:  "live-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	tok, err := cm.ValidAccessToken(context.Background(), acct)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "live-token" {
		t.Errorf("expected existing token, got %s", tok)
	}
	if refreshed {
		t.Error("token outside the safety window must not be refreshed")
	}
}

func TestValidAccessToken_RefreshesInsideSafetyWindow(t *testing.T) {
	st := newFakeStore()
	st.accounts["u1"] = &models.LinkedAccount{ID: 7, UserID: "u1"}

	cm := testCredentialManager(st, time.Minute, func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
		return &oauth2.Token{
			AccessToken: "fresh-token",
			Expiry:      time.Now().Add(time.Hour),
		}, nil
	})

	acct := &models.LinkedAccount{
		ID:           7,
		UserID:       "u1",
		AccessToken:  "stale-token",
		RefreshToken: "refresh",
		// expires inside the 60s window
		ExpiresAt: time.Now().Add(30 * time.Second),
	}

	tok, err := cm.ValidAccessToken(context.Background(), acct)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "fresh-token" {
		t.Errorf("expected refreshed token, got %s", tok)
	}

	// persisted, and the old refresh token kept when the grant omits a new one
	if len(st.savedTokens) != 1 || st.savedTokens[0] != "fresh-token" {
		t.Errorf("expected refreshed token persisted, got %v", st.savedTokens)
	}
	if st.accounts["u1"].RefreshToken != "refresh" {
		t.Errorf("expected original refresh token kept, got %s", st.accounts["u1"].RefreshToken)
	}
}

func TestValidAccessToken_RefreshFailureIsSoft(t *testing.T) {
	cm := testCredentialManager(newFakeStore(), time.Minute, func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
		return nil, errors.New("invalid_grant")
	})

	acct := &models.LinkedAccount{
		UserID:       "u1",
		AccessToken:  "stale-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(10 * time.Second),
	}

	tok, err := cm.ValidAccessToken(context.Background(), acct)
	if err != nil {
		t.Fatalf("refresh failure must be soft when an old token exists: %v", err)
	}
	if tok != "stale-token" {
		t.Errorf("expected old token returned, got %s", tok)
	}
}

func TestValidAccessToken_RefreshFailureWithoutOldTokenIsFatal(t *testing.T) {
	cm := testCredentialManager(newFakeStore(), time.Minute, func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
		return nil, errors.New("invalid_grant")
	})

	acct := &models.LinkedAccount{
		UserID:       "u1",
		RefreshToken: "refresh",
	}

	_, err := cm.ValidAccessToken(context.Background(), acct)
	if !errors.Is(err, ErrAuthMissing) {
		t.Errorf("expected ErrAuthMissing with no fallback token, got %v", err)
	}
}
