package sync

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"calendar-mirror/internal/logging"
	"calendar-mirror/internal/models"
)

// refreshFunc exchanges a token carrying a refresh token for a fresh one.
// Production uses the oauth2 config; tests substitute their own.
type refreshFunc func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)

// CredentialManager resolves a usable access token for a linked account,
// proactively refreshing when expiry falls inside the safety window.
type CredentialManager struct {
	log     *slog.Logger
	store   Store
	window  time.Duration
	refresh refreshFunc
}

func NewCredentialManager(log *slog.Logger, st Store, oauthCfg *oauth2.Config, window time.Duration) *CredentialManager {
	return &CredentialManager{
		log:    log,
		store:  st,
		window: window,
		refresh: func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
			return oauthCfg.TokenSource(ctx, tok).Token()
		},
	}
}

// ValidAccessToken returns a token expected to outlive the safety window.
// Refresh failure is soft: the old token comes back and the downstream call
// is allowed to fail per-user instead of blocking the batch.
func (cm *CredentialManager) ValidAccessToken(ctx context.Context, acct *models.LinkedAccount) (string, error) {
	if acct == nil || (acct.AccessToken == "" && acct.RefreshToken == "") {
		return "", ErrAuthMissing
	}

	if acct.AccessToken != "" && time.Until(acct.ExpiresAt) > cm.window {
		return acct.AccessToken, nil
	}

	if acct.RefreshToken == "" {
		cm.log.Warn("token_expiring_without_refresh_token", "user_id", acct.UserID)
		return acct.AccessToken, nil
	}

	fresh, err := cm.refresh(ctx, &oauth2.Token{
		AccessToken:  acct.AccessToken,
		RefreshToken: acct.RefreshToken,
		Expiry:       acct.ExpiresAt,
	})
	if err != nil {
		cm.log.Warn("token_refresh_failed", "user_id", acct.UserID, "error", err)
		if acct.AccessToken == "" {
			return "", ErrAuthMissing
		}
		return acct.AccessToken, nil
	}

	if fresh.AccessToken != acct.AccessToken {
		refreshToken := fresh.RefreshToken
		if refreshToken == "" {
			// Google only returns the refresh token on first grant
			refreshToken = acct.RefreshToken
		}
		if err := cm.store.SaveTokens(ctx, acct.ID, fresh.AccessToken, refreshToken, fresh.Expiry); err != nil {
			cm.log.Warn("token_persist_failed", "user_id", acct.UserID, "error", err)
		}
		cm.log.Info("token_refreshed",
			"user_id", acct.UserID,
			"token", logging.MaskToken(fresh.AccessToken),
			"expires_at", fresh.Expiry,
		)
	}

	return fresh.AccessToken, nil
}
