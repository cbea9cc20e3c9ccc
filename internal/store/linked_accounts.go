package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"calendar-mirror/internal/models"
	"calendar-mirror/internal/security"
)

var ErrNoLinkedAccount = errors.New("no linked account")

// LinkedAccount loads the (user, provider) credential row and decrypts the
// refresh token. A row whose refresh token cannot be decrypted is surfaced
// with the token blank; the credential manager treats that as non-refreshable.
func (s *Store) LinkedAccount(ctx context.Context, userID, provider string) (*models.LinkedAccount, error) {
	acct := models.LinkedAccount{UserID: userID, Provider: provider}
	var refreshEncrypted *string

	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, access_token, refresh_token_encrypted, expires_at
		 FROM linked_accounts
		 WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	).Scan(&acct.ID, &acct.AccessToken, &refreshEncrypted, &acct.ExpiresAt)
	if err != nil {
		// a transient failure must not masquerade as missing credentials:
		// the caller force-disables sync on ErrNoLinkedAccount
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoLinkedAccount
		}
		return nil, fmt.Errorf("failed to load linked account: %w", err)
	}

	if refreshEncrypted != nil && *refreshEncrypted != "" {
		plain, err := security.DecryptSecret(*refreshEncrypted, s.encKey)
		if err != nil {
			s.log.Warn("refresh_token_decrypt_failed", "user_id", userID, "error", err)
		} else {
			acct.RefreshToken = plain
		}
	}

	return &acct, nil
}

// SaveTokens persists a rotated token pair after a successful refresh.
func (s *Store) SaveTokens(ctx context.Context, accountID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	encrypted, err := security.EncryptSecret(refreshToken, s.encKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx,
		`UPDATE linked_accounts
		 SET access_token = $2, refresh_token_encrypted = $3, expires_at = $4
		 WHERE id = $1`,
		accountID, accessToken, encrypted, expiresAt,
	)
	return err
}
