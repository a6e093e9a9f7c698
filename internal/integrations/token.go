package integrations

import (
	"context"
	"fmt"
	"time"

	"channel-relay/internal/models"
)

// TokenState classifies a stored credential against its expiry timestamp.
type TokenState int

const (
	TokenValid TokenState = iota
	TokenExpiring
	TokenExpired
)

// RefreshBuffer is the safety margin before expiry at which a token is
// refreshed rather than used.
const RefreshBuffer = 5 * time.Minute

// StateOf evaluates the token state machine for a credential blob.
// ExpiresAt is epoch milliseconds.
func StateOf(blob models.CredentialBlob, now time.Time) TokenState {
	expiry := time.UnixMilli(blob.ExpiresAt)
	switch {
	case now.After(expiry):
		return TokenExpired
	case now.Add(RefreshBuffer).After(expiry):
		return TokenExpiring
	default:
		return TokenValid
	}
}

// refreshFunc performs one provider-specific refresh call.
type refreshFunc func(ctx context.Context, blob models.CredentialBlob) (models.CredentialBlob, error)

// ensureToken returns a valid access token for the integration, refreshing
// and persisting first when the stored token is expiring or expired.
// Concurrent callers may race and refresh redundantly; that is accepted
// because these providers do not invalidate the old token on refresh, so
// no lock is taken. This is a documented limitation.
func ensureToken(ctx context.Context, store *Store, integ *models.AgentIntegration, now func() time.Time, refresh refreshFunc) (string, error) {
	blob, err := integ.Credentials()
	if err != nil {
		return "", err
	}

	if StateOf(blob, now()) == TokenValid {
		return blob.AccessToken, nil
	}

	newBlob, err := refresh(ctx, blob)
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}

	// Providers that do not rotate the refresh token leave it out of the
	// refresh response; carry the old one forward.
	if newBlob.RefreshToken == "" {
		newBlob.RefreshToken = blob.RefreshToken
	}
	if newBlob.AccountsServer == "" {
		newBlob.AccountsServer = blob.AccountsServer
	}
	if newBlob.APIDomain == "" {
		newBlob.APIDomain = blob.APIDomain
	}

	if err := store.SaveCredentials(integ, newBlob); err != nil {
		return "", fmt.Errorf("persist refreshed credentials: %w", err)
	}
	return newBlob.AccessToken, nil
}
