package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"channel-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.AgentIntegration{},
		&models.IntegrationEvent{},
	))
	return db
}

func seedIntegration(t *testing.T, store *Store, agentID string, provider models.IntegrationProvider, blob models.CredentialBlob) *models.AgentIntegration {
	t.Helper()
	data, err := json.Marshal(blob)
	require.NoError(t, err)
	integ, err := store.Upsert(agentID, provider, string(data))
	require.NoError(t, err)
	return integ
}

func TestStateOf(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		expiresAt time.Time
		want      TokenState
	}{
		{"well before expiry", now.Add(time.Hour), TokenValid},
		{"inside refresh buffer", now.Add(2 * time.Minute), TokenExpiring},
		{"at buffer boundary", now.Add(RefreshBuffer + time.Second), TokenValid},
		{"past expiry", now.Add(-time.Minute), TokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blob := models.CredentialBlob{ExpiresAt: tc.expiresAt.UnixMilli()}
			assert.Equal(t, tc.want, StateOf(blob, now))
		})
	}
}

func TestEnsureTokenValidSkipsRefresh(t *testing.T) {
	store := NewStore(testDB(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	integ := seedIntegration(t, store, "agent-1", models.IntegrationZoho, models.CredentialBlob{
		AccessToken: "still-good",
		ExpiresAt:   now.Add(time.Hour).UnixMilli(),
	})

	refreshCalls := 0
	token, err := ensureToken(context.Background(), store, integ, func() time.Time { return now },
		func(ctx context.Context, blob models.CredentialBlob) (models.CredentialBlob, error) {
			refreshCalls++
			return models.CredentialBlob{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "still-good", token)
	assert.Zero(t, refreshCalls, "a valid token must not hit the network")
}

func TestEnsureTokenRefreshesAndPersists(t *testing.T) {
	store := NewStore(testDB(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	integ := seedIntegration(t, store, "agent-1", models.IntegrationZoho, models.CredentialBlob{
		AccessToken:    "stale",
		RefreshToken:   "refresh-1",
		AccountsServer: "https://accounts.zoho.eu",
		APIDomain:      "https://www.zohoapis.eu",
		ExpiresAt:      now.Add(2 * time.Minute).UnixMilli(),
	})

	refreshCalls := 0
	token, err := ensureToken(context.Background(), store, integ, func() time.Time { return now },
		func(ctx context.Context, blob models.CredentialBlob) (models.CredentialBlob, error) {
			refreshCalls++
			assert.Equal(t, "refresh-1", blob.RefreshToken)
			return models.CredentialBlob{
				AccessToken: "fresh",
				ExpiresAt:   now.Add(time.Hour).UnixMilli(),
			}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, 1, refreshCalls)

	// The persisted blob carries the old refresh token and region forward.
	saved, err := store.Get("agent-1", models.IntegrationZoho)
	require.NoError(t, err)
	blob, err := saved.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "fresh", blob.AccessToken)
	assert.Equal(t, "refresh-1", blob.RefreshToken)
	assert.Equal(t, "https://accounts.zoho.eu", blob.AccountsServer)
	assert.Equal(t, "https://www.zohoapis.eu", blob.APIDomain)
}

func TestEnsureTokenRefreshFailure(t *testing.T) {
	store := NewStore(testDB(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	integ := seedIntegration(t, store, "agent-1", models.IntegrationHubSpot, models.CredentialBlob{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(-time.Minute).UnixMilli(),
	})

	_, err := ensureToken(context.Background(), store, integ, func() time.Time { return now },
		func(ctx context.Context, blob models.CredentialBlob) (models.CredentialBlob, error) {
			return models.CredentialBlob{}, fmt.Errorf("provider is down")
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token refresh")

	// The stored blob is untouched on refresh failure.
	saved, err := store.Get("agent-1", models.IntegrationHubSpot)
	require.NoError(t, err)
	blob, err := saved.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "stale", blob.AccessToken)
}

func TestStoreGetNotConnected(t *testing.T) {
	store := NewStore(testDB(t))
	_, err := store.Get("agent-1", models.IntegrationZoho)
	assert.ErrorIs(t, err, ErrNotConnected)
}
