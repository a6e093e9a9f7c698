package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"channel-relay/internal/models"
	wire "channel-relay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newZoho(t *testing.T, store *Store) *ZohoManager {
	t.Helper()
	z, err := NewZohoManager(store, NewEvents(testDB(t)), "client-id", "client-secret", "https://relay.example/oauth/zoho/callback")
	require.NoError(t, err)
	return z
}

func tokenResponse(w http.ResponseWriter, accessToken string, extra map[string]string) {
	body := map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": "refresh-1",
		"token_type":    "Bearer",
		"expires_in":    3600,
	}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func TestZohoAuthorizeTriesRegionsInOrder(t *testing.T) {
	var usBase, euBase string

	us := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_code"}`))
	}))
	defer us.Close()
	usBase = us.URL

	eu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "auth-code", r.Form.Get("code"))
		tokenResponse(w, "eu-access", map[string]string{"api_domain": "https://www.zohoapis.eu"})
	}))
	defer eu.Close()
	euBase = eu.URL

	store := NewStore(testDB(t))
	z := newZoho(t, store)
	z.SetAccountsBases([]string{usBase, euBase})

	require.NoError(t, z.Authorize(context.Background(), "agent-1", "auth-code"))

	integ, err := store.Get("agent-1", models.IntegrationZoho)
	require.NoError(t, err)
	blob, err := integ.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "eu-access", blob.AccessToken)
	assert.Equal(t, "refresh-1", blob.RefreshToken)
	assert.Equal(t, euBase, blob.AccountsServer, "the accepting region is persisted")
	assert.Equal(t, "https://www.zohoapis.eu", blob.APIDomain)
}

func TestZohoAuthorizeAllRegionsReject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_code"}`))
	}))
	defer srv.Close()

	store := NewStore(testDB(t))
	z := newZoho(t, store)
	z.SetAccountsBases([]string{srv.URL})

	err := z.Authorize(context.Background(), "agent-1", "bad-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected by all regions")

	_, err = store.Get("agent-1", models.IntegrationZoho)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestZohoUpsertContactUpdatesExisting(t *testing.T) {
	var searches, updates, creates int

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Zoho-oauthtoken valid-token", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/crm/v2/Leads/search":
			searches++
			assert.Equal(t, "ana@example.com", r.URL.Query().Get("email"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":[{"id":"lead-77"}]}`))
		case r.Method == http.MethodPut && r.URL.Path == "/crm/v2/Leads":
			updates++
			var payload struct {
				Data []map[string]interface{} `json:"data"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Len(t, payload.Data, 1)
			assert.Equal(t, "lead-77", payload.Data[0]["id"])
			assert.Equal(t, "Ana Diaz", payload.Data[0]["Last_Name"])
			w.Write([]byte(`{"data":[{"details":{"id":"lead-77"}}]}`))
		case r.Method == http.MethodPost:
			creates++
			w.Write([]byte(`{"data":[{"details":{"id":"lead-new"}}]}`))
		default:
			t.Errorf("unexpected zoho call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer api.Close()

	store := NewStore(testDB(t))
	z := newZoho(t, store)
	z.SetAPIDomain(api.URL)
	now := time.Now()
	z.now = func() time.Time { return now }

	seedIntegration(t, store, "agent-1", models.IntegrationZoho, models.CredentialBlob{
		AccessToken: "valid-token",
		ExpiresAt:   now.Add(time.Hour).UnixMilli(),
	})

	id, err := z.UpsertContact(context.Background(), "agent-1", wire.ContactInput{
		Name:  "Ana Diaz",
		Email: "ana@example.com",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "lead-77", id)
	assert.Equal(t, 1, searches)
	assert.Equal(t, 1, updates)
	assert.Zero(t, creates, "a found lead is updated, never duplicated")
}

func TestZohoUpsertContactCreatesAndAttachesNote(t *testing.T) {
	var noteBody string

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/crm/v2/Leads/search":
			// 204 means no match in Zoho's search API.
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v2/Leads":
			var payload struct {
				Data []map[string]interface{} `json:"data"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Len(t, payload.Data, 1)
			assert.Equal(t, "Unknown", payload.Data[0]["Last_Name"], "nameless contacts fall back to Unknown")
			assert.Equal(t, "+507612345", payload.Data[0]["Phone"])
			w.Write([]byte(`{"data":[{"details":{"id":"lead-9"}}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v2/Leads/lead-9/Notes":
			var payload struct {
				Data []map[string]string `json:"data"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Len(t, payload.Data, 1)
			noteBody = payload.Data[0]["Note_Content"]
			w.Write([]byte(`{"data":[{"details":{"id":"note-1"}}]}`))
		default:
			t.Errorf("unexpected zoho call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer api.Close()

	store := NewStore(testDB(t))
	z := newZoho(t, store)
	z.SetAPIDomain(api.URL)
	now := time.Now()
	z.now = func() time.Time { return now }

	seedIntegration(t, store, "agent-1", models.IntegrationZoho, models.CredentialBlob{
		AccessToken: "valid-token",
		ExpiresAt:   now.Add(time.Hour).UnixMilli(),
	})

	id, err := z.UpsertContact(context.Background(), "agent-1", wire.ContactInput{
		Phone:       "+507612345",
		Description: "asked about pricing",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "lead-9", id)
	assert.Equal(t, "asked about pricing", noteBody)
}

func TestZohoCreateLeadInlinesDescription(t *testing.T) {
	var notes int

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v2/Leads":
			var payload struct {
				Data []map[string]interface{} `json:"data"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Len(t, payload.Data, 1)
			assert.Equal(t, "Ana Diaz", payload.Data[0]["Last_Name"])
			assert.Equal(t, "asked about pricing", payload.Data[0]["Description"])
			w.Write([]byte(`{"data":[{"details":{"id":"lead-12"}}]}`))
		default:
			notes++
			w.Write([]byte(`{}`))
		}
	}))
	defer api.Close()

	store := NewStore(testDB(t))
	z := newZoho(t, store)
	z.SetAPIDomain(api.URL)
	now := time.Now()
	z.now = func() time.Time { return now }

	seedIntegration(t, store, "agent-1", models.IntegrationZoho, models.CredentialBlob{
		AccessToken: "valid-token",
		ExpiresAt:   now.Add(time.Hour).UnixMilli(),
	})

	id, err := z.CreateLead(context.Background(), "agent-1", wire.ContactInput{
		Name:        "Ana Diaz",
		Description: "asked about pricing",
	})
	require.NoError(t, err)
	assert.Equal(t, "lead-12", id)
	assert.Zero(t, notes, "the description travels inline, not as a note")
}

func TestZohoUpsertContactNoteFailureIsSwallowed(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/crm/v2/Leads/search":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v2/Leads":
			w.Write([]byte(`{"data":[{"details":{"id":"lead-9"}}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"notes are broken"}`))
		}
	}))
	defer api.Close()

	store := NewStore(testDB(t))
	z := newZoho(t, store)
	z.SetAPIDomain(api.URL)
	now := time.Now()
	z.now = func() time.Time { return now }

	seedIntegration(t, store, "agent-1", models.IntegrationZoho, models.CredentialBlob{
		AccessToken: "valid-token",
		ExpiresAt:   now.Add(time.Hour).UnixMilli(),
	})

	id, err := z.UpsertContact(context.Background(), "agent-1", wire.ContactInput{
		Phone:       "+507612345",
		Description: "asked about pricing",
	}, "")
	require.NoError(t, err, "note failure must not fail the upsert")
	assert.Equal(t, "lead-9", id)
}
