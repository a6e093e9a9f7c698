package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"channel-relay/internal/models"
	wire "channel-relay/pkg/models"
)

// Zoho accounts servers, tried in sequence during initial authorization.
// The server that accepts the code is persisted and reused for every
// subsequent refresh; steady-state refreshes are not region-retried.
var zohoAccountsBases = []string{
	"https://accounts.zoho.com",
	"https://accounts.zoho.eu",
	"https://accounts.zoho.in",
	"https://accounts.zoho.com.au",
	"https://accounts.zoho.jp",
}

const zohoDefaultAPIDomain = "https://www.zohoapis.com"

// ZohoManager handles the Zoho OAuth lifecycle and lead/contact sync.
type ZohoManager struct {
	store        *Store
	events       *Events
	clientID     string
	clientSecret string
	redirectURL  string

	accountsBases []string
	apiDomain     string // override for tests; normally from the blob
	httpClient    *http.Client
	now           func() time.Time
}

func NewZohoManager(store *Store, events *Events, clientID, clientSecret, redirectURL string) (*ZohoManager, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("zoho client id and secret are required")
	}
	return &ZohoManager{
		store:         store,
		events:        events,
		clientID:      clientID,
		clientSecret:  clientSecret,
		redirectURL:   redirectURL,
		accountsBases: zohoAccountsBases,
		httpClient:    &http.Client{},
		now:           time.Now,
	}, nil
}

// SetAccountsBases overrides the data-center list. Used by tests.
func (z *ZohoManager) SetAccountsBases(bases []string) {
	z.accountsBases = bases
}

// SetAPIDomain forces the CRM API domain. Used by tests.
func (z *ZohoManager) SetAPIDomain(domain string) {
	z.apiDomain = domain
}

func (z *ZohoManager) Provider() models.IntegrationProvider {
	return models.IntegrationZoho
}

func (z *ZohoManager) oauthConfig(accountsBase string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     z.clientID,
		ClientSecret: z.clientSecret,
		RedirectURL:  z.redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   accountsBase + "/oauth/v2/auth",
			TokenURL:  accountsBase + "/oauth/v2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (z *ZohoManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, z.httpClient)
}

// Authorize exchanges an authorization code, trying each regional accounts
// server in sequence until one accepts it, and persists the credential blob
// together with the server that succeeded.
func (z *ZohoManager) Authorize(ctx context.Context, agentID, code string) error {
	ctx = z.oauthContext(ctx)

	var lastErr error
	for _, base := range z.accountsBases {
		tok, err := z.oauthConfig(base).Exchange(ctx, code)
		if err != nil {
			lastErr = err
			continue
		}

		blob := blobFromToken(tok)
		blob.AccountsServer = base
		if domain, ok := tok.Extra("api_domain").(string); ok && domain != "" {
			blob.APIDomain = domain
		}

		configJSON, err := json.Marshal(blob)
		if err != nil {
			return err
		}
		if _, err := z.store.Upsert(agentID, models.IntegrationZoho, string(configJSON)); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("zoho authorization rejected by all regions: %w", lastErr)
}

func (z *ZohoManager) refresh(ctx context.Context, blob models.CredentialBlob) (models.CredentialBlob, error) {
	base := blob.AccountsServer
	if base == "" {
		base = z.accountsBases[0]
	}
	src := z.oauthConfig(base).TokenSource(z.oauthContext(ctx), &oauth2.Token{
		RefreshToken: blob.RefreshToken,
	})
	tok, err := src.Token()
	if err != nil {
		return models.CredentialBlob{}, err
	}
	newBlob := blobFromToken(tok)
	newBlob.AccountsServer = base
	return newBlob, nil
}

// EnsureToken returns a valid access token for the agent's Zoho
// integration, refreshing first when needed.
func (z *ZohoManager) EnsureToken(ctx context.Context, agentID string) (string, *models.AgentIntegration, error) {
	integ, err := z.store.Get(agentID, models.IntegrationZoho)
	if err != nil {
		return "", nil, err
	}
	token, err := ensureToken(ctx, z.store, integ, z.now, z.refresh)
	if err != nil {
		return "", nil, err
	}
	return token, integ, nil
}

func blobFromToken(tok *oauth2.Token) models.CredentialBlob {
	return models.CredentialBlob{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry.UnixMilli(),
	}
}

func (z *ZohoManager) domain(integ *models.AgentIntegration) string {
	if z.apiDomain != "" {
		return z.apiDomain
	}
	if blob, err := integ.Credentials(); err == nil && blob.APIDomain != "" {
		return blob.APIDomain
	}
	return zohoDefaultAPIDomain
}

// UpsertContact upserts a Zoho Lead for the contact: search by email, then
// phone; update when found, create otherwise with required-field defaults.
// A supplied description becomes a separate Note attached to the lead; note
// failure is logged and swallowed.
func (z *ZohoManager) UpsertContact(ctx context.Context, agentID string, contact wire.ContactInput, existingRemoteID string) (string, error) {
	token, integ, err := z.EnsureToken(ctx, agentID)
	if err != nil {
		return "", err
	}
	domain := z.domain(integ)

	remoteID := existingRemoteID
	if remoteID == "" {
		remoteID, err = z.searchLead(ctx, domain, token, contact)
		if err != nil {
			return "", err
		}
	}

	fields := z.leadFields(contact, false)
	if remoteID != "" {
		if err := z.writeLead(ctx, http.MethodPut, domain+"/crm/v2/Leads", token, remoteID, fields); err != nil {
			return "", err
		}
	} else {
		remoteID, err = z.createLead(ctx, domain, token, fields)
		if err != nil {
			return "", err
		}
	}

	if contact.Description != "" {
		if err := z.attachNote(ctx, domain, token, remoteID, contact.Description); err != nil {
			log.Printf("Zoho note attach failed for lead %s: %v", remoteID, err)
		}
	}
	return remoteID, nil
}

// CreateLead is the Zoho-specific single-call variant: one Lead record is
// created with the description inline, no separate note.
func (z *ZohoManager) CreateLead(ctx context.Context, agentID string, contact wire.ContactInput) (string, error) {
	token, integ, err := z.EnsureToken(ctx, agentID)
	if err != nil {
		return "", err
	}
	return z.createLead(ctx, z.domain(integ), token, z.leadFields(contact, true))
}

func (z *ZohoManager) leadFields(contact wire.ContactInput, inlineDescription bool) map[string]interface{} {
	lastName := contact.Name
	if lastName == "" {
		lastName = "Unknown" // Zoho requires Last_Name
	}
	fields := map[string]interface{}{
		"Last_Name": lastName,
	}
	if contact.Email != "" {
		fields["Email"] = contact.Email
	}
	if contact.Phone != "" {
		fields["Phone"] = contact.Phone
	}
	if inlineDescription && contact.Description != "" {
		fields["Description"] = contact.Description
	}
	return fields
}

func (z *ZohoManager) searchLead(ctx context.Context, domain, token string, contact wire.ContactInput) (string, error) {
	if contact.Email != "" {
		id, err := z.searchBy(ctx, domain, token, "email", contact.Email)
		if err != nil || id != "" {
			return id, err
		}
	}
	if contact.Phone != "" {
		return z.searchBy(ctx, domain, token, "phone", contact.Phone)
	}
	return "", nil
}

func (z *ZohoManager) searchBy(ctx context.Context, domain, token, field, value string) (string, error) {
	u := fmt.Sprintf("%s/crm/v2/Leads/search?%s=%s", domain, field, url.QueryEscape(value))
	body, status, err := z.apiCall(ctx, http.MethodGet, u, token, nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNoContent {
		return "", nil
	}
	if status >= 400 {
		return "", fmt.Errorf("zoho search failed: HTTP %d - %s", status, string(body))
	}
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode zoho search response: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", nil
	}
	return resp.Data[0].ID, nil
}

func (z *ZohoManager) createLead(ctx context.Context, domain, token string, fields map[string]interface{}) (string, error) {
	body, status, err := z.apiCall(ctx, http.MethodPost, domain+"/crm/v2/Leads", token,
		map[string]interface{}{"data": []interface{}{fields}})
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("zoho lead create failed: HTTP %d - %s", status, string(body))
	}
	var resp struct {
		Data []struct {
			Details struct {
				ID string `json:"id"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode zoho create response: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].Details.ID == "" {
		return "", fmt.Errorf("zoho create returned no lead id")
	}
	return resp.Data[0].Details.ID, nil
}

func (z *ZohoManager) writeLead(ctx context.Context, method, u, token, id string, fields map[string]interface{}) error {
	fields["id"] = id
	body, status, err := z.apiCall(ctx, method, u, token,
		map[string]interface{}{"data": []interface{}{fields}})
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("zoho lead update failed: HTTP %d - %s", status, string(body))
	}
	return nil
}

func (z *ZohoManager) attachNote(ctx context.Context, domain, token, leadID, content string) error {
	u := fmt.Sprintf("%s/crm/v2/Leads/%s/Notes", domain, leadID)
	body, status, err := z.apiCall(ctx, http.MethodPost, u, token, map[string]interface{}{
		"data": []interface{}{map[string]string{
			"Note_Title":   "Conversation",
			"Note_Content": content,
		}},
	})
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("zoho note create failed: HTTP %d - %s", status, string(body))
	}
	return nil
}

func (z *ZohoManager) apiCall(ctx context.Context, method, u, token string, payload interface{}) ([]byte, int, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
