package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"channel-relay/internal/models"
	wire "channel-relay/pkg/models"
)

const (
	hubspotAuthURL  = "https://app.hubspot.com/oauth/authorize"
	hubspotTokenURL = "https://api.hubapi.com/oauth/v1/token"
	hubspotAPIBase  = "https://api.hubapi.com"
)

// note-to-contact association type in HubSpot's defined set
const hubspotNoteToContact = 202

// HubSpotManager handles the HubSpot OAuth lifecycle and contact sync.
// HubSpot has a single token endpoint; no region handling applies.
type HubSpotManager struct {
	store        *Store
	events       *Events
	clientID     string
	clientSecret string
	redirectURL  string

	tokenURL   string
	apiBase    string
	httpClient *http.Client
	now        func() time.Time
}

func NewHubSpotManager(store *Store, events *Events, clientID, clientSecret, redirectURL string) (*HubSpotManager, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("hubspot client id and secret are required")
	}
	return &HubSpotManager{
		store:        store,
		events:       events,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		tokenURL:     hubspotTokenURL,
		apiBase:      hubspotAPIBase,
		now:          time.Now,
		httpClient:   &http.Client{},
	}, nil
}

// SetEndpoints overrides the token endpoint and API base. Used by tests.
func (h *HubSpotManager) SetEndpoints(tokenURL, apiBase string) {
	h.tokenURL = tokenURL
	h.apiBase = apiBase
}

func (h *HubSpotManager) Provider() models.IntegrationProvider {
	return models.IntegrationHubSpot
}

func (h *HubSpotManager) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.clientID,
		ClientSecret: h.clientSecret,
		RedirectURL:  h.redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   hubspotAuthURL,
			TokenURL:  h.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (h *HubSpotManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, h.httpClient)
}

// Authorize exchanges an authorization code and persists the credential
// blob for the agent.
func (h *HubSpotManager) Authorize(ctx context.Context, agentID, code string) error {
	tok, err := h.oauthConfig().Exchange(h.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("hubspot code exchange: %w", err)
	}

	configJSON, err := json.Marshal(blobFromToken(tok))
	if err != nil {
		return err
	}
	_, err = h.store.Upsert(agentID, models.IntegrationHubSpot, string(configJSON))
	return err
}

func (h *HubSpotManager) refresh(ctx context.Context, blob models.CredentialBlob) (models.CredentialBlob, error) {
	src := h.oauthConfig().TokenSource(h.oauthContext(ctx), &oauth2.Token{
		RefreshToken: blob.RefreshToken,
	})
	tok, err := src.Token()
	if err != nil {
		return models.CredentialBlob{}, err
	}
	return blobFromToken(tok), nil
}

// EnsureToken returns a valid access token for the agent's HubSpot
// integration, refreshing and persisting first when needed.
func (h *HubSpotManager) EnsureToken(ctx context.Context, agentID string) (string, error) {
	integ, err := h.store.Get(agentID, models.IntegrationHubSpot)
	if err != nil {
		return "", err
	}
	return ensureToken(ctx, h.store, integ, h.now, h.refresh)
}

// UpsertContact upserts a HubSpot contact: search by email, then phone;
// update when found, create otherwise. A supplied description becomes a
// note engagement associated to the contact; note failure is logged and
// swallowed because contacts and notes are separate resources with
// separate association calls.
func (h *HubSpotManager) UpsertContact(ctx context.Context, agentID string, contact wire.ContactInput, existingRemoteID string) (string, error) {
	token, err := h.EnsureToken(ctx, agentID)
	if err != nil {
		return "", err
	}

	remoteID := existingRemoteID
	if remoteID == "" {
		remoteID, err = h.searchContact(ctx, token, contact)
		if err != nil {
			return "", err
		}
	}

	props := h.contactProperties(contact)
	if remoteID != "" {
		if err := h.updateContact(ctx, token, remoteID, props); err != nil {
			return "", err
		}
	} else {
		remoteID, err = h.createContact(ctx, token, props)
		if err != nil {
			return "", err
		}
	}

	if contact.Description != "" {
		if err := h.attachNote(ctx, token, remoteID, contact.Description); err != nil {
			log.Printf("HubSpot note attach failed for contact %s: %v", remoteID, err)
		}
	}
	return remoteID, nil
}

func (h *HubSpotManager) contactProperties(contact wire.ContactInput) map[string]string {
	props := map[string]string{}
	first, last := splitName(contact.Name)
	if first != "" {
		props["firstname"] = first
	}
	props["lastname"] = last
	if contact.Email != "" {
		props["email"] = contact.Email
	}
	if contact.Phone != "" {
		props["phone"] = contact.Phone
	}
	return props
}

func splitName(name string) (string, string) {
	first, last := "", "Unknown" // HubSpot records need a last name for display
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
	case 1:
		last = fields[0]
	default:
		first = fields[0]
		last = strings.Join(fields[1:], " ")
	}
	return first, last
}

func (h *HubSpotManager) searchContact(ctx context.Context, token string, contact wire.ContactInput) (string, error) {
	if contact.Email != "" {
		id, err := h.searchBy(ctx, token, "email", contact.Email)
		if err != nil || id != "" {
			return id, err
		}
	}
	if contact.Phone != "" {
		return h.searchBy(ctx, token, "phone", contact.Phone)
	}
	return "", nil
}

func (h *HubSpotManager) searchBy(ctx context.Context, token, property, value string) (string, error) {
	payload := map[string]interface{}{
		"filterGroups": []interface{}{map[string]interface{}{
			"filters": []interface{}{map[string]string{
				"propertyName": property,
				"operator":     "EQ",
				"value":        value,
			}},
		}},
		"limit": 1,
	}
	body, status, err := h.apiCall(ctx, http.MethodPost, h.apiBase+"/crm/v3/objects/contacts/search", token, payload)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("hubspot search failed: HTTP %d - %s", status, string(body))
	}
	var resp struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode hubspot search response: %w", err)
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return resp.Results[0].ID, nil
}

func (h *HubSpotManager) createContact(ctx context.Context, token string, props map[string]string) (string, error) {
	body, status, err := h.apiCall(ctx, http.MethodPost, h.apiBase+"/crm/v3/objects/contacts", token,
		map[string]interface{}{"properties": props})
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("hubspot contact create failed: HTTP %d - %s", status, string(body))
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode hubspot create response: %w", err)
	}
	return resp.ID, nil
}

func (h *HubSpotManager) updateContact(ctx context.Context, token, id string, props map[string]string) error {
	body, status, err := h.apiCall(ctx, http.MethodPatch, h.apiBase+"/crm/v3/objects/contacts/"+id, token,
		map[string]interface{}{"properties": props})
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("hubspot contact update failed: HTTP %d - %s", status, string(body))
	}
	return nil
}

func (h *HubSpotManager) attachNote(ctx context.Context, token, contactID, content string) error {
	payload := map[string]interface{}{
		"properties": map[string]string{
			"hs_note_body": content,
			"hs_timestamp": fmt.Sprintf("%d", h.now().UnixMilli()),
		},
		"associations": []interface{}{map[string]interface{}{
			"to": map[string]string{"id": contactID},
			"types": []interface{}{map[string]interface{}{
				"associationCategory": "HUBSPOT_DEFINED",
				"associationTypeId":   hubspotNoteToContact,
			}},
		}},
	}
	body, status, err := h.apiCall(ctx, http.MethodPost, h.apiBase+"/crm/v3/objects/notes", token, payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("hubspot note create failed: HTTP %d - %s", status, string(body))
	}
	return nil
}

func (h *HubSpotManager) apiCall(ctx context.Context, method, u, token string, payload interface{}) ([]byte, int, error) {
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
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
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
