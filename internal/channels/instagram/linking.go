package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"channel-relay/internal/ledger"
	"channel-relay/internal/models"
)

// LinkResult reports the outcome of a linking step. Debug is an ordered log
// of diagnostic strings: the setup UI shows partial progress, so failures
// are returned here instead of thrown past the boundary.
type LinkResult struct {
	Error string   `json:"error,omitempty"`
	Debug []string `json:"debug"`
}

func (r *LinkResult) logf(format string, args ...interface{}) {
	r.Debug = append(r.Debug, fmt.Sprintf(format, args...))
}

func (r *LinkResult) fail(format string, args ...interface{}) {
	r.Error = fmt.Sprintf(format, args...)
	r.Debug = append(r.Debug, r.Error)
}

// Account is a candidate Instagram business account found during linking.
type Account struct {
	IGAccountID     string `json:"ig_account_id"`
	PageID          string `json:"page_id"`
	PageName        string `json:"page_name"`
	PageAccessToken string `json:"page_access_token"`
}

// Linker runs the one-time Instagram account-linking OAuth flow.
type Linker struct {
	httpClient *http.Client
	graphBase  string
	appID      string
	appSecret  string
	ledger     *ledger.Ledger
}

func NewLinker(appID, appSecret string, l *ledger.Ledger) *Linker {
	return &Linker{
		httpClient: &http.Client{},
		graphBase:  defaultGraphBase,
		appID:      appID,
		appSecret:  appSecret,
		ledger:     l,
	}
}

// SetGraphBase overrides the Graph API base URL. Used by tests.
func (lk *Linker) SetGraphBase(base string) {
	lk.graphBase = base
}

// GetAccounts exchanges a short-lived user token for a long-lived one, then
// enumerates the user's pages and keeps those with a linked Instagram
// business messaging account.
func (lk *Linker) GetAccounts(ctx context.Context, shortLivedToken string) ([]Account, LinkResult) {
	var result LinkResult

	if lk.appID == "" || lk.appSecret == "" {
		result.fail("meta app credentials are not configured")
		return nil, result
	}

	longLived, err := lk.exchangeToken(ctx, shortLivedToken)
	if err != nil {
		result.fail("token exchange failed: %v", err)
		return nil, result
	}
	result.logf("exchanged short-lived token for long-lived token")

	pages, err := lk.listPages(ctx, longLived)
	if err != nil {
		result.fail("page enumeration failed: %v", err)
		return nil, result
	}
	result.logf("found %d page(s)", len(pages))

	var accounts []Account
	for _, p := range pages {
		if p.InstagramBusinessAccount == nil {
			result.logf("page %s has no linked instagram business account, skipping", p.Name)
			continue
		}
		accounts = append(accounts, Account{
			IGAccountID:     p.InstagramBusinessAccount.ID,
			PageID:          p.ID,
			PageName:        p.Name,
			PageAccessToken: p.AccessToken,
		})
		result.logf("page %s linked to IG account %s", p.Name, p.InstagramBusinessAccount.ID)
	}

	if len(accounts) == 0 {
		result.fail("no pages with a linked instagram business account")
		return nil, result
	}
	return accounts, result
}

// ConnectAccount verifies the chosen account+token pair with a lightweight
// read, then upserts a Channel keyed by the IG account id so reconnecting
// the same external account to a different agent updates rather than
// duplicates. A fresh verify token is generated at connect time.
func (lk *Linker) ConnectAccount(ctx context.Context, agentID string, acc Account) (*models.Channel, LinkResult) {
	var result LinkResult

	username, err := lk.probeAccount(ctx, acc)
	if err != nil {
		result.fail("account validation failed: %v", err)
		return nil, result
	}
	result.logf("validated IG account %s (@%s)", acc.IGAccountID, username)

	ch := &models.Channel{
		AgentID:     agentID,
		Provider:    models.ProviderInstagram,
		ExternalID:  acc.IGAccountID,
		DisplayName: acc.PageName,
		Active:      true,
	}
	if err := ch.SetConfig(models.InstagramConfig{
		IGAccountID:     acc.IGAccountID,
		PageAccessToken: acc.PageAccessToken,
		PageID:          acc.PageID,
		VerifyToken:     uuid.NewString(),
	}); err != nil {
		result.fail("encode channel config: %v", err)
		return nil, result
	}

	if err := lk.ledger.SaveChannel(ch); err != nil {
		result.fail("persist channel: %v", err)
		return nil, result
	}
	result.logf("channel %d connected for agent %s", ch.ID, agentID)
	return ch, result
}

func (lk *Linker) exchangeToken(ctx context.Context, shortLived string) (string, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", lk.appID)
	q.Set("client_secret", lk.appSecret)
	q.Set("fb_exchange_token", shortLived)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := lk.getJSON(ctx, lk.graphBase+"/oauth/access_token?"+q.Encode(), &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("no access token in exchange response")
	}
	return resp.AccessToken, nil
}

type page struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	AccessToken              string `json:"access_token"`
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

func (lk *Linker) listPages(ctx context.Context, token string) ([]page, error) {
	u := fmt.Sprintf("%s/me/accounts?fields=id,name,access_token,instagram_business_account&access_token=%s",
		lk.graphBase, url.QueryEscape(token))
	var resp struct {
		Data []page `json:"data"`
	}
	if err := lk.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (lk *Linker) probeAccount(ctx context.Context, acc Account) (string, error) {
	u := fmt.Sprintf("%s/%s?fields=id,username&access_token=%s",
		lk.graphBase, acc.IGAccountID, url.QueryEscape(acc.PageAccessToken))
	var resp struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := lk.getJSON(ctx, u, &resp); err != nil {
		return "", err
	}
	if resp.ID != acc.IGAccountID {
		return "", fmt.Errorf("account id mismatch: got %s", resp.ID)
	}
	return resp.Username, nil
}

func (lk *Linker) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := lk.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("graph api error: %s - %s", resp.Status, string(body))
	}
	return json.Unmarshal(body, out)
}
