package instagram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"channel-relay/internal/ledger"
	"channel-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Channel{}, &models.Conversation{}, &models.Message{}))
	l, err := ledger.New(db)
	require.NoError(t, err)
	return l
}

func graphStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/access_token":
			assert.Equal(t, "fb_exchange_token", r.URL.Query().Get("grant_type"))
			fmt.Fprint(w, `{"access_token":"long-lived"}`)
		case "/me/accounts":
			assert.Equal(t, "long-lived", r.URL.Query().Get("access_token"))
			fmt.Fprint(w, `{"data":[
				{"id":"page-1","name":"No IG Page","access_token":"pat-1"},
				{"id":"page-2","name":"Shop Page","access_token":"pat-2",
					"instagram_business_account":{"id":"ig-99"}}
			]}`)
		case "/ig-99":
			fmt.Fprint(w, `{"id":"ig-99","username":"shop.page"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestGetAccountsFiltersPagesWithoutIG(t *testing.T) {
	srv := graphStub(t)
	defer srv.Close()

	lk := NewLinker("app-id", "app-secret", testLedger(t))
	lk.SetGraphBase(srv.URL)

	accounts, result := lk.GetAccounts(context.Background(), "short-lived")
	require.Empty(t, result.Error, result.Debug)
	require.Len(t, accounts, 1)
	assert.Equal(t, "ig-99", accounts[0].IGAccountID)
	assert.Equal(t, "page-2", accounts[0].PageID)
	assert.Equal(t, "pat-2", accounts[0].PageAccessToken)
	assert.NotEmpty(t, result.Debug, "setup UI shows the step trail")
}

func TestGetAccountsMissingAppCredentials(t *testing.T) {
	lk := NewLinker("", "", testLedger(t))

	accounts, result := lk.GetAccounts(context.Background(), "short-lived")
	assert.Nil(t, accounts)
	assert.Contains(t, result.Error, "not configured")
}

func TestConnectAccountUpserts(t *testing.T) {
	srv := graphStub(t)
	defer srv.Close()

	l := testLedger(t)
	lk := NewLinker("app-id", "app-secret", l)
	lk.SetGraphBase(srv.URL)

	acc := Account{IGAccountID: "ig-99", PageID: "page-2", PageName: "Shop Page", PageAccessToken: "pat-2"}

	ch, result := lk.ConnectAccount(context.Background(), "agent-1", acc)
	require.Empty(t, result.Error, result.Debug)
	require.NotNil(t, ch)

	resolved, err := l.ResolveChannel(models.ProviderInstagram, "ig-99")
	require.NoError(t, err)
	assert.Equal(t, ch.ID, resolved.ID)

	cfg, err := resolved.Instagram()
	require.NoError(t, err)
	assert.Equal(t, "pat-2", cfg.PageAccessToken)
	assert.NotEmpty(t, cfg.VerifyToken)

	// Reconnecting the same IG account updates the existing channel row.
	again, result := lk.ConnectAccount(context.Background(), "agent-1", acc)
	require.Empty(t, result.Error, result.Debug)
	assert.Equal(t, ch.ID, again.ID)
}

func TestConnectAccountRejectsMismatchedProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"some-other-account","username":"impostor"}`)
	}))
	defer srv.Close()

	lk := NewLinker("app-id", "app-secret", testLedger(t))
	lk.SetGraphBase(srv.URL)

	ch, result := lk.ConnectAccount(context.Background(), "agent-1", Account{
		IGAccountID: "ig-99", PageAccessToken: "pat-2",
	})
	assert.Nil(t, ch)
	assert.Contains(t, result.Error, "validation failed")
}
