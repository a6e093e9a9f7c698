package api

import (
	"fmt"
	"log"
	"net/http"

	"channel-relay/internal/integrations"

	"github.com/gin-gonic/gin"
)

// OAuthHandler terminates the Zoho and HubSpot OAuth callback redirects.
// The state parameter carries the agent id the authorization belongs to.
type OAuthHandler struct {
	Zoho         *integrations.ZohoManager
	HubSpot      *integrations.HubSpotManager
	DashboardURL string
}

func NewOAuthHandler(zoho *integrations.ZohoManager, hubspot *integrations.HubSpotManager, dashboardURL string) *OAuthHandler {
	return &OAuthHandler{Zoho: zoho, HubSpot: hubspot, DashboardURL: dashboardURL}
}

func (h *OAuthHandler) ZohoCallback(c *gin.Context) {
	h.callback(c, "zoho", func(agentID, code string) error {
		if h.Zoho == nil {
			return fmt.Errorf("zoho integration not configured")
		}
		return h.Zoho.Authorize(c.Request.Context(), agentID, code)
	})
}

func (h *OAuthHandler) HubSpotCallback(c *gin.Context) {
	h.callback(c, "hubspot", func(agentID, code string) error {
		if h.HubSpot == nil {
			return fmt.Errorf("hubspot integration not configured")
		}
		return h.HubSpot.Authorize(c.Request.Context(), agentID, code)
	})
}

func (h *OAuthHandler) callback(c *gin.Context, provider string, authorize func(agentID, code string) error) {
	if errParam := c.Query("error"); errParam != "" {
		log.Printf("%s oauth callback returned error: %s", provider, errParam)
		h.redirect(c, provider, false)
		return
	}

	code := c.Query("code")
	agentID := c.Query("state")
	if code == "" || agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	if err := authorize(agentID, code); err != nil {
		log.Printf("%s authorization failed for agent %s: %v", provider, agentID, err)
		h.redirect(c, provider, false)
		return
	}

	h.redirect(c, provider, true)
}

func (h *OAuthHandler) redirect(c *gin.Context, provider string, success bool) {
	if h.DashboardURL == "" {
		if success {
			c.JSON(http.StatusOK, gin.H{"status": "connected", "provider": provider})
		} else {
			c.JSON(http.StatusBadGateway, gin.H{"error": "authorization failed", "provider": provider})
		}
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("%s/integrations?provider=%s&success=%t", h.DashboardURL, provider, success))
}
