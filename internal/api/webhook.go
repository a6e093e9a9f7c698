package api

import (
	"context"
	"log"
	"net/http"

	"channel-relay/internal/channels/whatsapp"
	"channel-relay/internal/config"
	"channel-relay/internal/ledger"
	"channel-relay/internal/relay"
	wire "channel-relay/pkg/models"

	"github.com/gin-gonic/gin"
)

// WebhookHandler terminates the Meta webhook: the GET verification
// handshake and the POST message deliveries.
type WebhookHandler struct {
	Config *config.Config
	Ledger *ledger.Ledger
	Relay  *relay.Relay
}

func NewWebhookHandler(cfg *config.Config, l *ledger.Ledger, r *relay.Relay) *WebhookHandler {
	return &WebhookHandler{Config: cfg, Ledger: l, Relay: r}
}

func (h *WebhookHandler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	if mode == "subscribe" && whatsapp.TokenAccepted(token, h.Config.MasterSecret, h.Config.GlobalVerifyToken, h.Ledger.ActiveVerifyTokens()) {
		log.Println("Webhook verified successfully!")
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

func (h *WebhookHandler) HandleMessage(c *gin.Context) {
	var payload wire.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("Error binding webhook JSON: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	// Acknowledge immediately; Meta redelivers on slow responses. All
	// routing failures past this point are internal only.
	go h.Relay.HandleWhatsApp(context.WithoutCancel(c.Request.Context()), payload)

	c.Status(http.StatusOK)
}
