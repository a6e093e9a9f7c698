package api

import (
	"errors"
	"net/http"

	"channel-relay/internal/channels/webchat"
	"channel-relay/internal/ledger"
	"channel-relay/internal/models"
	"channel-relay/internal/relay"

	"github.com/gin-gonic/gin"
)

// WidgetHandler serves the embeddable webchat widget: message posts and
// the live websocket feed.
type WidgetHandler struct {
	Ledger *ledger.Ledger
	Relay  *relay.Relay
	Hub    *webchat.Hub
}

func NewWidgetHandler(l *ledger.Ledger, r *relay.Relay, hub *webchat.Hub) *WidgetHandler {
	return &WidgetHandler{Ledger: l, Relay: r, Hub: hub}
}

type widgetMessageRequest struct {
	VisitorID string `json:"visitor_id"`
	Text      string `json:"text" binding:"required"`
}

// PostMessage accepts one widget message. The site key in the path is the
// webchat channel's external id; a missing visitor_id starts a new session
// and the minted id is echoed back.
func (h *WidgetHandler) PostMessage(c *gin.Context) {
	siteKey := c.Param("siteKey")

	ch, err := h.Ledger.ResolveChannel(models.ProviderWebchat, siteKey)
	if err != nil {
		if errors.Is(err, ledger.ErrNoSuchChannel) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown site key"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req widgetMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	visitorID, err := h.Relay.HandleWebchat(c.Request.Context(), ch, req.VisitorID, req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"visitor_id": visitorID})
}

// ServeWs upgrades the connection for live message delivery. Widgets scope
// with ?visitor=; the dashboard omits it and sees every conversation.
func (h *WidgetHandler) ServeWs(c *gin.Context) {
	h.Hub.ServeWs(c.Writer, c.Request)
}
