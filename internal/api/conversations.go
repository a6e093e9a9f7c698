package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"channel-relay/internal/ledger"
	"channel-relay/internal/relay"
	wire "channel-relay/pkg/models"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves the dashboard conversation views and the
// manual operator send.
type ConversationHandler struct {
	Ledger *ledger.Ledger
	Relay  *relay.Relay
}

func NewConversationHandler(l *ledger.Ledger, r *relay.Relay) *ConversationHandler {
	return &ConversationHandler{Ledger: l, Relay: r}
}

func (h *ConversationHandler) ListConversations(c *gin.Context) {
	channelID, err := strconv.ParseUint(c.Query("channel_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_id"})
		return
	}

	convs, err := h.Ledger.Conversations(uint(channelID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summaries := make([]wire.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		preview := ""
		if last, err := h.Ledger.LastMessage(conv.ID); err == nil && last != nil {
			preview = previewText(last.Content)
		}
		summaries = append(summaries, wire.ConversationSummary{
			ID:                 conv.ID,
			VisitorID:          conv.ExternalID,
			LastMessageAt:      conv.LastMessageAt.Format(time.RFC3339),
			LastMessagePreview: preview,
		})
	}

	c.JSON(http.StatusOK, summaries)
}

func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := h.Ledger.Messages(uint(conversationID), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// previewText trims message content to a list-view snippet.
func previewText(s string) string {
	const max = 120
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

type operatorSendRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage lets a human operator inject a reply into a conversation.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	conversationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req operatorSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.Relay.SendOperator(c.Request.Context(), uint(conversationID), req.Text)
	if err != nil {
		if msg != nil {
			// Persisted but the provider send failed; surface both facts.
			log.Printf("Operator send delivery failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"message": msg, "delivery_error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, msg)
}
