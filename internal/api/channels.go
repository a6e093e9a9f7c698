package api

import (
	"net/http"
	"strconv"

	"channel-relay/internal/channels/instagram"
	"channel-relay/internal/ledger"
	"channel-relay/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChannelHandler manages channel connections: WhatsApp number onboarding,
// Instagram account linking, listing, and soft-disable.
type ChannelHandler struct {
	Ledger *ledger.Ledger
	Linker *instagram.Linker
}

func NewChannelHandler(l *ledger.Ledger, linker *instagram.Linker) *ChannelHandler {
	return &ChannelHandler{Ledger: l, Linker: linker}
}

type connectWhatsAppRequest struct {
	AgentID       string `json:"agent_id" binding:"required"`
	PhoneNumberID string `json:"phone_number_id" binding:"required"`
	AccessToken   string `json:"access_token" binding:"required"`
	DisplayName   string `json:"display_name"`
}

// ConnectWhatsApp registers a WhatsApp Business number. A fresh verify
// token is minted per channel; the caller configures it on the Meta app.
func (h *ChannelHandler) ConnectWhatsApp(c *gin.Context) {
	var req connectWhatsAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := models.WhatsAppConfig{
		PhoneNumberID: req.PhoneNumberID,
		AccessToken:   req.AccessToken,
		VerifyToken:   uuid.NewString(),
	}

	ch := &models.Channel{
		AgentID:     req.AgentID,
		Provider:    models.ProviderWhatsApp,
		ExternalID:  req.PhoneNumberID,
		DisplayName: req.DisplayName,
		Active:      true,
	}
	if err := ch.SetConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.Ledger.SaveChannel(ch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"channel": ch, "verify_token": cfg.VerifyToken})
}

type connectWebchatRequest struct {
	AgentID     string `json:"agent_id" binding:"required"`
	DisplayName string `json:"display_name"`
}

// ConnectWebchat creates a webchat channel for the embeddable widget. The
// generated external id doubles as the widget's site key.
func (h *ChannelHandler) ConnectWebchat(c *gin.Context) {
	var req connectWebchatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch := &models.Channel{
		AgentID:     req.AgentID,
		Provider:    models.ProviderWebchat,
		ExternalID:  uuid.NewString(),
		DisplayName: req.DisplayName,
		Active:      true,
		Config:      "{}",
	}
	if err := h.Ledger.SaveChannel(ch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"channel": ch, "site_key": ch.ExternalID})
}

func (h *ChannelHandler) ListChannels(c *gin.Context) {
	provider := models.ChannelProvider(c.Query("provider"))
	channels, err := h.Ledger.Channels(provider)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	c.JSON(http.StatusOK, channels)
}

// DisableChannel soft-disables a channel. The row and its conversations
// stay; inbound routing stops resolving to it.
func (h *ChannelHandler) DisableChannel(c *gin.Context) {
	channelID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	if err := h.Ledger.SetChannelActive(uint(channelID), false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "channel disabled"})
}

type instagramAccountsRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

// InstagramAccounts exchanges a short-lived user token and returns the
// linkable Instagram business accounts, with the step-by-step debug trail
// the dashboard shows on failure.
func (h *ChannelHandler) InstagramAccounts(c *gin.Context) {
	var req instagramAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accounts, result := h.Linker.GetAccounts(c.Request.Context(), req.AccessToken)
	if result.Error != "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": result.Error, "debug": result.Debug})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts, "debug": result.Debug})
}

type connectInstagramRequest struct {
	AgentID string            `json:"agent_id" binding:"required"`
	Account instagram.Account `json:"account" binding:"required"`
}

func (h *ChannelHandler) ConnectInstagram(c *gin.Context) {
	var req connectInstagramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, result := h.Linker.ConnectAccount(c.Request.Context(), req.AgentID, req.Account)
	if result.Error != "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": result.Error, "debug": result.Debug})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"channel": ch, "debug": result.Debug})
}
