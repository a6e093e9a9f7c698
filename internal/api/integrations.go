package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"channel-relay/internal/integrations"
	"channel-relay/internal/models"
	wire "channel-relay/pkg/models"

	"github.com/gin-gonic/gin"
)

// IntegrationHandler serves the dashboard integration views: connection
// listing, health reports, lead capture, and disconnect.
type IntegrationHandler struct {
	Store  *integrations.Store
	Events *integrations.Events
	Zoho   *integrations.ZohoManager
}

func NewIntegrationHandler(store *integrations.Store, events *integrations.Events, zoho *integrations.ZohoManager) *IntegrationHandler {
	return &IntegrationHandler{Store: store, Events: events, Zoho: zoho}
}

func (h *IntegrationHandler) List(c *gin.Context) {
	agentID := c.Param("agentId")

	list, err := h.Store.List(agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Credentials never leave the service.
	type connection struct {
		Provider  models.IntegrationProvider `json:"provider"`
		CreatedAt string                     `json:"created_at"`
	}
	connections := make([]connection, 0, len(list))
	for _, integ := range list {
		connections = append(connections, connection{
			Provider:  integ.Provider,
			CreatedAt: integ.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, connections)
}

func (h *IntegrationHandler) Health(c *gin.Context) {
	agentID := c.Param("agentId")
	provider := models.IntegrationProvider(c.Query("provider"))

	if provider != "" {
		report, err := h.Events.Health(agentID, provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
		return
	}

	list, err := h.Store.List(agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	reports := make([]wire.HealthReport, 0, len(list))
	for _, integ := range list {
		report, err := h.Events.Health(agentID, integ.Provider)
		if err != nil {
			continue
		}
		reports = append(reports, report)
	}
	c.JSON(http.StatusOK, reports)
}

type connectOdooRequest struct {
	AgentID  string `json:"agent_id" binding:"required"`
	URL      string `json:"url" binding:"required"`
	Database string `json:"database" binding:"required"`
	Username string `json:"username" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// ConnectOdoo stores Odoo server credentials. Odoo authenticates per call
// over JSON-RPC, so there is no OAuth handshake to run here.
func (h *IntegrationHandler) ConnectOdoo(c *gin.Context) {
	var req connectOdooRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := models.OdooConfig{
		URL:      req.URL,
		Database: req.Database,
		Username: req.Username,
		APIKey:   req.APIKey,
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.Store.Upsert(req.AgentID, models.IntegrationOdoo, string(data)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "connected", "provider": models.IntegrationOdoo})
}

type createLeadRequest struct {
	AgentID     string `json:"agent_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Description string `json:"description"`
}

// CreateZohoLead captures a lead from a dashboard form as a single Zoho
// record, description inline rather than as a separate note.
func (h *IntegrationHandler) CreateZohoLead(c *gin.Context) {
	if h.Zoho == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "zoho is not configured"})
		return
	}

	var req createLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.Zoho.CreateLead(c.Request.Context(), req.AgentID, wire.ContactInput{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, integrations.ErrNotConnected) {
			c.JSON(http.StatusConflict, gin.H{"error": "zoho is not connected for this agent"})
			return
		}
		log.Printf("Zoho lead create failed for agent %s: %v", req.AgentID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "lead creation failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	agentID := c.Param("agentId")
	provider := models.IntegrationProvider(c.Param("provider"))

	if err := h.Store.Delete(agentID, provider); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}
