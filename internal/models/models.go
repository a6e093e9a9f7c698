package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChannelProvider identifies which external messaging surface a channel is
// bound to.
type ChannelProvider string

const (
	ProviderWhatsApp  ChannelProvider = "WHATSAPP"
	ProviderInstagram ChannelProvider = "INSTAGRAM"
	ProviderWebchat   ChannelProvider = "WEBCHAT"
)

// IntegrationProvider identifies an external CRM/integration target.
type IntegrationProvider string

const (
	IntegrationZoho           IntegrationProvider = "ZOHO"
	IntegrationHubSpot        IntegrationProvider = "HUBSPOT"
	IntegrationOdoo           IntegrationProvider = "ODOO"
	IntegrationAltaplaza      IntegrationProvider = "ALTAPLAZA"
	IntegrationGoogleCalendar IntegrationProvider = "GOOGLE_CALENDAR"
)

// Role classifies who produced a message.
type Role string

const (
	RoleEndUser Role = "END_USER"
	RoleAI      Role = "AI"
	RoleHuman   Role = "HUMAN"
)

// Channel represents one connected external surface for one agent.
// ExternalID carries the provider-issued routing key (phone_number_id for
// WhatsApp, IG business account id for Instagram, a generated id for
// webchat) and is unique per provider so inbound routing never resolves to
// more than one channel.
type Channel struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	AgentID     string          `gorm:"type:varchar(64);index;not null" json:"agent_id"`
	Provider    ChannelProvider `gorm:"type:varchar(20);uniqueIndex:idx_provider_external" json:"provider"`
	ExternalID  string          `gorm:"type:varchar(255);uniqueIndex:idx_provider_external" json:"external_id"`
	DisplayName string          `gorm:"type:varchar(255)" json:"display_name"`
	Active      bool            `gorm:"default:true" json:"active"`
	Config      string          `gorm:"type:text" json:"-"` // provider config JSON, see *Config types
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Channel) TableName() string {
	return "channels"
}

// WhatsAppConfig is the decoded config blob for a WHATSAPP channel.
type WhatsAppConfig struct {
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"access_token"`
	VerifyToken   string `json:"verify_token"`
}

func (c WhatsAppConfig) validate() error {
	if c.PhoneNumberID == "" || c.AccessToken == "" {
		return fmt.Errorf("whatsapp config missing phone_number_id or access_token")
	}
	return nil
}

// InstagramConfig is the decoded config blob for an INSTAGRAM channel.
type InstagramConfig struct {
	IGAccountID     string `json:"ig_account_id"`
	PageAccessToken string `json:"page_access_token"`
	PageID          string `json:"page_id,omitempty"`
	VerifyToken     string `json:"verify_token"`
}

func (c InstagramConfig) validate() error {
	if c.IGAccountID == "" || c.PageAccessToken == "" {
		return fmt.Errorf("instagram config missing ig_account_id or page_access_token")
	}
	return nil
}

// WhatsApp decodes and validates the channel config as a WhatsApp config.
func (c *Channel) WhatsApp() (WhatsAppConfig, error) {
	var cfg WhatsAppConfig
	if c.Provider != ProviderWhatsApp {
		return cfg, fmt.Errorf("channel %d is %s, not WHATSAPP", c.ID, c.Provider)
	}
	if err := json.Unmarshal([]byte(c.Config), &cfg); err != nil {
		return cfg, fmt.Errorf("decode whatsapp config: %w", err)
	}
	return cfg, cfg.validate()
}

// Instagram decodes and validates the channel config as an Instagram config.
func (c *Channel) Instagram() (InstagramConfig, error) {
	var cfg InstagramConfig
	if c.Provider != ProviderInstagram {
		return cfg, fmt.Errorf("channel %d is %s, not INSTAGRAM", c.ID, c.Provider)
	}
	if err := json.Unmarshal([]byte(c.Config), &cfg); err != nil {
		return cfg, fmt.Errorf("decode instagram config: %w", err)
	}
	return cfg, cfg.validate()
}

// SetConfig serializes a typed provider config into the blob column.
func (c *Channel) SetConfig(cfg interface{}) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	c.Config = string(data)
	return nil
}

// Conversation is the thread between one visitor and one channel. The
// visitor's provider-side id is unique within the channel; the row is
// created lazily on first message and never deleted.
type Conversation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ChannelID     uint      `gorm:"uniqueIndex:idx_channel_visitor;not null" json:"channel_id"`
	ExternalID    string    `gorm:"type:varchar(255);uniqueIndex:idx_channel_visitor;not null" json:"external_id"`
	AgentID       string    `gorm:"type:varchar(64);index" json:"agent_id"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message is an append-only ledger row. Rows are never updated after
// creation; ordering is creation-timestamp order.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index;not null" json:"conversation_id"`
	Role           Role      `gorm:"type:varchar(20);not null" json:"role"`
	Content        string    `gorm:"type:text" json:"content"`
	Metadata       string    `gorm:"type:text" json:"-"` // MessageMetadata JSON
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// MessageMetadata carries optional per-message context: sender identity,
// media info, and the delivery error of the outbound attempt if one failed.
type MessageMetadata struct {
	Sender          string `json:"sender,omitempty"`
	MediaType       string `json:"media_type,omitempty"`
	MediaURL        string `json:"media_url,omitempty"`
	OriginalMediaID string `json:"original_media_id,omitempty"`
	DeliveryError   string `json:"delivery_error,omitempty"`
}

// Meta decodes the metadata blob. An empty blob yields the zero value.
func (m *Message) Meta() MessageMetadata {
	var meta MessageMetadata
	if m.Metadata != "" {
		json.Unmarshal([]byte(m.Metadata), &meta)
	}
	return meta
}

// SetMeta serializes metadata onto the row. Must be called before the row
// is created; messages are immutable afterwards.
func (m *Message) SetMeta(meta MessageMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	m.Metadata = string(data)
	return nil
}

// AgentIntegration holds one per-agent-per-provider credential/config blob.
type AgentIntegration struct {
	ID        uint                `gorm:"primaryKey" json:"id"`
	AgentID   string              `gorm:"type:varchar(64);uniqueIndex:idx_agent_provider;not null" json:"agent_id"`
	Provider  IntegrationProvider `gorm:"type:varchar(30);uniqueIndex:idx_agent_provider;not null" json:"provider"`
	Enabled   bool                `gorm:"default:true" json:"enabled"`
	Config    string              `gorm:"type:text" json:"-"` // CredentialBlob or OdooConfig JSON
	CreatedAt time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AgentIntegration) TableName() string {
	return "agent_integrations"
}

// CredentialBlob is the persisted OAuth credential shape for Zoho and
// HubSpot. ExpiresAt is epoch milliseconds. Zoho additionally records which
// accounts server accepted the initial authorization and its API domain.
type CredentialBlob struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	ExpiresIn      int64  `json:"expires_in,omitempty"`
	ExpiresAt      int64  `json:"expires_at"`
	APIDomain      string `json:"api_domain,omitempty"`
	AccountsServer string `json:"accounts_server,omitempty"`
	TokenType      string `json:"token_type,omitempty"`
}

// OdooConfig is the persisted config for an Odoo integration. Odoo uses
// database credentials over JSON-RPC rather than OAuth.
type OdooConfig struct {
	URL      string `json:"url"`
	Database string `json:"database"`
	Username string `json:"username"`
	APIKey   string `json:"api_key"`
}

// Credentials decodes the config blob as an OAuth credential blob.
func (i *AgentIntegration) Credentials() (CredentialBlob, error) {
	var blob CredentialBlob
	if err := json.Unmarshal([]byte(i.Config), &blob); err != nil {
		return blob, fmt.Errorf("decode credential blob: %w", err)
	}
	return blob, nil
}

// Odoo decodes the config blob as an Odoo config.
func (i *AgentIntegration) Odoo() (OdooConfig, error) {
	var cfg OdooConfig
	if err := json.Unmarshal([]byte(i.Config), &cfg); err != nil {
		return cfg, fmt.Errorf("decode odoo config: %w", err)
	}
	if cfg.URL == "" || cfg.Database == "" {
		return cfg, fmt.Errorf("odoo config missing url or database")
	}
	return cfg, nil
}

// SetCredentials serializes a credential blob into the config column.
func (i *AgentIntegration) SetCredentials(blob CredentialBlob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	i.Config = string(data)
	return nil
}

// EventStatus is the outcome of one integration sync attempt.
type EventStatus string

const (
	EventSuccess EventStatus = "SUCCESS"
	EventError   EventStatus = "ERROR"
)

// IntegrationEvent is an append-only audit row for every integration sync
// attempt. Used for health reporting only; never mutated.
type IntegrationEvent struct {
	ID        uint                `gorm:"primaryKey" json:"id"`
	AgentID   string              `gorm:"type:varchar(64);index" json:"agent_id"`
	Provider  IntegrationProvider `gorm:"type:varchar(30);index" json:"provider"`
	Event     string              `gorm:"type:varchar(100)" json:"event"`
	Status    EventStatus         `gorm:"type:varchar(10);index" json:"status"`
	Metadata  string              `gorm:"type:text" json:"metadata"`
	CreatedAt time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
}

func (IntegrationEvent) TableName() string {
	return "integration_events"
}
