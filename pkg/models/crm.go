package models

// ContactInput is the canonical contact shape handed to CRM dispatchers.
type ContactInput struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Description string `json:"description,omitempty"`
}

// HealthStatus summarizes integration health for the dashboard.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "EXCELLENT"
	HealthWarning   HealthStatus = "WARNING"
)

// HealthReport is the per-integration health summary derived from the
// integration event log.
type HealthReport struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	ErrorsLast24h int64        `json:"errors_last_24h"`
	SyncsLast7d   int64        `json:"syncs_last_7d"`
}

// ConversationSummary is the dashboard view of one conversation.
type ConversationSummary struct {
	ID                 uint   `json:"id"`
	VisitorID          string `json:"visitor_id"`
	LastMessageAt      string `json:"last_message_at"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
}
