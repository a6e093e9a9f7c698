package integrations

import (
	"log"
	"time"

	"gorm.io/gorm"

	"channel-relay/internal/models"
	wire "channel-relay/pkg/models"
)

// Events records every integration sync attempt and derives health from the
// trailing window counts.
type Events struct {
	db  *gorm.DB
	now func() time.Time
}

func NewEvents(db *gorm.DB) *Events {
	return &Events{db: db, now: time.Now}
}

// Record appends one audit row. Failures to write the audit log are logged
// and swallowed; health reporting degrades but sync flow is unaffected.
func (e *Events) Record(agentID string, provider models.IntegrationProvider, event string, status models.EventStatus, metadata string) {
	row := models.IntegrationEvent{
		AgentID:  agentID,
		Provider: provider,
		Event:    event,
		Status:   status,
		Metadata: metadata,
	}
	if err := e.db.Create(&row).Error; err != nil {
		log.Printf("Error recording integration event %s/%s: %v", provider, event, err)
	}
}

// Health derives the integration health summary: any ERROR in the trailing
// 24 hours means WARNING, otherwise EXCELLENT; SUCCESS events over the
// trailing 7 days serve as an activity counter.
func (e *Events) Health(agentID string, provider models.IntegrationProvider) (wire.HealthReport, error) {
	report := wire.HealthReport{Provider: string(provider), Status: wire.HealthExcellent}
	now := e.now()

	err := e.db.Model(&models.IntegrationEvent{}).
		Where("agent_id = ? AND provider = ? AND status = ? AND created_at > ?",
			agentID, provider, models.EventError, now.Add(-24*time.Hour)).
		Count(&report.ErrorsLast24h).Error
	if err != nil {
		return report, err
	}
	if report.ErrorsLast24h > 0 {
		report.Status = wire.HealthWarning
	}

	err = e.db.Model(&models.IntegrationEvent{}).
		Where("agent_id = ? AND provider = ? AND status = ? AND created_at > ?",
			agentID, provider, models.EventSuccess, now.Add(-7*24*time.Hour)).
		Count(&report.SyncsLast7d).Error
	return report, err
}
