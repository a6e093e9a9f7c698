// Package integrations holds the per-tenant credential store, the provider
// token refresh managers, and the CRM dispatchers.
package integrations

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"channel-relay/internal/models"
)

// ErrNotConnected means no integration record exists for (agent, provider).
var ErrNotConnected = errors.New("integration not connected")

// Store persists per-agent-per-provider credential blobs.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get loads the integration record for (agent, provider).
func (s *Store) Get(agentID string, provider models.IntegrationProvider) (*models.AgentIntegration, error) {
	var integ models.AgentIntegration
	err := s.db.Where("agent_id = ? AND provider = ?", agentID, provider).First(&integ).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load integration: %w", err)
	}
	return &integ, nil
}

// Upsert creates or replaces the integration record for (agent, provider),
// as on an OAuth callback or manual connect.
func (s *Store) Upsert(agentID string, provider models.IntegrationProvider, configJSON string) (*models.AgentIntegration, error) {
	integ, err := s.Get(agentID, provider)
	switch {
	case err == nil:
		integ.Config = configJSON
		integ.Enabled = true
		if err := s.db.Save(integ).Error; err != nil {
			return nil, fmt.Errorf("update integration: %w", err)
		}
		return integ, nil
	case errors.Is(err, ErrNotConnected):
		integ = &models.AgentIntegration{
			AgentID:  agentID,
			Provider: provider,
			Enabled:  true,
			Config:   configJSON,
		}
		if err := s.db.Create(integ).Error; err != nil {
			return nil, fmt.Errorf("create integration: %w", err)
		}
		return integ, nil
	default:
		return nil, err
	}
}

// SaveCredentials persists a refreshed credential blob. Writers do not
// coordinate; the last successful refresh wins, and a stale concurrent
// refresh leaves a still-valid token behind.
func (s *Store) SaveCredentials(integ *models.AgentIntegration, blob models.CredentialBlob) error {
	if err := integ.SetCredentials(blob); err != nil {
		return err
	}
	return s.db.Model(integ).Update("config", integ.Config).Error
}

// Delete removes the record on explicit disconnect.
func (s *Store) Delete(agentID string, provider models.IntegrationProvider) error {
	return s.db.Where("agent_id = ? AND provider = ?", agentID, provider).
		Delete(&models.AgentIntegration{}).Error
}

// List returns all integration records for an agent.
func (s *Store) List(agentID string) ([]models.AgentIntegration, error) {
	var integrations []models.AgentIntegration
	if err := s.db.Where("agent_id = ?", agentID).Find(&integrations).Error; err != nil {
		return nil, err
	}
	return integrations, nil
}
