package integrations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"channel-relay/internal/models"
	wire "channel-relay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthExcellentWithNoEvents(t *testing.T) {
	events := NewEvents(testDB(t))

	report, err := events.Health("agent-1", models.IntegrationZoho)
	require.NoError(t, err)
	assert.Equal(t, wire.HealthExcellent, report.Status)
	assert.Zero(t, report.ErrorsLast24h)
	assert.Zero(t, report.SyncsLast7d)
}

func TestHealthWarningOnRecentError(t *testing.T) {
	events := NewEvents(testDB(t))
	events.Record("agent-1", models.IntegrationZoho, "contact_upsert", models.EventError, "HTTP 500")
	events.Record("agent-1", models.IntegrationZoho, "contact_upsert", models.EventSuccess, "")

	report, err := events.Health("agent-1", models.IntegrationZoho)
	require.NoError(t, err)
	assert.Equal(t, wire.HealthWarning, report.Status)
	assert.Equal(t, int64(1), report.ErrorsLast24h)
	assert.Equal(t, int64(1), report.SyncsLast7d)
}

func TestHealthOldErrorsAgeOut(t *testing.T) {
	db := testDB(t)
	events := NewEvents(db)
	events.Record("agent-1", models.IntegrationHubSpot, "contact_upsert", models.EventError, "HTTP 500")

	// Shift the clock two days forward; yesterday's error no longer warns.
	events.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	report, err := events.Health("agent-1", models.IntegrationHubSpot)
	require.NoError(t, err)
	assert.Equal(t, wire.HealthExcellent, report.Status)
	assert.Zero(t, report.ErrorsLast24h)
}

func TestHealthScopedToAgentAndProvider(t *testing.T) {
	events := NewEvents(testDB(t))
	events.Record("agent-2", models.IntegrationZoho, "contact_upsert", models.EventError, "HTTP 500")
	events.Record("agent-1", models.IntegrationHubSpot, "contact_upsert", models.EventError, "HTTP 500")

	report, err := events.Health("agent-1", models.IntegrationZoho)
	require.NoError(t, err)
	assert.Equal(t, wire.HealthExcellent, report.Status)
}

type stubDispatcher struct {
	provider models.IntegrationProvider
	remoteID string
	err      error
}

func (s stubDispatcher) Provider() models.IntegrationProvider { return s.provider }

func (s stubDispatcher) UpsertContact(ctx context.Context, agentID string, contact wire.ContactInput, existingRemoteID string) (string, error) {
	return s.remoteID, s.err
}

func TestDispatchRecordsOutcome(t *testing.T) {
	db := testDB(t)
	events := NewEvents(db)

	_, err := Dispatch(context.Background(), events, stubDispatcher{
		provider: models.IntegrationZoho,
		remoteID: "lead-1",
	}, "agent-1", wire.ContactInput{Name: "Ana"}, "")
	require.NoError(t, err)

	_, err = Dispatch(context.Background(), events, stubDispatcher{
		provider: models.IntegrationZoho,
		err:      fmt.Errorf("HTTP 500"),
	}, "agent-1", wire.ContactInput{Name: "Ana"}, "")
	require.Error(t, err)

	report, err := events.Health("agent-1", models.IntegrationZoho)
	require.NoError(t, err)
	assert.Equal(t, wire.HealthWarning, report.Status)
	assert.Equal(t, int64(1), report.ErrorsLast24h)
	assert.Equal(t, int64(1), report.SyncsLast7d)
}

func TestDispatchSkipsAuditWhenNotConnected(t *testing.T) {
	db := testDB(t)
	events := NewEvents(db)

	_, err := Dispatch(context.Background(), events, stubDispatcher{
		provider: models.IntegrationHubSpot,
		err:      ErrNotConnected,
	}, "agent-1", wire.ContactInput{Name: "Ana"}, "")
	assert.ErrorIs(t, err, ErrNotConnected)

	var count int64
	require.NoError(t, db.Model(&models.IntegrationEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}
