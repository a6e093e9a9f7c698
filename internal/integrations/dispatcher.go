package integrations

import (
	"context"
	"errors"
	"fmt"

	"channel-relay/internal/models"
	wire "channel-relay/pkg/models"
)

// Dispatcher is the common contract for CRM lead/contact sync. Resolution
// order when no remote id is known: search by email, then by phone; update
// when found, create otherwise. A supplied description is attached as a
// separate note after the contact upsert; note failures are logged and
// swallowed, never rolling back the contact.
type Dispatcher interface {
	Provider() models.IntegrationProvider
	UpsertContact(ctx context.Context, agentID string, contact wire.ContactInput, existingRemoteID string) (string, error)
}

// Dispatch runs one sync attempt and records its outcome in the audit log.
// A provider the agent never connected is not an outcome worth auditing.
func Dispatch(ctx context.Context, events *Events, d Dispatcher, agentID string, contact wire.ContactInput, existingRemoteID string) (string, error) {
	remoteID, err := d.UpsertContact(ctx, agentID, contact, existingRemoteID)
	if errors.Is(err, ErrNotConnected) {
		return "", err
	}
	if err != nil {
		events.Record(agentID, d.Provider(), "contact_upsert", models.EventError, err.Error())
		return "", err
	}
	events.Record(agentID, d.Provider(), "contact_upsert", models.EventSuccess, fmt.Sprintf(`{"remote_id":%q}`, remoteID))
	return remoteID, nil
}
