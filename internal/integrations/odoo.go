package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"channel-relay/internal/models"
	wire "channel-relay/pkg/models"
)

// OdooManager syncs contacts into Odoo over its JSON-RPC external API.
// Odoo authenticates with database credentials per call; there is no OAuth
// token lifecycle to manage.
type OdooManager struct {
	store      *Store
	events     *Events
	httpClient *http.Client
}

func NewOdooManager(store *Store, events *Events) *OdooManager {
	return &OdooManager{
		store:      store,
		events:     events,
		httpClient: &http.Client{},
	}
}

func (o *OdooManager) Provider() models.IntegrationProvider {
	return models.IntegrationOdoo
}

// UpsertContact upserts a res.partner record: search by email, then phone;
// write when found, create otherwise. A supplied description is posted as a
// chatter message on the partner; message failure is logged and swallowed.
func (o *OdooManager) UpsertContact(ctx context.Context, agentID string, contact wire.ContactInput, existingRemoteID string) (string, error) {
	integ, err := o.store.Get(agentID, models.IntegrationOdoo)
	if err != nil {
		return "", err
	}
	cfg, err := integ.Odoo()
	if err != nil {
		return "", err
	}

	uid, err := o.authenticate(ctx, cfg)
	if err != nil {
		return "", err
	}

	partnerID := 0
	if existingRemoteID != "" {
		partnerID, err = strconv.Atoi(existingRemoteID)
		if err != nil {
			return "", fmt.Errorf("invalid odoo partner id %q: %w", existingRemoteID, err)
		}
	} else {
		partnerID, err = o.searchPartner(ctx, cfg, uid, contact)
		if err != nil {
			return "", err
		}
	}

	name := contact.Name
	if name == "" {
		name = "Unknown"
	}
	fields := map[string]interface{}{"name": name}
	if contact.Email != "" {
		fields["email"] = contact.Email
	}
	if contact.Phone != "" {
		fields["phone"] = contact.Phone
	}

	if partnerID != 0 {
		if _, err := o.executeKw(ctx, cfg, uid, "res.partner", "write",
			[]interface{}{[]int{partnerID}, fields}, nil); err != nil {
			return "", err
		}
	} else {
		var created int
		raw, err := o.executeKw(ctx, cfg, uid, "res.partner", "create",
			[]interface{}{fields}, nil)
		if err != nil {
			return "", err
		}
		if err := json.Unmarshal(raw, &created); err != nil {
			return "", fmt.Errorf("decode odoo create response: %w", err)
		}
		partnerID = created
	}

	if contact.Description != "" {
		if _, err := o.executeKw(ctx, cfg, uid, "res.partner", "message_post",
			[]interface{}{[]int{partnerID}},
			map[string]interface{}{"body": contact.Description}); err != nil {
			log.Printf("Odoo message post failed for partner %d: %v", partnerID, err)
		}
	}
	return strconv.Itoa(partnerID), nil
}

func (o *OdooManager) searchPartner(ctx context.Context, cfg models.OdooConfig, uid int, contact wire.ContactInput) (int, error) {
	if contact.Email != "" {
		id, err := o.searchBy(ctx, cfg, uid, "email", contact.Email)
		if err != nil || id != 0 {
			return id, err
		}
	}
	if contact.Phone != "" {
		return o.searchBy(ctx, cfg, uid, "phone", contact.Phone)
	}
	return 0, nil
}

func (o *OdooManager) searchBy(ctx context.Context, cfg models.OdooConfig, uid int, field, value string) (int, error) {
	raw, err := o.executeKw(ctx, cfg, uid, "res.partner", "search",
		[]interface{}{[]interface{}{[]interface{}{field, "=", value}}},
		map[string]interface{}{"limit": 1})
	if err != nil {
		return 0, err
	}
	var ids []int
	if err := json.Unmarshal(raw, &ids); err != nil {
		return 0, fmt.Errorf("decode odoo search response: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

func (o *OdooManager) authenticate(ctx context.Context, cfg models.OdooConfig) (int, error) {
	raw, err := o.rpc(ctx, cfg.URL, "common", "authenticate",
		[]interface{}{cfg.Database, cfg.Username, cfg.APIKey, map[string]interface{}{}})
	if err != nil {
		return 0, err
	}
	var uid int
	if err := json.Unmarshal(raw, &uid); err != nil || uid == 0 {
		return 0, fmt.Errorf("odoo authentication rejected for %s", cfg.Username)
	}
	return uid, nil
}

func (o *OdooManager) executeKw(ctx context.Context, cfg models.OdooConfig, uid int, model, method string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, error) {
	callArgs := []interface{}{cfg.Database, uid, cfg.APIKey, model, method, args}
	if kwargs != nil {
		callArgs = append(callArgs, kwargs)
	}
	return o.rpc(ctx, cfg.URL, "object", "execute_kw", callArgs)
}

func (o *OdooManager) rpc(ctx context.Context, baseURL, service, method string, args []interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "call",
		"id":      1,
		"params": map[string]interface{}{
			"service": service,
			"method":  method,
			"args":    args,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/jsonrpc", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("odoo rpc failed: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
			Data    struct {
				Message string `json:"message"`
			} `json:"data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode odoo rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		msg := rpcResp.Error.Data.Message
		if msg == "" {
			msg = rpcResp.Error.Message
		}
		return nil, fmt.Errorf("odoo rpc error: %s", msg)
	}
	return rpcResp.Result, nil
}
