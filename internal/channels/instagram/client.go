// Package instagram implements the Instagram messaging normalizer's
// outbound path and the one-time account-linking flow.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"channel-relay/internal/models"
)

const defaultGraphBase = "https://graph.facebook.com/v19.0"

// Client sends Instagram messages via the Graph API using a page access
// token.
type Client struct {
	httpClient *http.Client
	graphBase  string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		graphBase:  defaultGraphBase,
	}
}

// SetGraphBase overrides the Graph API base URL. Used by tests.
func (c *Client) SetGraphBase(base string) {
	c.graphBase = base
}

// SendText sends a text message to an IG-scoped recipient id. Failures
// surface to the caller; there is no internal retry.
func (c *Client) SendText(ctx context.Context, cfg models.InstagramConfig, recipientID, text string) error {
	url := fmt.Sprintf("%s/me/messages?access_token=%s", c.graphBase, cfg.PageAccessToken)

	payload, err := json.Marshal(map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("instagram send failed: %s - %s", resp.Status, string(respBody))
	}
	return nil
}
