package whatsapp

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

// Client sends messages through the WhatsApp Cloud API. Credentials are
// per-channel, passed with each call.
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

type outboundMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *textObj  `json:"text,omitempty"`
	Image            *mediaObj `json:"image,omitempty"`
	Document         *mediaObj `json:"document,omitempty"`
}

type textObj struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type mediaObj struct {
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// SendText sends a text message using the channel's stored access token.
// Failures surface to the caller; there is no internal retry. The ledger
// has already recorded the content regardless of delivery outcome.
func (c *Client) SendText(ctx context.Context, cfg models.WhatsAppConfig, to, body string) error {
	return c.send(ctx, cfg, outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textObj{Body: body},
	})
}

// SendImage sends an image by public link.
func (c *Client) SendImage(ctx context.Context, cfg models.WhatsAppConfig, to, imageURL, caption string) error {
	return c.send(ctx, cfg, outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "image",
		Image:            &mediaObj{Link: imageURL, Caption: caption},
	})
}

func (c *Client) send(ctx context.Context, cfg models.WhatsAppConfig, msg outboundMessage) error {
	url := fmt.Sprintf("%s/%s/messages", c.graphBase, cfg.PhoneNumberID)

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AccessToken)
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
		return fmt.Errorf("whatsapp send failed: %s - %s", resp.Status, string(respBody))
	}
	return nil
}
