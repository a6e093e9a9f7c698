package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"channel-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTextUsesChannelCredentials(t *testing.T) {
	var captured map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/123456/messages", r.URL.Path)
		assert.Equal(t, "Bearer channel-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	}))
	defer srv.Close()

	c := NewClient()
	c.SetGraphBase(srv.URL)
	cfg := models.WhatsAppConfig{PhoneNumberID: "123456", AccessToken: "channel-token"}

	require.NoError(t, c.SendText(context.Background(), cfg, "50761234", "hola"))

	assert.Equal(t, "whatsapp", captured["messaging_product"])
	assert.Equal(t, "50761234", captured["to"])
	assert.Equal(t, "text", captured["type"])
	text, ok := captured["text"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hola", text["body"])
}

func TestSendTextSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid token"}}`))
	}))
	defer srv.Close()

	c := NewClient()
	c.SetGraphBase(srv.URL)
	cfg := models.WhatsAppConfig{PhoneNumberID: "123456", AccessToken: "expired"}

	err := c.SendText(context.Background(), cfg, "50761234", "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestSendImageByLink(t *testing.T) {
	var captured map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient()
	c.SetGraphBase(srv.URL)
	cfg := models.WhatsAppConfig{PhoneNumberID: "123456", AccessToken: "t"}

	require.NoError(t, c.SendImage(context.Background(), cfg, "50761234", "https://cdn.example/a.jpg", "caption"))

	img, ok := captured["image"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example/a.jpg", img["link"])
	assert.Equal(t, "caption", img["caption"])
}
