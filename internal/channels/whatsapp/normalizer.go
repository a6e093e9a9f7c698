package whatsapp

import (
	wire "channel-relay/pkg/models"
)

// Inbound is one normalized inbound WhatsApp message: the routing key, the
// sender, and the content by type.
type Inbound struct {
	PhoneNumberID string
	From          string
	SenderName    string
	MessageID     string
	Type          string // text|image|document|audio
	Text          string
	Media         *InboundMedia
}

// InboundMedia carries the provider media reference for non-text messages.
type InboundMedia struct {
	ID       string
	MimeType string
	Caption  string
	Filename string
}

// Normalize flattens the nested webhook envelope into canonical inbound
// events. Message types outside text/image/document/audio are dropped here.
func Normalize(payload wire.WebhookPayload) []Inbound {
	var events []Inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			senderName := ""
			if len(value.Contacts) > 0 {
				senderName = value.Contacts[0].Profile.Name
			}
			for _, msg := range value.Messages {
				ev := Inbound{
					PhoneNumberID: value.Metadata.PhoneNumberID,
					From:          msg.From,
					SenderName:    senderName,
					MessageID:     msg.ID,
					Type:          msg.Type,
				}
				switch msg.Type {
				case "text":
					ev.Text = msg.Text.Body
				case "image":
					if msg.Image == nil {
						continue
					}
					ev.Text = msg.Image.Caption
					ev.Media = &InboundMedia{ID: msg.Image.ID, MimeType: msg.Image.MimeType, Caption: msg.Image.Caption}
				case "document":
					if msg.Document == nil {
						continue
					}
					ev.Text = msg.Document.Caption
					ev.Media = &InboundMedia{ID: msg.Document.ID, MimeType: msg.Document.MimeType, Caption: msg.Document.Caption, Filename: msg.Document.Filename}
				case "audio":
					if msg.Audio == nil {
						continue
					}
					ev.Media = &InboundMedia{ID: msg.Audio.ID, MimeType: msg.Audio.MimeType}
				default:
					continue
				}
				events = append(events, ev)
			}
		}
	}
	return events
}

// TokenAccepted reports whether a hub.verify_token value matches any of the
// accepted forms: the platform master secret, a configured global verify
// token, or any active channel's per-channel verify token. Tokens exist at
// both platform level and per connected number, hence the three-way check.
// Empty configured values never match.
func TokenAccepted(token, masterSecret, globalToken string, channelTokens []string) bool {
	if token == "" {
		return false
	}
	if masterSecret != "" && token == masterSecret {
		return true
	}
	if globalToken != "" && token == globalToken {
		return true
	}
	for _, t := range channelTokens {
		if t != "" && token == t {
			return true
		}
	}
	return false
}
