// Package relay is the application context: it owns every capability the
// message flow needs and orchestrates inbound events from normalizer to
// ledger to outbound send to CRM dispatch.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log"

	"channel-relay/internal/channels/instagram"
	"channel-relay/internal/channels/webchat"
	"channel-relay/internal/channels/whatsapp"
	"channel-relay/internal/integrations"
	"channel-relay/internal/ledger"
	"channel-relay/internal/media"
	"channel-relay/internal/models"
	"channel-relay/internal/responder"
	"channel-relay/internal/transcribe"
	wire "channel-relay/pkg/models"
)

// Relay wires the channel normalizers, media pipeline, ledger, responder
// and CRM dispatchers together. It is constructed once at process start and
// passed by reference to the handlers that need it.
type Relay struct {
	Ledger      *ledger.Ledger
	Media       *media.Pipeline
	Transcriber *transcribe.Adapter
	WhatsApp    *whatsapp.Client
	Instagram   *instagram.Client
	Hub         *webchat.Hub
	Responder   responder.Responder
	Events      *integrations.Events
	Dispatchers []integrations.Dispatcher

	// TranscribeProvider selects the transcription backend per agent
	// policy; empty means the adapter default.
	TranscribeProvider func(agentID string) transcribe.Provider
}

// HandleWhatsApp processes one webhook delivery. Events for unknown phone
// number ids are logged and dropped: there is no tenant to charge them to,
// and the provider contract does not expect per-message acknowledgment of
// tenant existence.
func (r *Relay) HandleWhatsApp(ctx context.Context, payload wire.WebhookPayload) {
	for _, ev := range whatsapp.Normalize(payload) {
		ch, err := r.Ledger.ResolveChannel(models.ProviderWhatsApp, ev.PhoneNumberID)
		if err != nil {
			if errors.Is(err, ledger.ErrNoSuchChannel) {
				log.Printf("Dropping inbound for unknown phone_number_id %s", ev.PhoneNumberID)
				continue
			}
			log.Printf("Channel resolution failed for %s: %v", ev.PhoneNumberID, err)
			continue
		}
		r.handleWhatsAppEvent(ctx, ch, ev)
	}
}

func (r *Relay) handleWhatsAppEvent(ctx context.Context, ch *models.Channel, ev whatsapp.Inbound) {
	cfg, err := ch.WhatsApp()
	if err != nil {
		log.Printf("Channel %d has invalid config: %v", ch.ID, err)
		return
	}

	content := ev.Text
	meta := models.MessageMetadata{Sender: ev.SenderName}

	if ev.Media != nil {
		mediaContent, mediaMeta, ok := r.processWhatsAppMedia(ctx, ch, cfg, ev)
		if !ok {
			// Media failed to download or transform. The webhook still
			// returns success to the provider to avoid redelivery storms;
			// no ledger entry is produced for this message.
			return
		}
		content = mediaContent
		mediaMeta.Sender = ev.SenderName
		meta = mediaMeta
	}

	msg, err := r.Ledger.Append(ch, ev.From, models.RoleEndUser, content, meta)
	if err != nil {
		log.Printf("Ledger append failed for channel %d: %v", ch.ID, err)
		return
	}

	r.respondAndSend(ctx, ch, ev.From, msg)
	go r.dispatchCRM(context.WithoutCancel(ctx), ch, ev.From, ev.SenderName, content)
}

// processWhatsAppMedia downloads provider media and moves it into durable
// storage. Images are recompressed, documents stored unmodified, audio
// stored unmodified and transcribed; the transcription becomes the
// canonical message text while the original media URL stays in metadata.
func (r *Relay) processWhatsAppMedia(ctx context.Context, ch *models.Channel, cfg models.WhatsAppConfig, ev whatsapp.Inbound) (string, models.MessageMetadata, bool) {
	fetch := r.Media.Download(ctx, ev.Media.ID, cfg.AccessToken)
	if fetch.Outcome != media.FetchOK {
		log.Printf("Media %s download failed (outcome %d): %v", ev.Media.ID, fetch.Outcome, fetch.Err)
		return "", models.MessageMetadata{}, false
	}

	meta := models.MessageMetadata{
		MediaType:       ev.Type,
		OriginalMediaID: ev.Media.ID,
	}

	switch ev.Type {
	case "image":
		url, err := r.Media.StoreImage(ctx, fetch.Data, ev.Media.ID)
		if err != nil {
			log.Printf("Image store failed for media %s: %v", ev.Media.ID, err)
			return "", models.MessageMetadata{}, false
		}
		meta.MediaURL = url
		return ev.Media.Caption, meta, true

	case "document":
		name := ev.Media.Filename
		if name == "" {
			name = ev.Media.ID
		}
		url, err := r.Media.StoreRaw(ctx, fetch.Data, name, contentType(ev.Media.MimeType, "application/octet-stream"))
		if err != nil {
			log.Printf("Document store failed for media %s: %v", ev.Media.ID, err)
			return "", models.MessageMetadata{}, false
		}
		meta.MediaURL = url
		content := ev.Media.Caption
		if content == "" {
			content = name
		}
		return content, meta, true

	case "audio":
		name := ev.Media.ID + ".ogg"
		url, err := r.Media.StoreRaw(ctx, fetch.Data, name, contentType(ev.Media.MimeType, "audio/ogg"))
		if err != nil {
			log.Printf("Audio store failed for media %s: %v", ev.Media.ID, err)
			return "", models.MessageMetadata{}, false
		}
		meta.MediaURL = url

		provider := transcribe.Provider("")
		if r.TranscribeProvider != nil {
			provider = r.TranscribeProvider(ch.AgentID)
		}
		text, err := r.Transcriber.Transcribe(ctx, fetch.Data, name, provider)
		if err != nil {
			log.Printf("Transcription failed for media %s: %v", ev.Media.ID, err)
			return "", models.MessageMetadata{}, false
		}
		return text, meta, true
	}

	return "", models.MessageMetadata{}, false
}

func contentType(mime, fallback string) string {
	if mime == "" {
		return fallback
	}
	return mime
}

// respondAndSend generates the agent reply, appends it to the ledger, and
// attempts the outbound send. Delivery is at most once: a failed send is
// annotated on the already-persisted row, never retried, never rolled back.
func (r *Relay) respondAndSend(ctx context.Context, ch *models.Channel, visitorID string, inbound *models.Message) {
	if r.Responder == nil {
		return
	}

	history, err := r.Ledger.Messages(inbound.ConversationID, 50)
	if err != nil {
		log.Printf("History load failed for conversation %d: %v", inbound.ConversationID, err)
		history = nil
	}
	// The inbound row is already persisted and travels separately; keep it
	// out of the history so the responder sees it exactly once.
	if n := len(history); n > 0 && history[n-1].ID == inbound.ID {
		history = history[:n-1]
	}

	reply, err := r.Responder.Respond(ctx, history, inbound.Content)
	if err != nil || reply == "" {
		if err != nil {
			log.Printf("Responder failed for conversation %d: %v", inbound.ConversationID, err)
		}
		return
	}

	msg, err := r.Ledger.Append(ch, visitorID, models.RoleAI, reply, models.MessageMetadata{})
	if err != nil {
		log.Printf("Ledger append failed for reply: %v", err)
		return
	}

	if err := r.sendToChannel(ctx, ch, visitorID, reply, msg); err != nil {
		log.Printf("Outbound send failed on channel %d: %v", ch.ID, err)
	}
}

func (r *Relay) sendToChannel(ctx context.Context, ch *models.Channel, visitorID, text string, msg *models.Message) error {
	var sendErr error
	switch ch.Provider {
	case models.ProviderWhatsApp:
		cfg, err := ch.WhatsApp()
		if err != nil {
			sendErr = err
		} else {
			sendErr = r.WhatsApp.SendText(ctx, cfg, visitorID, text)
		}
	case models.ProviderInstagram:
		cfg, err := ch.Instagram()
		if err != nil {
			sendErr = err
		} else {
			sendErr = r.Instagram.SendText(ctx, cfg, visitorID, text)
		}
	case models.ProviderWebchat:
		if r.Hub != nil {
			r.Hub.NotifyMessage(visitorID, msg)
		}
	default:
		sendErr = fmt.Errorf("unknown provider %s", ch.Provider)
	}

	if sendErr != nil && msg != nil {
		if err := r.Ledger.MarkDeliveryError(msg, sendErr.Error()); err != nil {
			log.Printf("Recording delivery error failed: %v", err)
		}
	}
	return sendErr
}

// SendOperator appends a manual operator message and relays it to the
// visitor over the conversation's channel.
func (r *Relay) SendOperator(ctx context.Context, conversationID uint, text string) (*models.Message, error) {
	conv, err := r.Ledger.Conversation(conversationID)
	if err != nil {
		return nil, err
	}
	ch, err := r.Ledger.ChannelByID(conv.ChannelID)
	if err != nil {
		return nil, err
	}

	msg, err := r.Ledger.Append(ch, conv.ExternalID, models.RoleHuman, text, models.MessageMetadata{})
	if err != nil {
		return nil, err
	}
	if err := r.sendToChannel(ctx, ch, conv.ExternalID, text, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// HandleWebchat processes one widget message. A fresh visitor id is minted
// on first contact; the caller echoes it back to the widget so the session
// persists.
func (r *Relay) HandleWebchat(ctx context.Context, ch *models.Channel, visitorID, text string) (string, error) {
	if ch.Provider != models.ProviderWebchat {
		return "", fmt.Errorf("channel %d is not a webchat channel", ch.ID)
	}
	if visitorID == "" {
		visitorID = webchat.NewVisitorID()
	}

	msg, err := r.Ledger.Append(ch, visitorID, models.RoleEndUser, text, models.MessageMetadata{})
	if err != nil {
		return visitorID, err
	}
	if r.Hub != nil {
		r.Hub.NotifyMessage(visitorID, msg)
	}

	r.respondAndSend(ctx, ch, visitorID, msg)
	go r.dispatchCRM(context.WithoutCancel(ctx), ch, visitorID, "", text)
	return visitorID, nil
}

// dispatchCRM syncs the visitor as a contact/lead into every configured
// CRM. Failures are recorded as integration events and never reach the
// conversation flow.
func (r *Relay) dispatchCRM(ctx context.Context, ch *models.Channel, visitorID, senderName, description string) {
	if len(r.Dispatchers) == 0 {
		return
	}

	contact := wire.ContactInput{
		Name:        senderName,
		Description: description,
	}
	if contact.Name == "" {
		contact.Name = visitorID
	}
	if ch.Provider == models.ProviderWhatsApp {
		contact.Phone = visitorID
	}

	for _, d := range r.Dispatchers {
		if _, err := integrations.Dispatch(ctx, r.Events, d, ch.AgentID, contact, ""); err != nil {
			if errors.Is(err, integrations.ErrNotConnected) {
				continue
			}
			log.Printf("CRM dispatch to %s failed: %v", d.Provider(), err)
		}
	}
}
