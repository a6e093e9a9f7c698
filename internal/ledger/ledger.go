package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"channel-relay/internal/models"

	"gorm.io/gorm"
)

// ErrNoSuchChannel means an inbound event referenced an external id no
// active channel claims. Callers drop the event rather than retrying.
var ErrNoSuchChannel = errors.New("no channel matches external id")

type indexKey struct {
	provider models.ChannelProvider
	external string
}

// Ledger is the source of truth for channels, conversations and the
// append-only message log. It also keeps an in-memory index from
// provider-issued external ids to channels so inbound routing never scans
// the channel table.
type Ledger struct {
	db *gorm.DB

	mu    sync.RWMutex
	index map[indexKey]uint
}

func New(db *gorm.DB) (*Ledger, error) {
	l := &Ledger{db: db, index: make(map[indexKey]uint)}
	if err := l.reloadIndex(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) reloadIndex() error {
	var channels []models.Channel
	if err := l.db.Where("active = ?", true).Find(&channels).Error; err != nil {
		return fmt.Errorf("load channel index: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = make(map[indexKey]uint, len(channels))
	for _, ch := range channels {
		l.index[indexKey{ch.Provider, ch.ExternalID}] = ch.ID
	}
	return nil
}

// ResolveChannel finds the active channel claiming an external id.
func (l *Ledger) ResolveChannel(provider models.ChannelProvider, externalID string) (*models.Channel, error) {
	l.mu.RLock()
	id, ok := l.index[indexKey{provider, externalID}]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrNoSuchChannel
	}

	var ch models.Channel
	if err := l.db.First(&ch, id).Error; err != nil {
		return nil, fmt.Errorf("load channel %d: %w", id, err)
	}
	if !ch.Active {
		return nil, ErrNoSuchChannel
	}
	return &ch, nil
}

// SaveChannel upserts a channel keyed by (provider, external id), so
// reconnecting the same external account updates the existing row instead
// of duplicating it. The routing index is refreshed in the same call.
func (l *Ledger) SaveChannel(ch *models.Channel) error {
	var existing models.Channel
	err := l.db.Where("provider = ? AND external_id = ?", ch.Provider, ch.ExternalID).First(&existing).Error
	switch {
	case err == nil:
		ch.ID = existing.ID
		ch.CreatedAt = existing.CreatedAt
		if err := l.db.Save(ch).Error; err != nil {
			return fmt.Errorf("update channel: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := l.db.Create(ch).Error; err != nil {
			return fmt.Errorf("create channel: %w", err)
		}
	default:
		return fmt.Errorf("lookup channel: %w", err)
	}

	l.mu.Lock()
	key := indexKey{ch.Provider, ch.ExternalID}
	if ch.Active {
		l.index[key] = ch.ID
	} else {
		delete(l.index, key)
	}
	l.mu.Unlock()
	return nil
}

// SetChannelActive soft-enables or soft-disables a channel. Channels are
// never hard-deleted.
func (l *Ledger) SetChannelActive(channelID uint, active bool) error {
	var ch models.Channel
	if err := l.db.First(&ch, channelID).Error; err != nil {
		return err
	}
	if err := l.db.Model(&ch).Update("active", active).Error; err != nil {
		return err
	}

	l.mu.Lock()
	key := indexKey{ch.Provider, ch.ExternalID}
	if active {
		l.index[key] = ch.ID
	} else {
		delete(l.index, key)
	}
	l.mu.Unlock()
	return nil
}

// Channels lists channels, optionally filtered to one provider.
func (l *Ledger) Channels(provider models.ChannelProvider) ([]models.Channel, error) {
	var channels []models.Channel
	q := l.db.Order("created_at DESC")
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if err := q.Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// ActiveVerifyTokens collects the per-channel verify tokens of active
// WhatsApp channels, used by the webhook verification handshake.
func (l *Ledger) ActiveVerifyTokens() []string {
	var channels []models.Channel
	if err := l.db.Where("provider = ? AND active = ?", models.ProviderWhatsApp, true).Find(&channels).Error; err != nil {
		return nil
	}
	var tokens []string
	for i := range channels {
		cfg, err := channels[i].WhatsApp()
		if err != nil || cfg.VerifyToken == "" {
			continue
		}
		tokens = append(tokens, cfg.VerifyToken)
	}
	return tokens
}

// Append records one message. The conversation for (channel, visitor) is
// created lazily on first contact; its last-message timestamp is bumped on
// every append. Message rows are immutable once created.
func (l *Ledger) Append(ch *models.Channel, visitorID string, role models.Role, content string, meta models.MessageMetadata) (*models.Message, error) {
	conv, err := l.conversation(ch, visitorID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
	}
	if err := msg.SetMeta(meta); err != nil {
		return nil, err
	}
	if err := l.db.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	// Last-write-wins under concurrent delivery is acceptable: the
	// timestamp is advisory, used only for sorting conversations.
	if err := l.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).
		Update("last_message_at", msg.CreatedAt).Error; err != nil {
		return nil, fmt.Errorf("bump conversation timestamp: %w", err)
	}

	return msg, nil
}

func (l *Ledger) conversation(ch *models.Channel, visitorID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := l.db.Where("channel_id = ? AND external_id = ?", ch.ID, visitorID).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}

	conv = models.Conversation{
		ChannelID:     ch.ID,
		ExternalID:    visitorID,
		AgentID:       ch.AgentID,
		LastMessageAt: time.Now(),
	}
	if err := l.db.Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// MarkDeliveryError annotates an outbound message with the provider send
// failure. Content and role stay immutable; only the metadata column is
// touched, and only once, after the single outbound attempt.
func (l *Ledger) MarkDeliveryError(msg *models.Message, sendErr string) error {
	meta := msg.Meta()
	meta.DeliveryError = sendErr
	if err := msg.SetMeta(meta); err != nil {
		return err
	}
	return l.db.Model(msg).Update("metadata", msg.Metadata).Error
}

// Conversations lists a channel's conversations, most recent first.
func (l *Ledger) Conversations(channelID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := l.db.Where("channel_id = ?", channelID).
		Order("last_message_at DESC").Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

// Messages returns a conversation's messages in creation order.
func (l *Ledger) Messages(conversationID uint, limit int) ([]models.Message, error) {
	var msgs []models.Message
	q := l.db.Where("conversation_id = ?", conversationID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// LastMessage returns a conversation's newest message, or nil when the
// conversation has none yet.
func (l *Ledger) LastMessage(conversationID uint) (*models.Message, error) {
	var msg models.Message
	err := l.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Conversation loads one conversation by id.
func (l *Ledger) Conversation(id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := l.db.First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ChannelByID loads one channel by primary key.
func (l *Ledger) ChannelByID(id uint) (*models.Channel, error) {
	var ch models.Channel
	if err := l.db.First(&ch, id).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}
