package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/salesbot/internal/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDuplicateMessage = errors.New("chat: gateway message already stored")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// FindOrCreateChat returns the tenant's chat with address, creating it on
// first contact. A concurrent creator losing the unique-index race re-reads.
func (r *Repo) FindOrCreateChat(ctx context.Context, tenantID, address, displayName string) (*Chat, error) {
	var c Chat
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND address = ?", tenantID, address).
		First(&c).Error
	if err == nil {
		if displayName != "" && displayName != c.DisplayName {
			if err := r.db.WithContext(ctx).Model(&c).Update("display_name", displayName).Error; err != nil {
				return nil, err
			}
		}
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c = Chat{TenantID: tenantID, Address: address, DisplayName: displayName}
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		if !common.IsDuplicateKey(err) {
			return nil, err
		}
		if err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND address = ?", tenantID, address).
			First(&c).Error; err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (r *Repo) GetChat(ctx context.Context, tenantID string, id uint64) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	if m.GatewayMessageID != nil && *m.GatewayMessageID == "" {
		m.GatewayMessageID = nil
	}
	err := r.db.WithContext(ctx).Create(m).Error
	if common.IsDuplicateKey(err) {
		return ErrDuplicateMessage
	}
	return err
}

// HasGatewayMessage reports whether the tenant already stored a message with
// the given gateway id.
func (r *Repo) HasGatewayMessage(ctx context.Context, tenantID, gatewayID string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("tenant_id = ? AND gateway_message_id = ?", tenantID, gatewayID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListRecentMessagesDesc returns the most recent messages in DESC id order (newest -> oldest).
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, chatID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// TrailingOutboundAudios counts how many of the latest outbound messages in a
// row were audio, looking back at most window messages.
func (r *Repo) TrailingOutboundAudios(ctx context.Context, chatID uint64, window int) (int, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ? AND from_me = ?", chatID, true).
		Order("id DESC").
		Limit(window).
		Find(&msgs).Error; err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.Kind != KindAudio {
			break
		}
		n++
	}
	return n, nil
}

func (r *Repo) TouchInbound(ctx context.Context, chatID uint64, snapshot string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]any{
			"last_message":    snapshot,
			"last_message_at": at,
			"unread_count":    gorm.Expr("unread_count + ?", 1),
		}).Error
}

func (r *Repo) TouchOutbound(ctx context.Context, chatID uint64, snapshot string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]any{
			"last_message":    snapshot,
			"last_message_at": at,
		}).Error
}

func (r *Repo) SetStatus(ctx context.Context, chatID uint64, status string) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", chatID).
		Update("status", status).Error
}

func (r *Repo) SetBotPaused(ctx context.Context, chatID uint64, paused bool) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", chatID).
		Update("bot_paused", paused).Error
}

// AddTag is idempotent per (chat, tag).
func (r *Repo) AddTag(ctx context.Context, chatID uint64, tag string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Tag{ChatID: chatID, Tag: tag}).Error
}

func (r *Repo) ListTags(ctx context.Context, chatID uint64) ([]string, error) {
	var tags []string
	if err := r.db.WithContext(ctx).Model(&Tag{}).
		Where("chat_id = ?", chatID).
		Order("tag ASC").
		Pluck("tag", &tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// SetContent replaces a stored message's text, used once a voice note has
// been transcribed.
func (r *Repo) SetContent(ctx context.Context, id uint64, content string) error {
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", id).
		Update("content", content).Error
}
