package chat

import "time"

type Kind string

const (
	KindText        Kind = "text"
	KindImage       Kind = "image"
	KindAudio       Kind = "audio"
	KindVideo       Kind = "video"
	KindDocument    Kind = "document"
	KindSticker     Kind = "sticker"
	KindLocation    Kind = "location"
	KindContacts    Kind = "contacts"
	KindReaction    Kind = "reaction"
	KindButton      Kind = "button"
	KindInteractive Kind = "interactive"
	KindUnsupported Kind = "unsupported"
)

const (
	StatusReceived = "received"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// Chat is one conversation between a tenant and a counterpart address.
type Chat struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID      string     `gorm:"type:varchar(64);not null;uniqueIndex:uniq_chat_tenant_address,priority:1" json:"tenant_id"`
	Address       string     `gorm:"type:varchar(32);not null;uniqueIndex:uniq_chat_tenant_address,priority:2" json:"address"`
	DisplayName   string     `gorm:"type:varchar(128)" json:"display_name"`
	LastMessage   string     `gorm:"type:text" json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	UnreadCount   int        `gorm:"not null;default:0" json:"unread_count"`
	Status        string     `gorm:"type:varchar(32)" json:"status"`
	BotPaused     bool       `gorm:"not null;default:false" json:"bot_paused"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

type Tag struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    uint64    `gorm:"not null;uniqueIndex:uniq_chat_tag,priority:1" json:"chat_id"`
	Tag       string    `gorm:"type:varchar(64);not null;uniqueIndex:uniq_chat_tag,priority:2" json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}

func (Tag) TableName() string { return "chat_tags" }

type Message struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID         string    `gorm:"type:varchar(64);not null;uniqueIndex:uniq_chat_msg_gateway_id,priority:1" json:"-"`
	ChatID           uint64    `gorm:"not null;index" json:"chat_id"`
	FromMe           bool      `gorm:"not null" json:"from_me"`
	Kind             Kind      `gorm:"type:varchar(16);not null" json:"kind"`
	Content          string    `gorm:"type:text;not null" json:"content"`
	MediaURL         *string   `gorm:"type:text" json:"media_url"`
	Status           string    `gorm:"type:varchar(16);not null" json:"status"`
	GatewayMessageID *string   `gorm:"type:varchar(128);uniqueIndex:uniq_chat_msg_gateway_id,priority:2" json:"gateway_message_id"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
