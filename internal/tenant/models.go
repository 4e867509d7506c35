package tenant

import (
	"time"

	"github.com/suPer8Hu/salesbot/internal/gateway"
)

type AIStatus string

const (
	AIActive AIStatus = "active"
	AISleep  AIStatus = "sleep"
)

// Credential is the per-tenant gateway + assistant configuration.
type Credential struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID      string `gorm:"type:varchar(64);uniqueIndex;not null" json:"tenant_id"`
	PhoneNumberID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"phone_number_id"`
	AccessToken   string `gorm:"type:text;not null" json:"-"`
	AdminPhone    string `gorm:"type:varchar(32)" json:"admin_phone"`

	AIStatus             AIStatus `gorm:"type:varchar(16);not null;default:'active'" json:"ai_status"`
	ReplyDelaySeconds    int      `gorm:"not null;default:0" json:"reply_delay_seconds"`
	AudioProbability     int      `gorm:"not null;default:0" json:"audio_probability"`
	MaxConsecutiveAudios int      `gorm:"not null" json:"max_consecutive_audios"`
	Voice                string   `gorm:"type:varchar(32)" json:"voice"`
	TrainingPrompt       string   `gorm:"type:text" json:"training_prompt"`
	AIProvider           string   `gorm:"type:varchar(32)" json:"ai_provider"`
	AIModel              string   `gorm:"type:varchar(64)" json:"ai_model"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Credential) TableName() string { return "tenant_credentials" }

func (c *Credential) AIEnabled() bool { return c.AIStatus == AIActive }

// Gateway returns the values needed to call the gateway for this tenant.
func (c *Credential) Gateway() gateway.Creds {
	return gateway.Creds{PhoneNumberID: c.PhoneNumberID, AccessToken: c.AccessToken}
}
