package trigger

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConditionType string

const (
	CondContainsWords ConditionType = "contains_words"
	CondEquals        ConditionType = "equals"
	CondStartsWith    ConditionType = "starts_with"
)

type Operator string

const (
	OpAny Operator = "any"
	OpAll Operator = "all"
)

type ActionType string

const (
	ActSendMessage  ActionType = "send_message"
	ActNotifyAdmin  ActionType = "notify_admin"
	ActUpdateStatus ActionType = "update_status"
	ActAddTag       ActionType = "add_tag"
	ActToggleBot    ActionType = "toggle_bot"
)

var ErrInvalidRule = errors.New("trigger: invalid rule")

// Trigger is a tenant-defined condition -> action rule.
type Trigger struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID   string      `gorm:"type:varchar(64);not null;index:idx_trigger_tenant_pos,priority:1" json:"tenant_id"`
	Name       string      `gorm:"type:varchar(128)" json:"name"`
	Active     bool        `gorm:"not null" json:"active"`
	Position   int         `gorm:"not null;default:0;index:idx_trigger_tenant_pos,priority:2" json:"position"`
	Conditions []Condition `gorm:"constraint:OnDelete:CASCADE" json:"conditions"`
	Actions    []Action    `gorm:"constraint:OnDelete:CASCADE" json:"actions"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type Condition struct {
	ID        uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	TriggerID uint64        `gorm:"not null;index" json:"trigger_id"`
	Type      ConditionType `gorm:"type:varchar(32);not null" json:"type"`
	Operator  Operator      `gorm:"type:varchar(8)" json:"operator"`
	Value     string        `gorm:"type:text;not null" json:"value"`
	Position  int           `gorm:"not null;default:0" json:"position"`
}

func (Condition) TableName() string { return "trigger_conditions" }

func (c *Condition) BeforeSave(tx *gorm.DB) error {
	switch c.Type {
	case CondContainsWords, CondEquals, CondStartsWith:
	default:
		return fmt.Errorf("%w: condition type %q", ErrInvalidRule, c.Type)
	}
	switch c.Operator {
	case "":
		c.Operator = OpAny
	case OpAny, OpAll:
	default:
		return fmt.Errorf("%w: operator %q", ErrInvalidRule, c.Operator)
	}
	return nil
}

type Action struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	TriggerID uint64         `gorm:"not null;index" json:"trigger_id"`
	Type      ActionType     `gorm:"type:varchar(32);not null" json:"type"`
	Payload   datatypes.JSON `gorm:"type:json" json:"payload"`
	Position  int            `gorm:"not null;default:0" json:"position"`
}

func (Action) TableName() string { return "trigger_actions" }

// BeforeSave rejects actions whose payload does not decode to the shape of
// their type, so the engine never meets a malformed rule.
func (a *Action) BeforeSave(tx *gorm.DB) error {
	_, err := a.Decode()
	return err
}
