package order

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MetaReceiptImageURL = "receipt_image_url"
	MetaReceiptMediaID  = "receipt_media_id"
	MetaReceiptAt       = "receipt_at"
)

type Order struct {
	ID              uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID          uint64  `gorm:"not null;index" json:"chat_id"`
	TenantID        string  `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	CustomerAddress string  `gorm:"type:varchar(32);not null" json:"customer_address"`
	CustomerName    string  `gorm:"type:varchar(128)" json:"customer_name"`
	ProductID       string  `gorm:"type:varchar(64);not null" json:"product_id"`
	ProductName     string  `gorm:"type:varchar(128)" json:"product_name"`
	Amount          float64 `gorm:"type:decimal(12,2);not null" json:"amount"`
	CustomerEmail   *string `gorm:"type:varchar(255)" json:"customer_email"`
	Status          Status  `gorm:"type:varchar(24);not null;index" json:"status"`

	// ActiveChatID mirrors ChatID while Status is pending_email or
	// pending_payment and is NULL otherwise; its unique index allows at most
	// one such order per chat.
	ActiveChatID *uint64 `gorm:"uniqueIndex" json:"-"`

	Metadata  datatypes.JSONMap `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) MetaString(key string) string {
	if o.Metadata == nil {
		return ""
	}
	s, _ := o.Metadata[key].(string)
	return s
}
