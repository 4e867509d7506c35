package catalog

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("catalog: product not found")

type Product struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID     string    `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Name         string    `gorm:"type:varchar(128);not null" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	Price        float64   `gorm:"type:decimal(12,2);not null" json:"price"`
	Active       bool      `gorm:"not null;index" json:"active"`
	SortOrder    int       `gorm:"not null;default:0" json:"sort_order"`
	PaymentQRURL string    `gorm:"type:text" json:"payment_qr_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, p *Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// ListActive returns the tenant's active products in display order.
func (r *Repo) ListActive(ctx context.Context, tenantID string) ([]Product, error) {
	var out []Product
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("sort_order ASC, name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns an active product owned by tenantID.
func (r *Repo) Get(ctx context.Context, tenantID, id string) (*Product, error) {
	var p Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND active = ?", tenantID, id, true).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
