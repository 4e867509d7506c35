package trigger

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Create stores a trigger with its conditions and actions.
func (r *Repo) Create(ctx context.Context, t *Trigger) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// ListActive returns the tenant's active triggers ordered by (position, id),
// each with its conditions and actions in position order.
func (r *Repo) ListActive(ctx context.Context, tenantID string) ([]Trigger, error) {
	byPosition := func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }
	var out []Trigger
	if err := r.db.WithContext(ctx).
		Preload("Conditions", byPosition).
		Preload("Actions", byPosition).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("position ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
