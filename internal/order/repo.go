package order

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/salesbot/internal/common"
	"github.com/suPer8Hu/salesbot/internal/metrics"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrNoActiveOrder     = errors.New("order: no order in the required state")
	ErrActiveOrderExists = errors.New("order: conversation already has an active order")
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Create inserts a new pending_email order, claiming the chat's active slot.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	o.Status = StatusPendingEmail
	chatID := o.ChatID
	o.ActiveChatID = &chatID
	err := r.db.WithContext(ctx).Create(o).Error
	if common.IsDuplicateKey(err) {
		return ErrActiveOrderExists
	}
	if err == nil {
		metrics.OrderTransitions.WithLabelValues("none", string(StatusPendingEmail)).Inc()
	}
	return err
}

func (r *Repo) Get(ctx context.Context, tenantID string, id uint64) (*Order, error) {
	var o Order
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// List returns the tenant's orders newest first, optionally filtered by status.
func (r *Repo) List(ctx context.Context, tenantID string, status Status, limit int) ([]Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id DESC").
		Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Order
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByChat returns every order of a chat in creation order.
func (r *Repo) ListByChat(ctx context.Context, chatID uint64) ([]Order, error) {
	var out []Order
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Latest returns the most recent order of the chat in one of statuses.
func (r *Repo) Latest(ctx context.Context, chatID uint64, statuses ...Status) (*Order, error) {
	var o Order
	if err := r.db.WithContext(ctx).
		Where("chat_id = ? AND status IN ?", chatID, statuses).
		Order("id DESC").
		First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveOrder
		}
		return nil, err
	}
	return &o, nil
}

// Transition moves o to status `to`, applying extra column updates in the
// same statement. The update only matches while the row still holds o's
// current status, so a concurrent move surfaces as ErrStaleOrder.
func (r *Repo) Transition(ctx context.Context, o *Order, to Status, extra map[string]any) error {
	from := o.Status
	if err := checkTransition(from, to); err != nil {
		return err
	}

	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	if !to.Active() {
		updates["active_chat_id"] = nil
	}

	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", o.ID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleOrder
	}

	o.Status = to
	if !to.Active() {
		o.ActiveChatID = nil
	}
	metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
	return nil
}

// CancelStale cancels every pre-payment order of the chat created before
// cutoff and returns how many were cancelled. Later transitions such as
// the email step do not restart the clock.
func (r *Repo) CancelStale(ctx context.Context, chatID uint64, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("chat_id = ? AND status IN ? AND created_at < ?", chatID, activeStatuses, cutoff).
		Updates(map[string]any{
			"status":         StatusCancelled,
			"active_chat_id": nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		metrics.OrderTransitions.WithLabelValues("stale", string(StatusCancelled)).Add(float64(res.RowsAffected))
	}
	return res.RowsAffected, nil
}
