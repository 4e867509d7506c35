package order

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/catalog"
	"github.com/suPer8Hu/salesbot/internal/chat"
	"gorm.io/datatypes"
)

// StaleAfter is how long an order may sit in a pre-payment state.
const StaleAfter = 60 * time.Minute

var (
	ErrUnknownProduct = errors.New("order: unknown product")
	ErrInvalidEmail   = errors.New("order: invalid email address")
)

// receiptZone is the merchants' local time (UTC-4) used for receipt stamps.
var receiptZone = time.FixedZone("UTC-4", -4*60*60)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

type ProductLookup interface {
	Get(ctx context.Context, tenantID, id string) (*catalog.Product, error)
}

type Machine struct {
	repo     *Repo
	products ProductLookup
	now      func() time.Time
}

func NewMachine(repo *Repo, products ProductLookup) *Machine {
	return &Machine{repo: repo, products: products, now: time.Now}
}

// WithClock overrides the time source.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

func (m *Machine) Repo() *Repo { return m.repo }

// ExpireStale cancels abandoned pre-payment orders of the chat.
func (m *Machine) ExpireStale(ctx context.Context, chatID uint64) (int64, error) {
	n, err := m.repo.CancelStale(ctx, chatID, m.now().Add(-StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("expire stale orders: %w", err)
	}
	if n > 0 {
		log.Info().Uint64("chat", chatID).Int64("cancelled", n).Msg("stale orders cancelled")
	}
	return n, nil
}

// Active returns the chat's current non-terminal order or ErrNoActiveOrder.
func (m *Machine) Active(ctx context.Context, chatID uint64) (*Order, error) {
	return m.repo.Latest(ctx, chatID, activeStatuses...)
}

// Confirm opens a pending_email order for productID. An order already in
// progress on the chat is cancelled first.
func (m *Machine) Confirm(ctx context.Context, c *chat.Chat, productID string) (*Order, *catalog.Product, error) {
	productID = strings.TrimSpace(productID)
	p, err := m.products.Get(ctx, c.TenantID, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
		}
		return nil, nil, err
	}

	if cur, err := m.Active(ctx, c.ID); err == nil {
		if err := m.repo.Transition(ctx, cur, StatusCancelled, nil); err != nil && !errors.Is(err, ErrStaleOrder) {
			return nil, nil, err
		}
		log.Info().Uint64("order", cur.ID).Uint64("chat", c.ID).Msg("previous order replaced")
	} else if !errors.Is(err, ErrNoActiveOrder) {
		return nil, nil, err
	}

	o := &Order{
		ChatID:          c.ID,
		TenantID:        c.TenantID,
		CustomerAddress: c.Address,
		CustomerName:    c.DisplayName,
		ProductID:       p.ID,
		ProductName:     p.Name,
		Amount:          p.Price,
		Metadata:        datatypes.JSONMap{},
	}
	if err := m.repo.Create(ctx, o); err != nil {
		return nil, nil, err
	}
	log.Info().Uint64("order", o.ID).Uint64("chat", c.ID).Str("product", p.ID).Msg("order created")
	return o, p, nil
}

// SubmitEmail records the customer's email on the pending_email order and
// moves it to pending_payment. The product is returned for the payment QR;
// it is nil when the product has since been removed from the catalog.
func (m *Machine) SubmitEmail(ctx context.Context, c *chat.Chat, email string) (*Order, *catalog.Product, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !ValidEmail(email) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	o, err := m.repo.Latest(ctx, c.ID, StatusPendingEmail)
	if err != nil {
		return nil, nil, err
	}
	if err := m.repo.Transition(ctx, o, StatusPendingPayment, map[string]any{"customer_email": email}); err != nil {
		return nil, nil, err
	}
	o.CustomerEmail = &email

	p, err := m.products.Get(ctx, c.TenantID, o.ProductID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return o, nil, err
	}
	return o, p, nil
}

// AttachReceipt treats an image on a chat with a pending_payment order as
// the payment receipt and moves that order to pending_delivery.
func (m *Machine) AttachReceipt(ctx context.Context, c *chat.Chat, imageURL, mediaID string) (*Order, error) {
	o, err := m.repo.Latest(ctx, c.ID, StatusPendingPayment)
	if err != nil {
		return nil, err
	}

	meta := datatypes.JSONMap{}
	for k, v := range o.Metadata {
		meta[k] = v
	}
	if imageURL != "" {
		meta[MetaReceiptImageURL] = imageURL
	}
	if mediaID != "" {
		meta[MetaReceiptMediaID] = mediaID
	}
	meta[MetaReceiptAt] = m.now().In(receiptZone).Format("2006-01-02 15:04:05")

	if err := m.repo.Transition(ctx, o, StatusPendingDelivery, map[string]any{"metadata": meta}); err != nil {
		return nil, err
	}
	o.Metadata = meta
	log.Info().Uint64("order", o.ID).Uint64("chat", c.ID).Msg("payment receipt attached")
	return o, nil
}

// List returns the tenant's orders for the operator view.
func (m *Machine) List(ctx context.Context, tenantID string, status Status, limit int) ([]Order, error) {
	return m.repo.List(ctx, tenantID, status, limit)
}

// MarkDelivered is the operator's pending_delivery -> delivered step.
func (m *Machine) MarkDelivered(ctx context.Context, tenantID string, orderID uint64) (*Order, error) {
	o, err := m.repo.Get(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Transition(ctx, o, StatusDelivered, nil); err != nil {
		return nil, err
	}
	return o, nil
}

func ValidEmail(s string) bool {
	return len(s) <= 254 && emailRe.MatchString(s)
}

// Summary describes o's state for the assistant's system prompt.
func Summary(o *Order) string {
	if o == nil {
		return "El cliente no tiene ningún pedido en curso."
	}
	switch o.Status {
	case StatusPendingEmail:
		return fmt.Sprintf("El cliente eligió %q (%.2f). Estamos esperando su correo electrónico.", o.ProductName, o.Amount)
	case StatusPendingPayment:
		email := ""
		if o.CustomerEmail != nil {
			email = *o.CustomerEmail
		}
		return fmt.Sprintf("El cliente eligió %q (%.2f) y dio su correo %s. Estamos esperando el comprobante de pago.", o.ProductName, o.Amount, email)
	case StatusPendingDelivery:
		return fmt.Sprintf("El cliente ya pagó %q. El pedido está pendiente de entrega.", o.ProductName)
	default:
		return "El cliente no tiene ningún pedido en curso."
	}
}
