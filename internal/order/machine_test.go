package order

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/salesbot/internal/catalog"
	"github.com/suPer8Hu/salesbot/internal/chat"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Order{}, &catalog.Product{}, &chat.Chat{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fixture struct {
	db      *gorm.DB
	machine *Machine
	chat    *chat.Chat
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	ctx := context.Background()

	products := catalog.NewRepo(db)
	for _, p := range []catalog.Product{
		{ID: "p1", TenantID: "t1", Name: "Plan Oro", Price: 50, Active: true, PaymentQRURL: "https://cdn.example.com/qr-oro.png"},
		{ID: "p2", TenantID: "t1", Name: "Plan Plata", Price: 30, Active: true},
		{ID: "p9", TenantID: "t2", Name: "Otro tenant", Price: 99, Active: true},
	} {
		p := p
		if err := products.Create(ctx, &p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}

	c, err := chat.NewRepo(db).FindOrCreateChat(ctx, "t1", "59170000001", "Ana")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	f := &fixture{db: db, chat: c, now: time.Now()}
	f.machine = NewMachine(NewRepo(db), products).WithClock(func() time.Time { return f.now })
	return f
}

func TestConfirm_CreatesPendingEmailOrder(t *testing.T) {
	f := newFixture(t)

	o, p, err := f.machine.Confirm(context.Background(), f.chat, "p1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if o.Status != StatusPendingEmail {
		t.Fatalf("expected pending_email, got %s", o.Status)
	}
	if o.Amount != 50 || o.ProductName != "Plan Oro" || p.ID != "p1" {
		t.Fatalf("unexpected order: %+v", o)
	}
	if o.CustomerEmail != nil {
		t.Fatalf("email should be empty until provided")
	}
}

func TestConfirm_UnknownOrForeignProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"nope", "p9"} {
		if _, _, err := f.machine.Confirm(ctx, f.chat, id); !errors.Is(err, ErrUnknownProduct) {
			t.Fatalf("product %q: expected ErrUnknownProduct, got %v", id, err)
		}
	}
	orders, _ := f.machine.Repo().ListByChat(ctx, f.chat.ID)
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
}

func TestConfirm_ReplacesActiveOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.machine.Confirm(ctx, f.chat, "p1")
	if err != nil {
		t.Fatalf("confirm p1: %v", err)
	}
	second, _, err := f.machine.Confirm(ctx, f.chat, "p2")
	if err != nil {
		t.Fatalf("confirm p2: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a new order")
	}

	orders, _ := f.machine.Repo().ListByChat(ctx, f.chat.ID)
	if len(orders) != 2 || orders[0].Status != StatusCancelled || orders[1].Status != StatusPendingEmail {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}

func TestActiveSlot_RejectsSecondActiveOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := f.machine.Repo()

	if err := repo.Create(ctx, &Order{ChatID: f.chat.ID, TenantID: "t1", CustomerAddress: f.chat.Address, ProductID: "p1", Amount: 50}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := repo.Create(ctx, &Order{ChatID: f.chat.ID, TenantID: "t1", CustomerAddress: f.chat.Address, ProductID: "p2", Amount: 30})
	if !errors.Is(err, ErrActiveOrderExists) {
		t.Fatalf("expected ErrActiveOrderExists, got %v", err)
	}
}

func TestSubmitEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.machine.SubmitEmail(ctx, f.chat, "ana@x.com"); !errors.Is(err, ErrNoActiveOrder) {
		t.Fatalf("expected ErrNoActiveOrder without order, got %v", err)
	}
	if _, _, err := f.machine.Confirm(ctx, f.chat, "p1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, _, err := f.machine.SubmitEmail(ctx, f.chat, "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}

	o, p, err := f.machine.SubmitEmail(ctx, f.chat, " Ana@X.com ")
	if err != nil {
		t.Fatalf("submit email: %v", err)
	}
	if o.Status != StatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", o.Status)
	}
	if o.CustomerEmail == nil || *o.CustomerEmail != "ana@x.com" {
		t.Fatalf("unexpected email: %v", o.CustomerEmail)
	}
	if p == nil || p.PaymentQRURL == "" {
		t.Fatalf("expected product with QR, got %+v", p)
	}
}

func TestAttachReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.machine.AttachReceipt(ctx, f.chat, "https://cdn/r.jpg", "m1"); !errors.Is(err, ErrNoActiveOrder) {
		t.Fatalf("expected ErrNoActiveOrder, got %v", err)
	}
	f.machine.Confirm(ctx, f.chat, "p1")
	f.machine.SubmitEmail(ctx, f.chat, "ana@x.com")

	f.now = time.Date(2024, 5, 1, 16, 30, 0, 0, time.UTC)
	o, err := f.machine.AttachReceipt(ctx, f.chat, "https://cdn/r.jpg", "m1")
	if err != nil {
		t.Fatalf("attach receipt: %v", err)
	}
	if o.Status != StatusPendingDelivery {
		t.Fatalf("expected pending_delivery, got %s", o.Status)
	}

	stored, err := f.machine.Repo().Get(ctx, "t1", o.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := stored.MetaString(MetaReceiptImageURL); got != "https://cdn/r.jpg" {
		t.Fatalf("receipt url = %q", got)
	}
	if got := stored.MetaString(MetaReceiptAt); got != "2024-05-01 12:30:00" {
		t.Fatalf("receipt_at = %q", got)
	}
	if stored.ActiveChatID != nil {
		t.Fatalf("active slot should be released after payment")
	}
}

func TestExpireStale_CancelsAndAllowsFreshOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.machine.Confirm(ctx, f.chat, "p1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	f.now = f.now.Add(61 * time.Minute)
	n, err := f.machine.ExpireStale(ctx, f.chat.ID)
	if err != nil || n != 1 {
		t.Fatalf("expire: n=%d err=%v", n, err)
	}
	if _, err := f.machine.Active(ctx, f.chat.ID); !errors.Is(err, ErrNoActiveOrder) {
		t.Fatalf("expected no active order, got %v", err)
	}

	second, _, err := f.machine.Confirm(ctx, f.chat, "p1")
	if err != nil {
		t.Fatalf("confirm again: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("cancelled order must not be resurrected")
	}
	old, _ := f.machine.Repo().Get(ctx, "t1", first.ID)
	if old.Status != StatusCancelled {
		t.Fatalf("expected first order cancelled, got %s", old.Status)
	}
}

func TestExpireStale_KeepsRecentOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine.Confirm(ctx, f.chat, "p1")

	f.now = f.now.Add(59 * time.Minute)
	if n, _ := f.machine.ExpireStale(ctx, f.chat.ID); n != 0 {
		t.Fatalf("expected nothing cancelled, got %d", n)
	}
}

func TestExpireStale_AgeCountsFromCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _, err := f.machine.Confirm(ctx, f.chat, "p1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := f.db.Model(&Order{}).Where("id = ?", o.ID).
		UpdateColumn("created_at", f.now.Add(-50*time.Minute)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if _, _, err := f.machine.SubmitEmail(ctx, f.chat, "ana@x.com"); err != nil {
		t.Fatalf("submit email: %v", err)
	}

	f.now = f.now.Add(11 * time.Minute)
	n, err := f.machine.ExpireStale(ctx, f.chat.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected the pending_payment order cancelled, n=%d err=%v", n, err)
	}
	stored, _ := f.machine.Repo().Get(ctx, "t1", o.ID)
	if stored.Status != StatusCancelled || stored.ActiveChatID != nil {
		t.Fatalf("unexpected order after sweep: %+v", stored)
	}
}

func TestTransitions_NeverRegress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, _, _ := f.machine.Confirm(ctx, f.chat, "p1")
	f.machine.SubmitEmail(ctx, f.chat, "ana@x.com")
	f.machine.AttachReceipt(ctx, f.chat, "u", "m")

	stored, _ := f.machine.Repo().Get(ctx, "t1", o.ID)
	for _, back := range []Status{StatusPendingEmail, StatusPendingPayment, StatusCancelled} {
		err := f.machine.Repo().Transition(ctx, stored, back, nil)
		if !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("%s -> %s: expected ErrIllegalTransition, got %v", stored.Status, back, err)
		}
	}

	delivered, err := f.machine.MarkDelivered(ctx, "t1", o.ID)
	if err != nil || delivered.Status != StatusDelivered {
		t.Fatalf("mark delivered: %v", err)
	}
	if _, err := f.machine.MarkDelivered(ctx, "t1", o.ID); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition on second delivery, got %v", err)
	}
	if _, err := f.machine.MarkDelivered(ctx, "t2", o.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other tenant must not see the order, got %v", err)
	}
}

func TestTransition_StaleCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, _, _ := f.machine.Confirm(ctx, f.chat, "p1")
	copyA := *o
	copyB := *o
	if err := f.machine.Repo().Transition(ctx, &copyA, StatusPendingPayment, nil); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := f.machine.Repo().Transition(ctx, &copyB, StatusCancelled, nil); !errors.Is(err, ErrStaleOrder) {
		t.Fatalf("expected ErrStaleOrder, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	if s := Summary(nil); !strings.Contains(s, "ningún pedido") {
		t.Fatalf("unexpected summary: %q", s)
	}
	o := &Order{Status: StatusPendingEmail, ProductName: "Plan Oro", Amount: 50}
	if s := Summary(o); !strings.Contains(s, "correo") {
		t.Fatalf("unexpected summary: %q", s)
	}
}
