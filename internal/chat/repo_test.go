package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Chat{}, &Message{}, &Tag{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewRepo(db)
}

func strPtr(s string) *string { return &s }

func TestFindOrCreateChat_PerTenant(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	a, err := r.FindOrCreateChat(ctx, "t1", "591", "Ana")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := r.FindOrCreateChat(ctx, "t1", "591", "Ana María")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if again.ID != a.ID || again.DisplayName != "Ana María" {
		t.Fatalf("expected same chat with refreshed name, got %+v", again)
	}

	other, err := r.FindOrCreateChat(ctx, "t2", "591", "Ana")
	if err != nil {
		t.Fatalf("create t2: %v", err)
	}
	if other.ID == a.ID {
		t.Fatalf("tenants must not share a chat")
	}
	if _, err := r.GetChat(ctx, "t2", a.ID); err == nil {
		t.Fatalf("t2 must not read t1's chat")
	}
}

func TestInsertMessage_GatewayIDUniquePerTenant(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	c1, _ := r.FindOrCreateChat(ctx, "t1", "591", "")
	c2, _ := r.FindOrCreateChat(ctx, "t2", "591", "")

	m := &Message{TenantID: "t1", ChatID: c1.ID, Kind: KindText, Content: "hola", Status: StatusReceived, GatewayMessageID: strPtr("wamid.1")}
	if err := r.InsertMessage(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := &Message{TenantID: "t1", ChatID: c1.ID, Kind: KindText, Content: "hola", Status: StatusReceived, GatewayMessageID: strPtr("wamid.1")}
	if err := r.InsertMessage(ctx, dup); !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}
	if err := r.InsertMessage(ctx, &Message{TenantID: "t2", ChatID: c2.ID, Kind: KindText, Content: "hola", Status: StatusReceived, GatewayMessageID: strPtr("wamid.1")}); err != nil {
		t.Fatalf("same id on another tenant: %v", err)
	}

	// messages without a gateway id never collide
	for i := 0; i < 2; i++ {
		if err := r.InsertMessage(ctx, &Message{TenantID: "t1", ChatID: c1.ID, FromMe: true, Kind: KindText, Content: "x", Status: StatusFailed, GatewayMessageID: strPtr("")}); err != nil {
			t.Fatalf("insert without id: %v", err)
		}
	}

	seen, err := r.HasGatewayMessage(ctx, "t1", "wamid.1")
	if err != nil || !seen {
		t.Fatalf("expected seen, got %v %v", seen, err)
	}
	seen, _ = r.HasGatewayMessage(ctx, "t3", "wamid.1")
	if seen {
		t.Fatalf("t3 never stored wamid.1")
	}
}

func TestTrailingOutboundAudios(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	c, _ := r.FindOrCreateChat(ctx, "t1", "591", "")

	add := func(fromMe bool, kind Kind) {
		if err := r.InsertMessage(ctx, &Message{TenantID: "t1", ChatID: c.ID, FromMe: fromMe, Kind: kind, Content: "x", Status: StatusSent}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	add(true, KindAudio)
	add(true, KindText)
	add(false, KindText)
	add(true, KindAudio)
	add(false, KindAudio)
	add(true, KindAudio)

	n, err := r.TrailingOutboundAudios(ctx, c.ID, 10)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 trailing audios, got %d", n)
	}
	if n, _ := r.TrailingOutboundAudios(ctx, c.ID, 1); n != 1 {
		t.Fatalf("window of 1 should cap at 1, got %d", n)
	}
}

func TestChatSnapshotAndFlags(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	c, _ := r.FindOrCreateChat(ctx, "t1", "591", "")
	now := time.Now()

	if err := r.TouchInbound(ctx, c.ID, "hola", now); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := r.TouchInbound(ctx, c.ID, "¿sigues?", now); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := r.SetBotPaused(ctx, c.ID, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	for _, tag := range []string{"vip", "vip", "lead"} {
		if err := r.AddTag(ctx, c.ID, tag); err != nil {
			t.Fatalf("tag: %v", err)
		}
	}

	got, err := r.GetChat(ctx, "t1", c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UnreadCount != 2 || got.LastMessage != "¿sigues?" || !got.BotPaused {
		t.Fatalf("unexpected chat %+v", got)
	}
	tags, _ := r.ListTags(ctx, c.ID)
	if strings.Join(tags, ",") != "lead,vip" {
		t.Fatalf("unexpected tags %v", tags)
	}
}
