package tenant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newRepo(t *testing.T) (*Repo, *gorm.DB) {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Credential{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewRepo(db), db
}

func TestResolve(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()
	if err := repo.Create(ctx, &Credential{TenantID: "t1", PhoneNumberID: "pn-1", AccessToken: "tok", AIStatus: AISleep}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := NewResolver(repo, time.Minute)

	if _, err := r.Resolve(ctx, "  "); !errors.Is(err, ErrNoMetadata) {
		t.Fatalf("expected ErrNoMetadata, got %v", err)
	}
	if _, err := r.Resolve(ctx, "pn-404"); !errors.Is(err, ErrUnknownTenant) {
		t.Fatalf("expected ErrUnknownTenant, got %v", err)
	}

	c, err := r.Resolve(ctx, "pn-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.TenantID != "t1" || c.AIEnabled() || c.Gateway().AccessToken != "tok" {
		t.Fatalf("unexpected credential %+v", c)
	}

	// Cached copies are independent of the caller's mutations.
	c.TenantID = "mutated"
	db.Model(&Credential{}).Where("tenant_id = ?", "t1").Update("ai_status", AIActive)
	again, _ := r.Resolve(ctx, "pn-1")
	if again.TenantID != "t1" || again.AIEnabled() {
		t.Fatalf("expected cached copy, got %+v", again)
	}

	r.Invalidate("pn-1")
	fresh, _ := r.Resolve(ctx, "pn-1")
	if !fresh.AIEnabled() {
		t.Fatalf("invalidate should reload settings")
	}
}

func TestResolve_MissNotCached(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	r := NewResolver(repo, time.Minute)

	if _, err := r.Resolve(ctx, "pn-2"); !errors.Is(err, ErrUnknownTenant) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := repo.Create(ctx, &Credential{TenantID: "t2", PhoneNumberID: "pn-2", AccessToken: "tok"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c, err := r.Resolve(ctx, "pn-2")
	if err != nil || c.TenantID != "t2" {
		t.Fatalf("new tenant should resolve immediately: %v", err)
	}
	if !c.AIEnabled() {
		t.Fatalf("ai_status should default to active")
	}
}
