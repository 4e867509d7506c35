package db

import (
	"testing"

	"github.com/suPer8Hu/salesbot/internal/order"
	"github.com/suPer8Hu/salesbot/internal/tenant"
)

func TestConnectSQLiteAndMigrate(t *testing.T) {
	gdb, err := Connect("sqlite:file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, m := range []any{&tenant.Credential{}, &order.Order{}} {
		if !gdb.Migrator().HasTable(m) {
			t.Fatalf("table for %T missing", m)
		}
	}
	if !gdb.Migrator().HasIndex(&order.Order{}, "ActiveChatID") {
		t.Fatalf("active order index missing")
	}
}
