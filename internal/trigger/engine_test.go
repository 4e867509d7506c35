package trigger

import (
	"context"
	"errors"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/classify"
	"github.com/suPer8Hu/salesbot/internal/gateway"
	"github.com/suPer8Hu/salesbot/internal/tenant"
	"github.com/suPer8Hu/salesbot/internal/turn"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Trigger{}, &Condition{}, &Action{}, &chat.Chat{}, &chat.Tag{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type sent struct {
	kind string
	to   string
	body string
}

type fakeSender struct {
	out []sent
}

func (f *fakeSender) SendText(ctx context.Context, tc *turn.Context, text string) error {
	f.out = append(f.out, sent{"text", tc.Address(), text})
	return nil
}

func (f *fakeSender) SendButtons(ctx context.Context, tc *turn.Context, m gateway.ButtonsMessage) error {
	f.out = append(f.out, sent{"buttons", tc.Address(), m.Body})
	return nil
}

func (f *fakeSender) SendList(ctx context.Context, tc *turn.Context, m gateway.ListMessage) error {
	f.out = append(f.out, sent{"list", tc.Address(), m.Body})
	return nil
}

func (f *fakeSender) NotifyAdmin(ctx context.Context, tc *turn.Context, text string) error {
	f.out = append(f.out, sent{"admin", tc.Tenant.AdminPhone, text})
	return nil
}

func mustAction(t *testing.T, p Payload, pos int) Action {
	t.Helper()
	a, err := NewAction(p, pos)
	if err != nil {
		t.Fatalf("new action: %v", err)
	}
	return a
}

type fixture struct {
	repo   *Repo
	chats  *chat.Repo
	sender *fakeSender
	engine *Engine
	tc     *turn.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	chats := chat.NewRepo(db)
	c, err := chats.FindOrCreateChat(context.Background(), "t1", "59170000001", "Ana")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	f := &fixture{repo: NewRepo(db), chats: chats, sender: &fakeSender{}}
	f.engine = NewEngine(f.repo, f.sender, chats)
	f.tc = &turn.Context{
		Tenant: &tenant.Credential{TenantID: "t1", AdminPhone: "59179999999"},
		Chat:   c,
		Event:  classify.Result{Kind: chat.KindText},
	}
	return f
}

func (f *fixture) add(t *testing.T, tr Trigger) *Trigger {
	t.Helper()
	if err := f.repo.Create(context.Background(), &tr); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	return &tr
}

func TestConditions(t *testing.T) {
	cases := []struct {
		cond Condition
		text string
		want bool
	}{
		{Condition{Type: CondContainsWords, Value: "precio, costo"}, "Cuál es el PRECIO?", true},
		{Condition{Type: CondContainsWords, Value: "precio, costo"}, "hola", false},
		{Condition{Type: CondContainsWords, Operator: OpAll, Value: "plan,oro"}, "quiero el plan oro", true},
		{Condition{Type: CondContainsWords, Operator: OpAll, Value: "plan,oro"}, "quiero el plan plata", false},
		{Condition{Type: CondContainsWords, Value: " , "}, "anything", false},
		{Condition{Type: CondEquals, Value: "Hola"}, "  hola ", true},
		{Condition{Type: CondEquals, Value: "Hola"}, "hola amigo", false},
		{Condition{Type: CondStartsWith, Value: "info"}, "Info del plan", true},
		{Condition{Type: CondStartsWith, Value: ""}, "x", false},
	}
	for i, tc := range cases {
		if got := tc.cond.Matches(tc.text); got != tc.want {
			t.Fatalf("case %d (%s %q vs %q): got %v", i, tc.cond.Type, tc.cond.Value, tc.text, got)
		}
	}
	if (&Trigger{}).Matches("hola") {
		t.Fatalf("trigger without conditions must not match")
	}
}

func TestBeforeSave_RejectsMalformedPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := []Action{
		{Type: ActSendMessage, Payload: []byte(`{"message":""}`)},
		{Type: ActUpdateStatus, Payload: []byte(`{}`)},
		{Type: ActAddTag, Payload: []byte(`{"tag":123}`)},
		{Type: "launch_rockets", Payload: []byte(`{}`)},
		{Type: ActSendMessage, Payload: []byte(`{"message":"x","buttons":[{"title":"a"},{"title":"b"},{"title":"c"},{"title":"d"}]}`)},
	}
	for i, a := range bad {
		tr := Trigger{TenantID: "t1", Active: true,
			Conditions: []Condition{{Type: CondEquals, Value: "x"}},
			Actions:    []Action{a},
		}
		if err := f.repo.Create(ctx, &tr); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("case %d: expected ErrInvalidRule, got %v", i, err)
		}
	}

	badCond := Trigger{TenantID: "t1", Conditions: []Condition{{Type: "regex", Value: ".*"}}}
	if err := f.repo.Create(ctx, &badCond); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for condition, got %v", err)
	}
}

func TestRun_FirstMatchInPositionOrderShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, Trigger{TenantID: "t1", Name: "second", Active: true, Position: 2,
		Conditions: []Condition{{Type: CondContainsWords, Value: "precio"}},
		Actions:    []Action{mustAction(t, &SendMessage{Message: "segundo"}, 0)},
	})
	f.add(t, Trigger{TenantID: "t1", Name: "first", Active: true, Position: 1,
		Conditions: []Condition{{Type: CondContainsWords, Value: "precio"}},
		Actions: []Action{
			mustAction(t, &SendMessage{Message: "Nuestros planes", Sections: []gateway.ListSection{{Title: "Planes", Rows: []gateway.ListRow{{ID: "product_p1", Title: "Plan Oro"}}}}}, 0),
			mustAction(t, &NotifyAdmin{Message: "{name} ({phone}) pregunta: {message}"}, 1),
			mustAction(t, &AddTag{Tag: "interesado"}, 2),
			mustAction(t, &UpdateStatus{Status: "lead"}, 3),
		},
	})
	f.add(t, Trigger{TenantID: "t1", Name: "inactive", Active: false, Position: 0,
		Conditions: []Condition{{Type: CondContainsWords, Value: "precio"}},
		Actions:    []Action{mustAction(t, &SendMessage{Message: "nunca"}, 0)},
	})

	fired, err := f.engine.Run(ctx, f.tc, "¿Qué precio tiene?")
	if err != nil || !fired {
		t.Fatalf("fired=%v err=%v", fired, err)
	}
	if len(f.sender.out) != 2 {
		t.Fatalf("expected list + admin notice, got %+v", f.sender.out)
	}
	if f.sender.out[0].kind != "list" || f.sender.out[0].body != "Nuestros planes" {
		t.Fatalf("unexpected first send %+v", f.sender.out[0])
	}
	if f.sender.out[1].kind != "admin" || f.sender.out[1].to != "59179999999" ||
		f.sender.out[1].body != "Ana (59170000001) pregunta: ¿Qué precio tiene?" {
		t.Fatalf("unexpected admin notice %+v", f.sender.out[1])
	}

	tags, _ := f.chats.ListTags(ctx, f.tc.Chat.ID)
	if len(tags) != 1 || tags[0] != "interesado" {
		t.Fatalf("unexpected tags %v", tags)
	}
	stored, _ := f.chats.GetChat(ctx, "t1", f.tc.Chat.ID)
	if stored.Status != "lead" {
		t.Fatalf("status = %q", stored.Status)
	}
}

func TestRun_InteractiveReplyNeverFires(t *testing.T) {
	f := newFixture(t)
	f.add(t, Trigger{TenantID: "t1", Active: true,
		Conditions: []Condition{{Type: CondContainsWords, Value: "plan"}},
		Actions:    []Action{mustAction(t, &SendMessage{Message: "elige", Sections: []gateway.ListSection{{Rows: []gateway.ListRow{{ID: "product_p1", Title: "Plan Oro"}}}}}, 0)},
	})

	f.tc.Event = classify.Result{Kind: chat.KindInteractive, Text: "Plan Oro", Selection: &classify.Selection{ID: "product_p1", Title: "Plan Oro"}}
	fired, err := f.engine.Run(context.Background(), f.tc, "Plan Oro")
	if err != nil || fired {
		t.Fatalf("interactive reply fired a trigger: fired=%v err=%v", fired, err)
	}
	if len(f.sender.out) != 0 {
		t.Fatalf("unexpected sends %+v", f.sender.out)
	}

	f.tc.Event = classify.Result{Kind: chat.KindAudio}
	if fired, _ := f.engine.Run(context.Background(), f.tc, "info del plan"); !fired {
		t.Fatalf("transcribed audio should be eligible")
	}
}

func TestRun_ToggleBotAndTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, Trigger{TenantID: "t2", Active: true,
		Conditions: []Condition{{Type: CondEquals, Value: "asesor"}},
		Actions:    []Action{mustAction(t, &SendMessage{Message: "otro tenant"}, 0)},
	})
	if fired, _ := f.engine.Run(ctx, f.tc, "asesor"); fired {
		t.Fatalf("another tenant's trigger fired")
	}

	f.add(t, Trigger{TenantID: "t1", Active: true,
		Conditions: []Condition{{Type: CondEquals, Value: "asesor"}},
		Actions: []Action{
			mustAction(t, &SendMessage{Message: "Te comunico con un asesor", Buttons: []gateway.Button{{Title: "OK"}}}, 0),
			mustAction(t, &ToggleBot{Enabled: false}, 1),
		},
	})
	fired, err := f.engine.Run(ctx, f.tc, "Asesor")
	if err != nil || !fired {
		t.Fatalf("fired=%v err=%v", fired, err)
	}
	if f.sender.out[0].kind != "buttons" {
		t.Fatalf("expected buttons, got %+v", f.sender.out)
	}
	stored, _ := f.chats.GetChat(ctx, "t1", f.tc.Chat.ID)
	if !stored.BotPaused || !f.tc.Chat.BotPaused {
		t.Fatalf("bot should be paused")
	}
}
