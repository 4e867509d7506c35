package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/gateway"
	"github.com/suPer8Hu/salesbot/internal/metrics"
	"github.com/suPer8Hu/salesbot/internal/turn"
)

// Source lists a tenant's active triggers in evaluation order.
type Source interface {
	ListActive(ctx context.Context, tenantID string) ([]Trigger, error)
}

// Sender is the outbound side the engine needs from the reply dispatcher.
type Sender interface {
	SendText(ctx context.Context, tc *turn.Context, text string) error
	SendButtons(ctx context.Context, tc *turn.Context, m gateway.ButtonsMessage) error
	SendList(ctx context.Context, tc *turn.Context, m gateway.ListMessage) error
	NotifyAdmin(ctx context.Context, tc *turn.Context, text string) error
}

type ChatUpdater interface {
	SetStatus(ctx context.Context, chatID uint64, status string) error
	SetBotPaused(ctx context.Context, chatID uint64, paused bool) error
	AddTag(ctx context.Context, chatID uint64, tag string) error
}

type Engine struct {
	source Source
	sender Sender
	chats  ChatUpdater
}

func NewEngine(source Source, sender Sender, chats ChatUpdater) *Engine {
	return &Engine{source: source, sender: sender, chats: chats}
}

// Eligible reports whether triggers are evaluated for kind. Interactive and
// button replies are excluded so a list sent by a trigger cannot re-fire it
// when the customer picks an option.
func Eligible(kind chat.Kind) bool {
	return kind == chat.KindText || kind == chat.KindAudio
}

// Run fires the first matching trigger. fired is true when one matched, in
// which case the rest of the pipeline must be skipped; err collects action
// failures, which do not undo the match.
func (e *Engine) Run(ctx context.Context, tc *turn.Context, text string) (bool, error) {
	if !Eligible(tc.Kind()) || strings.TrimSpace(text) == "" {
		return false, nil
	}
	triggers, err := e.source.ListActive(ctx, tc.TenantID())
	if err != nil {
		return false, fmt.Errorf("load triggers: %w", err)
	}

	for i := range triggers {
		t := &triggers[i]
		if !t.Matches(text) {
			continue
		}
		log.Info().
			Str("tenant", tc.TenantID()).
			Uint64("chat", tc.Chat.ID).
			Uint64("trigger", t.ID).
			Str("name", t.Name).
			Msg("trigger matched")
		metrics.TriggersFired.Inc()

		var errs []error
		for j := range t.Actions {
			if err := e.execute(ctx, tc, &t.Actions[j], text); err != nil {
				log.Warn().Err(err).Uint64("trigger", t.ID).Str("action", string(t.Actions[j].Type)).Msg("trigger action failed")
				errs = append(errs, err)
			}
		}
		return true, errors.Join(errs...)
	}
	return false, nil
}

func (e *Engine) execute(ctx context.Context, tc *turn.Context, a *Action, text string) error {
	p, err := a.Decode()
	if err != nil {
		return err
	}
	switch p := p.(type) {
	case *SendMessage:
		switch {
		case len(p.Buttons) > 0:
			return e.sender.SendButtons(ctx, tc, gateway.ButtonsMessage{
				Body: p.Message, Header: p.Header, Footer: p.Footer, Buttons: p.Buttons,
			})
		case len(p.Sections) > 0:
			return e.sender.SendList(ctx, tc, gateway.ListMessage{
				Body: p.Message, Header: p.Header, Footer: p.Footer,
				ButtonText: p.ButtonText, Sections: p.Sections,
			})
		default:
			return e.sender.SendText(ctx, tc, p.Message)
		}
	case *NotifyAdmin:
		return e.sender.NotifyAdmin(ctx, tc, RenderAdmin(p.Message, tc.Chat.DisplayName, tc.Chat.Address, text))
	case *UpdateStatus:
		if err := e.chats.SetStatus(ctx, tc.Chat.ID, p.Status); err != nil {
			return err
		}
		tc.Chat.Status = p.Status
	case *AddTag:
		return e.chats.AddTag(ctx, tc.Chat.ID, strings.TrimSpace(p.Tag))
	case *ToggleBot:
		if err := e.chats.SetBotPaused(ctx, tc.Chat.ID, !p.Enabled); err != nil {
			return err
		}
		tc.Chat.BotPaused = !p.Enabled
	}
	return nil
}

// RenderAdmin fills the {name}, {phone} and {message} placeholders.
func RenderAdmin(tmpl, name, phone, message string) string {
	if name == "" {
		name = phone
	}
	return strings.NewReplacer("{name}", name, "{phone}", phone, "{message}", message).Replace(tmpl)
}
