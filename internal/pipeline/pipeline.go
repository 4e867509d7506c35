// Package pipeline processes one inbound gateway event end to end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/assistant"
	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/classify"
	"github.com/suPer8Hu/salesbot/internal/dedup"
	"github.com/suPer8Hu/salesbot/internal/gateway"
	"github.com/suPer8Hu/salesbot/internal/metrics"
	"github.com/suPer8Hu/salesbot/internal/order"
	"github.com/suPer8Hu/salesbot/internal/tenant"
	"github.com/suPer8Hu/salesbot/internal/trigger"
	"github.com/suPer8Hu/salesbot/internal/turn"
)

type Resolver interface {
	Resolve(ctx context.Context, routingID string) (*tenant.Credential, error)
}

type Chats interface {
	FindOrCreateChat(ctx context.Context, tenantID, address, displayName string) (*chat.Chat, error)
	InsertMessage(ctx context.Context, m *chat.Message) error
	TouchInbound(ctx context.Context, chatID uint64, snapshot string, at time.Time) error
	SetContent(ctx context.Context, id uint64, content string) error
}

type Ingestor interface {
	Ingest(ctx context.Context, tenantID string, creds gateway.Creds, chatID uint64, mediaID, mime string) (string, error)
}

type MediaFetcher interface {
	FetchMedia(ctx context.Context, creds gateway.Creds, mediaID string) ([]byte, string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mime string) (string, error)
}

type Triggers interface {
	Run(ctx context.Context, tc *turn.Context, text string) (bool, error)
}

type Assistant interface {
	Reply(ctx context.Context, tc *turn.Context, input string) (assistant.Result, error)
}

type Replies interface {
	Deliver(ctx context.Context, tc *turn.Context, text string) error
	SendText(ctx context.Context, tc *turn.Context, text string) error
	SendImage(ctx context.Context, tc *turn.Context, url, caption string) error
}

// Locker serializes work on one conversation.
type Locker interface {
	Lock(ctx context.Context, key string, ttl, wait time.Duration) (func(), error)
}

type Deps struct {
	Resolver    Resolver
	Guard       *dedup.Guard
	Chats       Chats
	Orders      *order.Machine
	Ingestor    Ingestor
	Media       MediaFetcher
	Transcriber Transcriber
	Triggers    Triggers
	Assistant   Assistant
	Replies     Replies
	// Locker is optional.
	Locker Locker
}

type Options struct {
	Timeout  time.Duration
	LockTTL  time.Duration
	LockWait time.Duration
}

type Pipeline struct {
	d    Deps
	opts Options
	now  func() time.Time
}

func New(d Deps, opts Options) *Pipeline {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 30 * time.Second
	}
	return &Pipeline{d: d, opts: opts, now: time.Now}
}

// Process runs one change event. A non-nil error means the event could not
// be classified as done and should be retried by the caller.
func (p *Pipeline) Process(ctx context.Context, ev gateway.ChangeValue) (out Outcome, err error) {
	start := time.Now()
	defer func() {
		label := out.String()
		if err != nil {
			label = "error"
		}
		metrics.WebhookEvents.WithLabelValues(label).Inc()
		metrics.PipelineDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	cred, err := p.d.Resolver.Resolve(ctx, ev.Metadata.PhoneNumberID)
	switch {
	case errors.Is(err, tenant.ErrNoMetadata):
		return NoMetadata, nil
	case errors.Is(err, tenant.ErrUnknownTenant):
		log.Warn().Str("phone_number_id", ev.Metadata.PhoneNumberID).Msg("event for unknown tenant dropped")
		return UnknownTenant, nil
	case err != nil:
		return Ignored, fmt.Errorf("resolve tenant: %w", err)
	}

	if len(ev.Messages) == 0 {
		return Ignored, nil
	}
	msg := ev.Messages[0]
	name := ""
	if len(ev.Contacts) > 0 {
		name = strings.TrimSpace(ev.Contacts[0].Profile.Name)
	}

	release, err := p.d.Guard.Claim(ctx, cred.TenantID, msg.ID)
	if errors.Is(err, dedup.ErrDuplicate) {
		log.Info().Str("tenant", cred.TenantID).Str("wamid", msg.ID).Msg("duplicate event skipped")
		return Duplicate, nil
	}
	if err != nil {
		return Ignored, err
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	if p.d.Locker != nil {
		unlock, lerr := p.d.Locker.Lock(ctx, fmt.Sprintf("chatlock:%s:%s", cred.TenantID, msg.From), p.opts.LockTTL, p.opts.LockWait)
		if lerr != nil {
			if ctx.Err() != nil {
				return Ignored, ctx.Err()
			}
			log.Warn().Err(lerr).Str("tenant", cred.TenantID).Str("from", msg.From).Msg("conversation lock unavailable, continuing")
		} else {
			defer unlock()
		}
	}

	return p.handle(ctx, cred, msg, name)
}

func (p *Pipeline) handle(ctx context.Context, cred *tenant.Credential, msg gateway.InboundMessage, name string) (Outcome, error) {
	res := classify.Message(msg)

	c, err := p.d.Chats.FindOrCreateChat(ctx, cred.TenantID, msg.From, name)
	if err != nil {
		return Ignored, fmt.Errorf("load chat: %w", err)
	}
	tc := &turn.Context{Tenant: cred, Chat: c, Event: res, WamID: msg.ID}
	lg := log.With().Str("tenant", cred.TenantID).Uint64("chat", c.ID).Str("wamid", msg.ID).Str("kind", string(res.Kind)).Logger()

	var mediaURL string
	if res.Kind == chat.KindImage && res.MediaRef != "" && p.d.Ingestor != nil {
		mediaURL, err = p.d.Ingestor.Ingest(ctx, cred.TenantID, cred.Gateway(), c.ID, res.MediaRef, res.MediaMime)
		if err != nil {
			lg.Warn().Err(err).Msg("media ingest failed, continuing without media")
			mediaURL = ""
		}
	}

	in := &chat.Message{
		TenantID: cred.TenantID,
		ChatID:   c.ID,
		Kind:     res.Kind,
		Content:  res.Text,
		Status:   chat.StatusReceived,
	}
	if mediaURL != "" {
		in.MediaURL = &mediaURL
	}
	if msg.ID != "" {
		id := msg.ID
		in.GatewayMessageID = &id
	}
	if err := p.d.Chats.InsertMessage(ctx, in); err != nil {
		if errors.Is(err, chat.ErrDuplicateMessage) {
			return Duplicate, nil
		}
		return Ignored, fmt.Errorf("store inbound: %w", err)
	}
	tc.Inbound = in
	if err := p.d.Chats.TouchInbound(ctx, c.ID, res.Text, p.now()); err != nil {
		lg.Warn().Err(err).Msg("update chat snapshot")
	}

	if _, err := p.d.Orders.ExpireStale(ctx, c.ID); err != nil {
		return Ignored, err
	}
	switch o, err := p.d.Orders.Active(ctx, c.ID); {
	case err == nil:
		tc.Order = o
	case !errors.Is(err, order.ErrNoActiveOrder):
		return Ignored, err
	}

	input := res.Text
	if res.Kind == chat.KindAudio {
		input = p.transcribe(ctx, tc, lg)
	}

	if trigger.Eligible(res.Kind) {
		fired, err := p.d.Triggers.Run(ctx, tc, input)
		if fired {
			if err != nil {
				lg.Warn().Err(err).Msg("trigger fired with failed actions")
			}
			return Processed, nil
		}
		if err != nil {
			return Ignored, err
		}
	}

	if productID, ok := classify.ProductSelection(res.Selection); ok {
		return Processed, p.selectProduct(ctx, tc, productID, lg)
	}

	if res.ReceiptCandidate && tc.Order != nil && tc.Order.Status == order.StatusPendingPayment {
		return Processed, p.attachReceipt(ctx, tc, mediaURL, res.MediaRef, lg)
	}

	if !p.aiEligible(tc) {
		return Processed, nil
	}
	result, err := p.d.Assistant.Reply(ctx, tc, input)
	if err != nil {
		return Ignored, fmt.Errorf("assistant: %w", err)
	}
	if err := p.d.Replies.Deliver(ctx, tc, result.Text); err != nil {
		lg.Warn().Err(err).Msg("reply not delivered")
	}
	if result.QRImageURL != "" {
		if err := p.d.Replies.SendImage(ctx, tc, result.QRImageURL, "Código QR de pago"); err != nil {
			lg.Warn().Err(err).Msg("payment QR not delivered")
		}
	}
	return Processed, nil
}

func (p *Pipeline) aiEligible(tc *turn.Context) bool {
	if !tc.Tenant.AIEnabled() || tc.Chat.BotPaused {
		return false
	}
	switch tc.Kind() {
	case chat.KindText, chat.KindAudio, chat.KindInteractive:
		return true
	}
	return false
}

// transcribe returns the voice note's text, or a placeholder when it cannot
// be read. The stored inbound message is updated with the result.
func (p *Pipeline) transcribe(ctx context.Context, tc *turn.Context, lg zerolog.Logger) string {
	text := assistant.MsgAudioUnreadable
	if p.d.Transcriber != nil && p.d.Media != nil && tc.Event.MediaRef != "" {
		data, mime, err := p.d.Media.FetchMedia(ctx, tc.Creds(), tc.Event.MediaRef)
		if err == nil {
			if tc.Event.MediaMime != "" {
				mime = tc.Event.MediaMime
			}
			var t string
			t, err = p.d.Transcriber.Transcribe(ctx, data, mime)
			if err == nil && strings.TrimSpace(t) != "" {
				text = t
			}
		}
		if err != nil {
			metrics.DegradedSteps.WithLabelValues("transcription").Inc()
			lg.Warn().Err(err).Msg("audio transcription failed")
		}
	}
	if err := p.d.Chats.SetContent(ctx, tc.Inbound.ID, text); err != nil {
		lg.Warn().Err(err).Msg("store transcription")
	}
	return text
}

func (p *Pipeline) selectProduct(ctx context.Context, tc *turn.Context, productID string, lg zerolog.Logger) error {
	o, prod, err := p.d.Orders.Confirm(ctx, tc.Chat, productID)
	if errors.Is(err, order.ErrUnknownProduct) {
		lg.Warn().Str("product", productID).Msg("selection of unknown product")
		p.sendText(ctx, tc, assistant.MsgUnknownPlan, lg)
		return nil
	}
	if err != nil {
		return err
	}
	tc.Order = o
	p.sendText(ctx, tc, assistant.MsgAskEmail(prod.Name), lg)
	return nil
}

func (p *Pipeline) attachReceipt(ctx context.Context, tc *turn.Context, mediaURL, mediaID string, lg zerolog.Logger) error {
	o, err := p.d.Orders.AttachReceipt(ctx, tc.Chat, mediaURL, mediaID)
	if err != nil {
		if errors.Is(err, order.ErrNoActiveOrder) || errors.Is(err, order.ErrStaleOrder) {
			lg.Info().Err(err).Msg("receipt arrived without a payable order")
			return nil
		}
		return err
	}
	tc.Order = o
	p.sendText(ctx, tc, assistant.MsgReceiptReceived(o.ProductName), lg)
	return nil
}

// sendText delivers a fast-path confirmation. Gateway failures are logged
// and recorded by the dispatcher, not retried, so the state change stands.
func (p *Pipeline) sendText(ctx context.Context, tc *turn.Context, text string, lg zerolog.Logger) {
	if err := p.d.Replies.SendText(ctx, tc, text); err != nil {
		lg.Warn().Err(err).Msg("fast-path reply not delivered")
	}
}
