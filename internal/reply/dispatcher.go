// Package reply sends outbound messages through the gateway and records
// them in the conversation store.
package reply

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/gateway"
	"github.com/suPer8Hu/salesbot/internal/metrics"
	"github.com/suPer8Hu/salesbot/internal/turn"
)

type Gateway interface {
	SendText(ctx context.Context, creds gateway.Creds, to, text string) (string, error)
	SendMedia(ctx context.Context, creds gateway.Creds, to string, kind gateway.MediaKind, link, caption string) (string, error)
	SendList(ctx context.Context, creds gateway.Creds, to string, m gateway.ListMessage) (string, error)
	SendButtons(ctx context.Context, creds gateway.Creds, to string, m gateway.ButtonsMessage) (string, error)
}

type Speaker interface {
	Speak(ctx context.Context, text, voice string) ([]byte, string, error)
}

// Uploader stores generated audio and returns its public URL.
type Uploader interface {
	Store(ctx context.Context, tenantID string, chatID uint64, data []byte, mime string) (string, error)
}

type Store interface {
	InsertMessage(ctx context.Context, m *chat.Message) error
	TouchOutbound(ctx context.Context, chatID uint64, snapshot string, at time.Time) error
	TrailingOutboundAudios(ctx context.Context, chatID uint64, window int) (int, error)
}

type Dispatcher struct {
	gw       Gateway
	speaker  Speaker
	uploader Uploader
	store    Store
	roll     func() int
	now      func() time.Time
}

// New builds a dispatcher. speaker and uploader may be nil, which disables
// audio replies.
func New(gw Gateway, speaker Speaker, uploader Uploader, store Store) *Dispatcher {
	return &Dispatcher{
		gw:       gw,
		speaker:  speaker,
		uploader: uploader,
		store:    store,
		roll:     func() int { return rand.IntN(100) },
		now:      time.Now,
	}
}

// WithRoll replaces the 0-99 sampler used for the audio decision.
func (d *Dispatcher) WithRoll(fn func() int) *Dispatcher {
	d.roll = fn
	return d
}

// Deliver sends the final reply of a turn as audio or text. A failure before
// the audio reaches the gateway falls back to text; once it is sent, only the
// record error is returned.
func (d *Dispatcher) Deliver(ctx context.Context, tc *turn.Context, text string) error {
	if d.wantAudio(ctx, tc) {
		sent, err := d.sendAudio(ctx, tc, text)
		if sent {
			if err != nil {
				log.Error().Err(err).Str("tenant", tc.TenantID()).Uint64("chat", tc.Chat.ID).Msg("record audio reply")
			}
			return err
		}
		metrics.DegradedSteps.WithLabelValues("audio_reply").Inc()
		log.Warn().Err(err).Str("tenant", tc.TenantID()).Uint64("chat", tc.Chat.ID).Msg("audio reply failed, sending text")
	}
	return d.SendText(ctx, tc, text)
}

func (d *Dispatcher) wantAudio(ctx context.Context, tc *turn.Context) bool {
	p := tc.Tenant.AudioProbability
	if p <= 0 || d.speaker == nil || d.uploader == nil {
		return false
	}
	if max := tc.Tenant.MaxConsecutiveAudios; max > 0 {
		n, err := d.store.TrailingOutboundAudios(ctx, tc.Chat.ID, max)
		if err != nil {
			log.Warn().Err(err).Uint64("chat", tc.Chat.ID).Msg("count trailing audios")
			return false
		}
		if n >= max {
			return false
		}
	}
	return d.roll() < p
}

// sendAudio reports whether the audio reached the gateway alongside any error.
func (d *Dispatcher) sendAudio(ctx context.Context, tc *turn.Context, text string) (bool, error) {
	data, mime, err := d.speaker.Speak(ctx, text, tc.Tenant.Voice)
	if err != nil {
		return false, fmt.Errorf("synthesize: %w", err)
	}
	url, err := d.uploader.Store(ctx, tc.TenantID(), tc.Chat.ID, data, mime)
	if err != nil {
		return false, fmt.Errorf("upload audio: %w", err)
	}
	id, err := d.gw.SendMedia(ctx, tc.Creds(), tc.Address(), gateway.MediaAudio, url, "")
	if err != nil {
		metrics.RepliesSent.WithLabelValues("audio", "error").Inc()
		return false, fmt.Errorf("send audio: %w", err)
	}
	metrics.RepliesSent.WithLabelValues("audio", "ok").Inc()
	return true, d.record(ctx, tc, chat.KindAudio, text, url, id, nil)
}

func (d *Dispatcher) SendText(ctx context.Context, tc *turn.Context, text string) error {
	id, err := d.gw.SendText(ctx, tc.Creds(), tc.Address(), text)
	return d.after(ctx, tc, "text", chat.KindText, text, "", id, err)
}

func (d *Dispatcher) SendImage(ctx context.Context, tc *turn.Context, url, caption string) error {
	id, err := d.gw.SendMedia(ctx, tc.Creds(), tc.Address(), gateway.MediaImage, url, caption)
	content := caption
	if content == "" {
		content = "[Imagen]"
	}
	return d.after(ctx, tc, "image", chat.KindImage, content, url, id, err)
}

func (d *Dispatcher) SendList(ctx context.Context, tc *turn.Context, m gateway.ListMessage) error {
	id, err := d.gw.SendList(ctx, tc.Creds(), tc.Address(), m)
	return d.after(ctx, tc, "list", chat.KindInteractive, m.Body, "", id, err)
}

func (d *Dispatcher) SendButtons(ctx context.Context, tc *turn.Context, m gateway.ButtonsMessage) error {
	id, err := d.gw.SendButtons(ctx, tc.Creds(), tc.Address(), m)
	return d.after(ctx, tc, "buttons", chat.KindInteractive, m.Body, "", id, err)
}

// NotifyAdmin texts the tenant's admin phone. It is not part of the
// customer conversation and is not recorded there.
func (d *Dispatcher) NotifyAdmin(ctx context.Context, tc *turn.Context, text string) error {
	phone := tc.Tenant.AdminPhone
	if phone == "" {
		log.Warn().Str("tenant", tc.TenantID()).Msg("notify_admin skipped: no admin phone configured")
		return nil
	}
	if _, err := d.gw.SendText(ctx, tc.Creds(), phone, text); err != nil {
		metrics.RepliesSent.WithLabelValues("admin", "error").Inc()
		return fmt.Errorf("notify admin: %w", err)
	}
	metrics.RepliesSent.WithLabelValues("admin", "ok").Inc()
	return nil
}

// after records a send attempt. Failed sends are stored with status failed
// and the send error is returned.
func (d *Dispatcher) after(ctx context.Context, tc *turn.Context, channel string, kind chat.Kind, content, mediaURL, wamid string, sendErr error) error {
	if sendErr != nil {
		metrics.RepliesSent.WithLabelValues(channel, "error").Inc()
		log.Error().Err(sendErr).Str("tenant", tc.TenantID()).Uint64("chat", tc.Chat.ID).Str("channel", channel).Msg("gateway send failed")
		if err := d.record(ctx, tc, kind, content, mediaURL, "", sendErr); err != nil {
			log.Error().Err(err).Uint64("chat", tc.Chat.ID).Msg("record failed send")
		}
		return sendErr
	}
	metrics.RepliesSent.WithLabelValues(channel, "ok").Inc()
	return d.record(ctx, tc, kind, content, mediaURL, wamid, nil)
}

func (d *Dispatcher) record(ctx context.Context, tc *turn.Context, kind chat.Kind, content, mediaURL, wamid string, sendErr error) error {
	m := &chat.Message{
		TenantID: tc.TenantID(),
		ChatID:   tc.Chat.ID,
		FromMe:   true,
		Kind:     kind,
		Content:  content,
		Status:   chat.StatusSent,
	}
	if sendErr != nil {
		m.Status = chat.StatusFailed
	}
	if mediaURL != "" {
		m.MediaURL = &mediaURL
	}
	if wamid != "" {
		m.GatewayMessageID = &wamid
	}
	if err := d.store.InsertMessage(ctx, m); err != nil {
		return fmt.Errorf("store outbound message: %w", err)
	}
	if sendErr == nil {
		if err := d.store.TouchOutbound(ctx, tc.Chat.ID, content, d.now()); err != nil {
			return fmt.Errorf("update chat snapshot: %w", err)
		}
	}
	return nil
}
