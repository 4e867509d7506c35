// Package classify turns raw gateway messages into the canonical shape the
// pipeline works with. It does no I/O.
package classify

import (
	"fmt"
	"strings"

	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/gateway"
)

// Selection is the option a customer picked from a list or button message.
type Selection struct {
	ID    string
	Title string
}

type Result struct {
	Kind chat.Kind
	// Text is the display string stored as the message content.
	Text string
	// MediaRef is the gateway attachment id, empty for non-media kinds.
	MediaRef  string
	MediaMime string
	// ReceiptCandidate is set for every image attachment.
	ReceiptCandidate bool
	Selection        *Selection
}

func Message(msg gateway.InboundMessage) Result {
	switch msg.Type {
	case "text":
		r := Result{Kind: chat.KindText}
		if msg.Text != nil {
			r.Text = msg.Text.Body
		}
		return r

	case "image":
		r := media(chat.KindImage, msg.Image, "[Imagen]")
		r.ReceiptCandidate = true
		return r

	case "audio":
		r := media(chat.KindAudio, msg.Audio, "[Audio]")
		r.Text = "[Audio]"
		return r

	case "video":
		return media(chat.KindVideo, msg.Video, "[Video]")

	case "document":
		r := media(chat.KindDocument, msg.Document, "[Documento]")
		if msg.Document != nil && msg.Document.Filename != "" {
			r.Text = fmt.Sprintf("[Documento: %s]", msg.Document.Filename)
		}
		return r

	case "sticker":
		r := media(chat.KindSticker, msg.Sticker, "[Sticker]")
		r.Text = "[Sticker]"
		return r

	case "location":
		r := Result{Kind: chat.KindLocation, Text: "[Ubicación]"}
		if l := msg.Location; l != nil {
			label := strings.TrimSpace(strings.Join(nonEmpty(l.Name, l.Address), ", "))
			if label != "" {
				r.Text = fmt.Sprintf("[Ubicación: %s (%.6f, %.6f)]", label, l.Latitude, l.Longitude)
			} else {
				r.Text = fmt.Sprintf("[Ubicación: %.6f, %.6f]", l.Latitude, l.Longitude)
			}
		}
		return r

	case "contacts":
		r := Result{Kind: chat.KindContacts, Text: "[Contacto]"}
		names := make([]string, 0, len(msg.Contacts))
		for _, c := range msg.Contacts {
			if n := strings.TrimSpace(c.Name.FormattedName); n != "" {
				names = append(names, n)
			}
		}
		if len(names) > 0 {
			r.Text = fmt.Sprintf("[Contacto: %s]", strings.Join(names, ", "))
		}
		return r

	case "reaction":
		r := Result{Kind: chat.KindReaction, Text: "[Reacción]"}
		if msg.Reaction != nil && msg.Reaction.Emoji != "" {
			r.Text = fmt.Sprintf("[Reacción: %s]", msg.Reaction.Emoji)
		}
		return r

	case "button":
		r := Result{Kind: chat.KindButton}
		if b := msg.Button; b != nil {
			r.Text = b.Text
			if b.Payload != "" {
				r.Selection = &Selection{ID: b.Payload, Title: b.Text}
			}
		}
		return r

	case "interactive":
		r := Result{Kind: chat.KindInteractive, Text: "[Respuesta interactiva]"}
		if in := msg.Interactive; in != nil {
			item := in.ButtonReply
			if item == nil {
				item = in.ListReply
			}
			if item != nil {
				r.Selection = &Selection{ID: item.ID, Title: item.Title}
				r.Text = item.Title
			}
		}
		return r
	}

	return Result{
		Kind: chat.KindUnsupported,
		Text: fmt.Sprintf("[Mensaje no soportado: %s]", msg.Type),
	}
}

func media(kind chat.Kind, body *gateway.MediaBody, placeholder string) Result {
	r := Result{Kind: kind, Text: placeholder}
	if body == nil {
		return r
	}
	r.MediaRef = body.ID
	r.MediaMime = body.MimeType
	if c := strings.TrimSpace(body.Caption); c != "" {
		r.Text = c
	}
	return r
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// ProductSelection reports the catalog id carried by a "product_<id>"
// selection.
func ProductSelection(sel *Selection) (string, bool) {
	if sel == nil {
		return "", false
	}
	id, ok := strings.CutPrefix(sel.ID, "product_")
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}
