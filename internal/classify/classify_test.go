package classify

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/gateway"
)

func parse(t *testing.T, raw string) gateway.InboundMessage {
	t.Helper()
	var m gateway.InboundMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestMessage_Kinds(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		kind    chat.Kind
		text    string
		media   string
		receipt bool
	}{
		{"text", `{"type":"text","text":{"body":"Quiero el plan Oro"}}`, chat.KindText, "Quiero el plan Oro", "", false},
		{"image", `{"type":"image","image":{"id":"m1","mime_type":"image/jpeg"}}`, chat.KindImage, "[Imagen]", "m1", true},
		{"image with caption", `{"type":"image","image":{"id":"m2","caption":"mi pago"}}`, chat.KindImage, "mi pago", "m2", true},
		{"audio", `{"type":"audio","audio":{"id":"a1","mime_type":"audio/ogg","voice":true}}`, chat.KindAudio, "[Audio]", "a1", false},
		{"video", `{"type":"video","video":{"id":"v1"}}`, chat.KindVideo, "[Video]", "v1", false},
		{"document", `{"type":"document","document":{"id":"d1","filename":"factura.pdf"}}`, chat.KindDocument, "[Documento: factura.pdf]", "d1", false},
		{"sticker", `{"type":"sticker","sticker":{"id":"s1"}}`, chat.KindSticker, "[Sticker]", "s1", false},
		{"location", `{"type":"location","location":{"latitude":-16.5,"longitude":-68.15}}`, chat.KindLocation, "[Ubicación: -16.500000, -68.150000]", "", false},
		{"contacts", `{"type":"contacts","contacts":[{"name":{"formatted_name":"Luis"}}]}`, chat.KindContacts, "[Contacto: Luis]", "", false},
		{"reaction", `{"type":"reaction","reaction":{"message_id":"x","emoji":"👍"}}`, chat.KindReaction, "[Reacción: 👍]", "", false},
		{"button", `{"type":"button","button":{"text":"Sí","payload":"yes"}}`, chat.KindButton, "Sí", "", false},
		{"unknown", `{"type":"order"}`, chat.KindUnsupported, "[Mensaje no soportado: order]", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Message(parse(t, tc.raw))
			if r.Kind != tc.kind || r.Text != tc.text || r.MediaRef != tc.media || r.ReceiptCandidate != tc.receipt {
				t.Fatalf("got %+v", r)
			}
		})
	}
}

func TestMessage_InteractiveSelection(t *testing.T) {
	list := Message(parse(t, `{"type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"product_p1","title":"Plan Oro"}}}`))
	if list.Selection == nil || list.Selection.ID != "product_p1" || list.Text != "Plan Oro" {
		t.Fatalf("list reply: %+v", list)
	}
	btn := Message(parse(t, `{"type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"b1","title":"Ver planes"}}}`))
	if btn.Selection == nil || btn.Selection.ID != "b1" {
		t.Fatalf("button reply: %+v", btn)
	}

	if id, ok := ProductSelection(list.Selection); !ok || id != "p1" {
		t.Fatalf("expected product p1, got %q %v", id, ok)
	}
	if _, ok := ProductSelection(btn.Selection); ok {
		t.Fatalf("b1 is not a product selection")
	}
	if _, ok := ProductSelection(&Selection{ID: "product_"}); ok {
		t.Fatalf("empty product id must not match")
	}
}

func TestMessage_Idempotent(t *testing.T) {
	raw := `{"type":"image","image":{"id":"m1","mime_type":"image/png","caption":"comprobante"}}`
	msg := parse(t, raw)
	first := Message(msg)
	for i := 0; i < 3; i++ {
		if again := Message(msg); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}
