package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/gateway"
	"github.com/suPer8Hu/salesbot/internal/httpapi/middleware"
	"github.com/suPer8Hu/salesbot/internal/pipeline"
)

const (
	businessObject  = "whatsapp_business_account"
	signatureHeader = "X-Hub-Signature-256"
	maxWebhookBody  = 1 << 20
)

// VerifyWebhook answers the gateway's subscription handshake.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if mode == "subscribe" && h.opts.VerifyToken != "" &&
		hmac.Equal([]byte(token), []byte(h.opts.VerifyToken)) {
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	c.String(http.StatusForbidden, "Forbidden")
}

// ReceiveWebhook acknowledges a gateway delivery. Every recognised outcome is
// a 200 so the gateway does not redeliver; only unexpected failures are 500.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.String(http.StatusBadRequest, "invalid body")
		return
	}
	if h.opts.AppSecret != "" && !validSignature(h.opts.AppSecret, c.GetHeader(signatureHeader), body) {
		log.Warn().Str(middleware.RequestIDKey, c.GetString(middleware.RequestIDKey)).Msg("webhook signature mismatch")
		c.String(http.StatusForbidden, "invalid signature")
		return
	}

	var env gateway.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.String(http.StatusBadRequest, "invalid json")
		return
	}
	if env.Object != businessObject {
		c.String(http.StatusNotFound, "Not Found")
		return
	}

	ctx := c.Request.Context()
	ack := pipeline.Ignored
	first := true
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if h.queue != nil {
				jobID, err := h.queue.Publish(ctx, change.Value)
				if err != nil {
					log.Error().Err(err).Msg("enqueue webhook event")
					c.String(http.StatusInternalServerError, "ERROR")
					return
				}
				log.Debug().Str("job", jobID).Msg("webhook event queued")
				ack = pipeline.Processed
				continue
			}

			out, err := h.processor.Process(ctx, change.Value)
			if err != nil {
				log.Error().Err(err).Str("phone_number_id", change.Value.Metadata.PhoneNumberID).Msg("webhook event failed")
				c.String(http.StatusInternalServerError, "ERROR")
				return
			}
			if first || out == pipeline.Processed {
				ack = out
				first = false
			}
		}
	}
	c.String(http.StatusOK, ack.Ack())
}

// validSignature checks header "sha256=<hex>" against HMAC-SHA256(secret, body).
func validSignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
