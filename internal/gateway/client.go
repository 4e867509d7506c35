package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// MaxMediaBytes caps attachment downloads.
const MaxMediaBytes = 16 << 20

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Creds are the per-tenant values every gateway call needs.
type Creds struct {
	PhoneNumberID string
	AccessToken   string
}

type Client struct {
	// http serves sends; fetch serves media lookups and downloads.
	http  *resty.Client
	fetch *resty.Client
}

type apiError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

type sendResp struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type mediaResp struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// NewClient builds a gateway client. Sends are retried only when rate
// limited, since a send whose response was lost may already be delivered.
// Media reads are idempotent and also retry transport errors and 5xx.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	send := newResty(baseURL, timeout).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusTooManyRequests
		})
	fetch := newResty(baseURL, timeout).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	log.Info().Str("baseURL", baseURL).Msg("gateway client configured")
	return &Client{http: send, fetch: fetch}
}

func newResty(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
}

func (c *Client) send(ctx context.Context, creds Creds, to string, payload map[string]any) (string, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
	}
	for k, v := range payload {
		body[k] = v
	}

	var out sendResp
	var apiErr apiError
	url := fmt.Sprintf("/%s/messages", creds.PhoneNumberID)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post(url)
	if err != nil {
		return "", fmt.Errorf("gateway send request failed: %w", err)
	}
	if resp.IsError() {
		return "", responseError("send", resp, &apiErr)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", errors.New("gateway send: response carried no message id")
	}
	return out.Messages[0].ID, nil
}

func (c *Client) SendText(ctx context.Context, creds Creds, to, text string) (string, error) {
	return c.send(ctx, creds, to, map[string]any{
		"type": "text",
		"text": map[string]any{"preview_url": false, "body": text},
	})
}

func (c *Client) SendMedia(ctx context.Context, creds Creds, to string, kind MediaKind, link, caption string) (string, error) {
	media := map[string]any{"link": link}
	if caption != "" && kind != MediaAudio {
		media["caption"] = caption
	}
	return c.send(ctx, creds, to, map[string]any{
		"type":       string(kind),
		string(kind): media,
	})
}

func (c *Client) SendList(ctx context.Context, creds Creds, to string, m ListMessage) (string, error) {
	sections := make([]map[string]any, 0, len(m.Sections))
	for _, s := range m.Sections {
		rows := make([]map[string]any, 0, len(s.Rows))
		for _, r := range s.Rows {
			row := map[string]any{"id": r.ID, "title": r.Title}
			if r.Description != "" {
				row["description"] = r.Description
			}
			rows = append(rows, row)
		}
		sections = append(sections, map[string]any{"title": s.Title, "rows": rows})
	}
	buttonText := m.ButtonText
	if buttonText == "" {
		buttonText = "Ver opciones"
	}
	interactive := map[string]any{
		"type":   "list",
		"body":   map[string]any{"text": m.Body},
		"action": map[string]any{"button": buttonText, "sections": sections},
	}
	decorate(interactive, m.Header, m.Footer)
	return c.send(ctx, creds, to, map[string]any{"type": "interactive", "interactive": interactive})
}

func (c *Client) SendButtons(ctx context.Context, creds Creds, to string, m ButtonsMessage) (string, error) {
	buttons := make([]map[string]any, 0, len(m.Buttons))
	for _, b := range m.Buttons {
		buttons = append(buttons, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": b.ID, "title": b.Title},
		})
	}
	interactive := map[string]any{
		"type":   "button",
		"body":   map[string]any{"text": m.Body},
		"action": map[string]any{"buttons": buttons},
	}
	decorate(interactive, m.Header, m.Footer)
	return c.send(ctx, creds, to, map[string]any{"type": "interactive", "interactive": interactive})
}

func decorate(interactive map[string]any, header, footer string) {
	if header != "" {
		interactive["header"] = map[string]any{"type": "text", "text": header}
	}
	if footer != "" {
		interactive["footer"] = map[string]any{"text": footer}
	}
}

// MediaURL resolves an attachment id to its short-lived download URL.
func (c *Client) MediaURL(ctx context.Context, creds Creds, mediaID string) (string, string, error) {
	var out mediaResp
	var apiErr apiError
	resp, err := c.fetch.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetResult(&out).
		SetError(&apiErr).
		Get("/" + mediaID)
	if err != nil {
		return "", "", fmt.Errorf("gateway media lookup failed: %w", err)
	}
	if resp.IsError() {
		return "", "", responseError("media lookup", resp, &apiErr)
	}
	if out.URL == "" {
		return "", "", errors.New("gateway media lookup: empty url")
	}
	return out.URL, out.MimeType, nil
}

// Download fetches a media URL returned by MediaURL.
func (c *Client) Download(ctx context.Context, creds Creds, url string) ([]byte, error) {
	resp, err := c.fetch.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("gateway download failed: %w", err)
	}
	raw := resp.RawBody()
	defer raw.Close()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("gateway download: status %d", resp.StatusCode())
	}
	return readLimited(raw, MaxMediaBytes)
}

// FetchMedia resolves and downloads an attachment in one step.
func (c *Client) FetchMedia(ctx context.Context, creds Creds, mediaID string) ([]byte, string, error) {
	url, mime, err := c.MediaURL(ctx, creds, mediaID)
	if err != nil {
		return nil, "", err
	}
	data, err := c.Download(ctx, creds, url)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("gateway download read: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("gateway download: media exceeds %d bytes", max)
	}
	return data, nil
}

func responseError(op string, resp *resty.Response, apiErr *apiError) error {
	if apiErr != nil && apiErr.Error != nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gateway %s: status %d: %s", op, resp.StatusCode(), apiErr.Error.Message)
	}
	return fmt.Errorf("gateway %s: status %s, body: %s", op, resp.Status(), resp.String())
}
