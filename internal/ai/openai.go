package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/metrics"
)

// OpenAIProvider speaks the OpenAI-compatible REST surface (OpenAI,
// OpenRouter, Gemini's compat endpoint).
type OpenAIProvider struct {
	BaseURL         string
	APIKey          string
	Model           string
	TranscribeModel string
	TTSModel        string
	SiteURL         string
	AppName         string

	http *resty.Client
}

type openAIToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIMsg struct {
	Role       string           `json:"role"`
	Content    any              `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openAIChatReq struct {
	Model       string       `json:"model"`
	Messages    []openAIMsg  `json:"messages"`
	Tools       []openAITool `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Role      string           `json:"role"`
			Content   *string          `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type OpenAIOptions struct {
	BaseURL         string
	APIKey          string
	Model           string
	TranscribeModel string
	TTSModel        string
	SiteURL         string
	AppName         string
	Timeout         time.Duration
	// RetryWait is the initial 429 backoff, doubled per attempt.
	RetryWait time.Duration
}

// NewOpenAIProvider builds the client. HTTP 429 is retried with exponential
// backoff, three attempts in total.
func NewOpenAIProvider(o OpenAIOptions) *OpenAIProvider {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.RetryWait <= 0 {
		o.RetryWait = time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(o.BaseURL, "/")).
		SetTimeout(o.Timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(o.RetryWait).
		SetRetryMaxWaitTime(8 * o.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusTooManyRequests
		})
	if o.APIKey != "" {
		c.SetAuthToken(o.APIKey)
	}
	if o.SiteURL != "" {
		c.SetHeader("HTTP-Referer", o.SiteURL)
	}
	if o.AppName != "" {
		c.SetHeader("X-Title", o.AppName)
	}
	return &OpenAIProvider{
		BaseURL:         o.BaseURL,
		APIKey:          o.APIKey,
		Model:           o.Model,
		TranscribeModel: o.TranscribeModel,
		TTSModel:        o.TTSModel,
		SiteURL:         o.SiteURL,
		AppName:         o.AppName,
		http:            c,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// WithModel returns a copy sharing the HTTP client but using model.
func (p *OpenAIProvider) WithModel(model string) *OpenAIProvider {
	cp := *p
	if strings.TrimSpace(model) != "" {
		cp.Model = model
	}
	return &cp
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return nil, errors.New("openai: model is required")
	}

	body := openAIChatReq{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: req.Temperature,
	}
	for _, t := range req.Tools {
		var ot openAITool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		body.Tools = append(body.Tools, ot)
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = "auto"
	}

	decoded, err := p.complete(ctx, body)
	if err != nil {
		return nil, err
	}
	msg := decoded.Choices[0].Message
	out := &ChatResponse{}
	if msg.Content != nil {
		out.Text = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, body openAIChatReq) (*openAIChatResp, error) {
	var decoded openAIChatResp
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&decoded).
		SetError(&decoded).
		Post("/chat/completions")
	if err != nil {
		metrics.AIRequests.WithLabelValues(p.Name(), "error").Inc()
		return nil, fmt.Errorf("openai: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		metrics.AIRequests.WithLabelValues(p.Name(), "rate_limited").Inc()
		log.Warn().Str("model", body.Model).Int("attempts", resp.Request.Attempt).Msg("completion provider still rate limited")
		return nil, ErrRateLimited
	}
	if resp.IsError() {
		metrics.AIRequests.WithLabelValues(p.Name(), "error").Inc()
		if decoded.Error != nil && decoded.Error.Message != "" {
			return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode(), decoded.Error.Message)
		}
		return nil, fmt.Errorf("openai: status %d", resp.StatusCode())
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		metrics.AIRequests.WithLabelValues(p.Name(), "error").Inc()
		return nil, errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		metrics.AIRequests.WithLabelValues(p.Name(), "error").Inc()
		return nil, errors.New("openai: empty response")
	}
	metrics.AIRequests.WithLabelValues(p.Name(), "ok").Inc()
	return &decoded, nil
}

func toOpenAIMessages(in []Message) []openAIMsg {
	out := make([]openAIMsg, 0, len(in))
	for _, m := range in {
		om := openAIMsg{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var otc openAIToolCall
			otc.ID = tc.ID
			otc.Type = "function"
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out = append(out, om)
	}
	return out
}

// Transcribe sends the audio inline as base64 to a multimodal model.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio []byte, mime string) (string, error) {
	model := p.TranscribeModel
	if model == "" {
		model = p.Model
	}
	body := openAIChatReq{
		Model: model,
		Messages: []openAIMsg{{
			Role: RoleUser,
			Content: []map[string]any{
				{"type": "text", "text": "Transcribe este audio de forma literal. Responde solo con la transcripción."},
				{"type": "input_audio", "input_audio": map[string]any{
					"data":   base64.StdEncoding.EncodeToString(audio),
					"format": audioFormat(mime),
				}},
			},
		}},
	}
	decoded, err := p.complete(ctx, body)
	if err != nil {
		return "", err
	}
	content := decoded.Choices[0].Message.Content
	if content == nil || strings.TrimSpace(*content) == "" {
		return "", errors.New("openai: empty transcription")
	}
	return strings.TrimSpace(*content), nil
}

func audioFormat(mime string) string {
	mime = strings.ToLower(mime)
	switch {
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return "mp3"
	case strings.Contains(mime, "wav"):
		return "wav"
	case strings.Contains(mime, "ogg"), strings.Contains(mime, "opus"):
		return "ogg"
	case strings.Contains(mime, "mp4"), strings.Contains(mime, "aac"):
		return "aac"
	}
	return "mp3"
}

// Speak calls /audio/speech and returns MP3 bytes.
func (p *OpenAIProvider) Speak(ctx context.Context, text, voice string) ([]byte, string, error) {
	model := p.TTSModel
	if model == "" {
		model = "tts-1"
	}
	if voice == "" {
		voice = "alloy"
	}
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"model":           model,
			"input":           text,
			"voice":           voice,
			"response_format": "mp3",
		}).
		Post("/audio/speech")
	if err != nil {
		metrics.AIRequests.WithLabelValues("tts", "error").Inc()
		return nil, "", fmt.Errorf("tts: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		metrics.AIRequests.WithLabelValues("tts", "rate_limited").Inc()
		return nil, "", ErrRateLimited
	}
	if resp.IsError() {
		metrics.AIRequests.WithLabelValues("tts", "error").Inc()
		return nil, "", fmt.Errorf("tts: status %d: %s", resp.StatusCode(), truncate(resp.String(), 512))
	}
	data := resp.Body()
	if len(data) == 0 {
		return nil, "", errors.New("tts: empty audio")
	}
	metrics.AIRequests.WithLabelValues("tts", "ok").Inc()
	return data, "audio/mpeg", nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DecodeArgs unmarshals a tool call's JSON arguments into v.
func DecodeArgs(call ToolCall, v any) error {
	args := strings.TrimSpace(call.Arguments)
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("tool %s: bad arguments: %w", call.Name, err)
	}
	return nil
}
