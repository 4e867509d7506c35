package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/suPer8Hu/salesbot/internal/metrics"
)

type OllamaProvider struct {
	BaseURL string
	Model   string

	http *resty.Client
}

func NewOllamaProvider(baseURL, model string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1:latest"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OllamaProvider{
		BaseURL: baseURL,
		Model:   model,
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaMsg struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaChatReq struct {
	Model    string         `json:"model"`
	Messages []ollamaMsg    `json:"messages"`
	Tools    []openAITool   `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResp struct {
	Message ollamaMsg `json:"message"`
	Error   string    `json:"error,omitempty"`
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := ollamaChatReq{Model: p.Model}
	for _, m := range req.Messages {
		om := ollamaMsg{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var otc ollamaToolCall
			otc.Function.Name = tc.Name
			otc.Function.Arguments = json.RawMessage(nonEmptyJSON(tc.Arguments))
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		body.Messages = append(body.Messages, om)
	}
	for _, t := range req.Tools {
		var ot openAITool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		body.Tools = append(body.Tools, ot)
	}
	if req.Temperature != nil {
		body.Options = map[string]any{"temperature": *req.Temperature}
	}

	var decoded ollamaChatResp
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&decoded).
		SetError(&decoded).
		Post("/api/chat")
	if err != nil {
		metrics.AIRequests.WithLabelValues(p.Name(), "error").Inc()
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if resp.IsError() {
		metrics.AIRequests.WithLabelValues(p.Name(), "error").Inc()
		if decoded.Error != "" {
			return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode(), decoded.Error)
		}
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode())
	}
	if decoded.Error != "" {
		metrics.AIRequests.WithLabelValues(p.Name(), "error").Inc()
		return nil, errors.New(decoded.Error)
	}
	metrics.AIRequests.WithLabelValues(p.Name(), "ok").Inc()

	out := &ChatResponse{Text: decoded.Message.Content}
	for i, tc := range decoded.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: nonEmptyJSON(string(tc.Function.Arguments)),
		})
	}
	return out, nil
}

func nonEmptyJSON(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	return s
}
