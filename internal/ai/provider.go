package ai

import (
	"context"
	"errors"
)

// ErrRateLimited is returned once a provider keeps answering HTTP 429 after
// the client's bounded retries.
var ErrRateLimited = errors.New("ai: provider rate limited")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool declares a callable function. Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a function invocation requested by the model. Arguments is
// the raw JSON object text.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ChatRequest struct {
	Messages    []Message
	Tools       []Tool
	Temperature *float64
}

type ChatResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider is a non-streaming chat completion backend with tool calling.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Transcriber turns a voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mime string) (string, error)
}

// Speaker synthesizes speech, returning the audio bytes and their MIME type.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) ([]byte, string, error)
}
