package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/salesbot/internal/ai"
	"github.com/suPer8Hu/salesbot/internal/config"
)

func TestProviders(t *testing.T) {
	cfg := config.Config{AIProvider: "ollama", OpenRouterBaseURL: "https://openrouter.ai/api/v1", OllamaBaseURL: "http://127.0.0.1:1", OllamaModel: "llama3.1", AITimeout: time.Second}
	reg := Providers(cfg, ai.NewOpenAIProvider(ai.OpenAIOptions{Model: "gpt-4o-mini"}))
	ctx := context.Background()

	p, err := reg.Get(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = reg.Get(ctx, "OpenAI", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.(*ai.OpenAIProvider).Model)

	p, err = reg.Get(ctx, "openrouter", "")
	require.NoError(t, err)
	assert.Equal(t, "https://openrouter.ai/api/v1", p.(*ai.OpenAIProvider).BaseURL)

	_, err = reg.Get(ctx, "anthropic", "")
	assert.Error(t, err)
}

func TestNew_SQLiteWithoutOptionalServices(t *testing.T) {
	cfg := config.Config{
		DBDSN:          "sqlite:file:" + t.Name() + "?mode=memory&cache=shared",
		AIProvider:     "openai",
		StorageBackend: "s3",
		GatewayBaseURL: "http://127.0.0.1:1",
	}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Orders)
}
