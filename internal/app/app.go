// Package app wires the inbound pipeline from configuration. The HTTP
// server and the queue worker share it.
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/ai"
	"github.com/suPer8Hu/salesbot/internal/assistant"
	"github.com/suPer8Hu/salesbot/internal/catalog"
	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/config"
	"github.com/suPer8Hu/salesbot/internal/db"
	"github.com/suPer8Hu/salesbot/internal/dedup"
	"github.com/suPer8Hu/salesbot/internal/gateway"
	"github.com/suPer8Hu/salesbot/internal/media"
	"github.com/suPer8Hu/salesbot/internal/order"
	"github.com/suPer8Hu/salesbot/internal/pipeline"
	"github.com/suPer8Hu/salesbot/internal/reply"
	"github.com/suPer8Hu/salesbot/internal/store/objectstore"
	"github.com/suPer8Hu/salesbot/internal/store/redisstore"
	"github.com/suPer8Hu/salesbot/internal/tenant"
	"github.com/suPer8Hu/salesbot/internal/trigger"
	"gorm.io/gorm"
)

type App struct {
	DB       *gorm.DB
	Pipeline *pipeline.Pipeline
	Orders   *order.Machine

	closers []func() error
}

// New connects storage, builds every collaborator and returns the pipeline.
// Redis and object storage are optional: without them dedup falls back to
// the durable check, conversations are not locked and media is not stored.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}
	a := &App{DB: gdb}

	var (
		claims dedup.Claimer
		locker pipeline.Locker
	)
	if cfg.RedisAddr != "" {
		rds, err := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, continuing without claims and locks")
		} else {
			claims, locker = rds, rds
			a.closers = append(a.closers, rds.Close)
		}
	}

	var store objectstore.Store
	switch s, err := objectstore.New(ctx, cfg); {
	case errors.Is(err, objectstore.ErrNotConfigured):
		log.Warn().Msg("object storage not configured, media will not be stored")
	case err != nil:
		a.Close()
		return nil, err
	default:
		store = s
		if g, ok := s.(*objectstore.GCSStore); ok {
			a.closers = append(a.closers, g.Close)
		}
	}

	chats := chat.NewRepo(gdb)
	products := catalog.NewRepo(gdb)
	a.Orders = order.NewMachine(order.NewRepo(gdb), products)

	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayTimeout)
	ingestor := media.NewIngestor(gw, store, cfg.StoragePrefix)

	openai := ai.NewOpenAIProvider(ai.OpenAIOptions{
		BaseURL:         cfg.AIBaseURL,
		APIKey:          cfg.AIAPIKey,
		Model:           cfg.AIModel,
		TranscribeModel: cfg.AITranscribeModel,
		TTSModel:        cfg.AITTSModel,
		Timeout:         cfg.AITimeout,
	})
	registry := Providers(cfg, openai)

	var uploader reply.Uploader
	if store != nil {
		uploader = ingestor
	}
	replies := reply.New(gw, openai, uploader, chats)
	triggers := trigger.NewEngine(trigger.NewRepo(gdb), replies, chats)
	orch := assistant.New(registry, products, chats, a.Orders, cfg.ChatContextWindowSize)

	var ing pipeline.Ingestor
	if store != nil {
		ing = ingestor
	}
	a.Pipeline = pipeline.New(pipeline.Deps{
		Resolver:    tenant.NewResolver(tenant.NewRepo(gdb), cfg.TenantCacheTTL),
		Guard:       dedup.NewGuard(claims, chats, cfg.DedupTTL),
		Chats:       chats,
		Orders:      a.Orders,
		Ingestor:    ing,
		Media:       gw,
		Transcriber: openai,
		Triggers:    triggers,
		Assistant:   orch,
		Replies:     replies,
		Locker:      locker,
	}, pipeline.Options{
		Timeout: cfg.PipelineTimeout,
		LockTTL: cfg.ChatLockTTL,
	})
	return a, nil
}

// Providers registers every completion backend a tenant may select.
// AI_PROVIDER names the default for tenants without an override.
func Providers(cfg config.Config, openai *ai.OpenAIProvider) *ai.Registry {
	reg := ai.NewRegistry(cfg.AIProvider)

	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		return openai.WithModel(model), nil
	})

	openrouter := ai.NewOpenAIProvider(ai.OpenAIOptions{
		BaseURL: cfg.OpenRouterBaseURL,
		APIKey:  cfg.OpenRouterAPIKey,
		Model:   cfg.OpenRouterModel,
		SiteURL: cfg.OpenRouterSiteURL,
		AppName: cfg.OpenRouterAppName,
		Timeout: cfg.AITimeout,
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		return openrouter.WithModel(model), nil
	})

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m, cfg.AITimeout), nil
	})
	return reg
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
