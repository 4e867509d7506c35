package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/app"
	"github.com/suPer8Hu/salesbot/internal/config"
	"github.com/suPer8Hu/salesbot/internal/httpapi"
	"github.com/suPer8Hu/salesbot/internal/httpapi/handlers"
	"github.com/suPer8Hu/salesbot/internal/logger"
	"github.com/suPer8Hu/salesbot/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFmt)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	var queue handlers.Enqueuer
	if cfg.PipelineMode == "queue" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, cfg.RabbitRetryDelay)
		if err != nil {
			log.Fatal().Err(err).Msg("rabbit publisher")
		}
		defer pub.Close()
		queue = pub
	}

	h := handlers.NewHandler(a.Pipeline, queue, a.Orders, handlers.Options{
		VerifyToken: cfg.WebhookVerifyToken,
		AppSecret:   cfg.WebhookAppSecret,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(h, cfg.AdminJWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("mode", cfg.PipelineMode).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PipelineTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
