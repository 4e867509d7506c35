package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/app"
	"github.com/suPer8Hu/salesbot/internal/config"
	"github.com/suPer8Hu/salesbot/internal/logger"
	"github.com/suPer8Hu/salesbot/internal/pipeline"
	"github.com/suPer8Hu/salesbot/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFmt)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, cfg.RabbitRetryDelay)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit publisher")
	}
	defer pub.Close()

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency
	cons, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, concurrency)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit consumer")
	}
	defer cons.Close()

	msgs, err := cons.Deliveries()
	if err != nil {
		log.Fatal().Err(err).Msg("consume")
	}

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Int("maxAttempts", cfg.RabbitMaxAttempts).Msg("worker started")

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handle(ctx, a.Pipeline, pub, cfg.RabbitMaxAttempts, workerID, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error().Msg("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

// handle processes one delivery. A failed attempt is republished to the
// retry queue until maxAttempts, then parked in the DLQ; the original
// delivery is always acked once that hand-off succeeded.
func handle(ctx context.Context, p *pipeline.Pipeline, pub *rabbitmq.Publisher, maxAttempts, workerID int, d amqp.Delivery) {
	var m rabbitmq.EventMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		log.Error().Err(err).Int("worker", workerID).Msg("bad message")
		// rejected to the DLQ by the main queue's dead-letter settings
		_ = d.Nack(false, false)
		return
	}
	lg := log.With().Int("worker", workerID).Str("job", m.JobID).Int("attempt", m.Attempt).Logger()

	start := time.Now()
	out, err := p.Process(ctx, m.Event)
	if err == nil {
		lg.Debug().Str("outcome", out.String()).Dur("cost", time.Since(start)).Msg("job done")
		if err := d.Ack(false); err != nil {
			lg.Error().Err(err).Msg("ack failed")
		}
		return
	}

	if m.Exhausted(maxAttempts) {
		lg.Error().Err(err).Msg("job failed, moving to DLQ")
		err = pub.DeadLetter(context.Background(), m, err)
	} else {
		lg.Warn().Err(err).Msg("job failed, scheduling retry")
		err = pub.Retry(context.Background(), m, err)
	}
	if err != nil {
		lg.Error().Err(err).Msg("republish failed, requeueing")
		_ = d.Nack(false, true)
		return
	}
	if err := d.Ack(false); err != nil {
		lg.Error().Err(err).Msg("ack failed")
	}
}
