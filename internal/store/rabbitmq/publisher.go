package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/salesbot/internal/common"
	"github.com/suPer8Hu/salesbot/internal/gateway"
)

// EventMessage is one queued webhook change event.
type EventMessage struct {
	JobID      string              `json:"job_id"`
	Attempt    int                 `json:"attempt"`
	ReceivedAt time.Time           `json:"received_at"`
	LastError  string              `json:"last_error,omitempty"`
	Event      gateway.ChangeValue `json:"event"`
}

// Exhausted reports whether the attempt just made was the last one allowed.
func (m EventMessage) Exhausted(maxAttempts int) bool {
	return m.Attempt+1 >= maxAttempts
}

type Publisher struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	mu         sync.Mutex
	queue      string
	retryDelay time.Duration
}

func NewPublisher(url, queue string, retryDelay time.Duration) (*Publisher, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}
	if err := declare(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Second
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, retryDelay: retryDelay}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Publish enqueues a fresh event and returns its job id.
func (p *Publisher) Publish(ctx context.Context, ev gateway.ChangeValue) (string, error) {
	id, err := common.NewULID()
	if err != nil {
		return "", err
	}
	msg := EventMessage{JobID: id, ReceivedAt: time.Now().UTC(), Event: ev}
	return id, p.publish(ctx, p.queue, msg, "")
}

// Retry schedules msg for another attempt after the retry delay.
func (p *Publisher) Retry(ctx context.Context, msg EventMessage, cause error) error {
	msg.Attempt++
	if cause != nil {
		msg.LastError = cause.Error()
	}
	return p.publish(ctx, RetryQueue(p.queue), msg, strconv.FormatInt(p.retryDelay.Milliseconds(), 10))
}

// DeadLetter parks msg in the DLQ for inspection.
func (p *Publisher) DeadLetter(ctx context.Context, msg EventMessage, cause error) error {
	if cause != nil {
		msg.LastError = cause.Error()
	}
	return p.publish(ctx, DeadQueue(p.queue), msg, "")
}

func (p *Publisher) publish(ctx context.Context, queue string, msg EventMessage, expiration string) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.JobID,
			Expiration:   expiration,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
