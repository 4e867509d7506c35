package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/salesbot/internal/gateway"
	"github.com/suPer8Hu/salesbot/internal/order"
	"github.com/suPer8Hu/salesbot/internal/pipeline"
)

// Processor runs the inbound pipeline on one change event.
type Processor interface {
	Process(ctx context.Context, ev gateway.ChangeValue) (pipeline.Outcome, error)
}

// Enqueuer hands a change event to the worker queue.
type Enqueuer interface {
	Publish(ctx context.Context, ev gateway.ChangeValue) (string, error)
}

type Orders interface {
	List(ctx context.Context, tenantID string, status order.Status, limit int) ([]order.Order, error)
	MarkDelivered(ctx context.Context, tenantID string, orderID uint64) (*order.Order, error)
}

type Options struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 checks when set.
	AppSecret string
}

type Handler struct {
	processor Processor
	// queue is nil in inline mode.
	queue  Enqueuer
	orders Orders
	opts   Options
}

func NewHandler(processor Processor, queue Enqueuer, orders Orders, opts Options) *Handler {
	return &Handler{processor: processor, queue: queue, orders: orders, opts: opts}
}

func (h *Handler) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}
