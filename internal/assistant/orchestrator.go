// Package assistant runs the AI turn: prompt assembly, the completion call,
// tool execution against the order machine and output cleanup.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/ai"
	"github.com/suPer8Hu/salesbot/internal/catalog"
	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/order"
	"github.com/suPer8Hu/salesbot/internal/turn"
)

type Providers interface {
	Get(ctx context.Context, name, model string) (ai.Provider, error)
}

type Catalog interface {
	ListActive(ctx context.Context, tenantID string) ([]catalog.Product, error)
}

type History interface {
	ListRecentMessagesDesc(ctx context.Context, chatID uint64, limit int) ([]chat.Message, error)
}

type Orders interface {
	Confirm(ctx context.Context, c *chat.Chat, productID string) (*order.Order, *catalog.Product, error)
	SubmitEmail(ctx context.Context, c *chat.Chat, email string) (*order.Order, *catalog.Product, error)
}

// Result is the outcome of one AI turn.
type Result struct {
	Text string
	// QRImageURL is set when process_email succeeded for a product with a
	// payment QR; the caller sends it as an extra image message.
	QRImageURL string
	ToolsRun   []string
	// Degraded is set when Text is the apology for a failed provider call.
	Degraded bool
}

type Orchestrator struct {
	providers Providers
	catalog   Catalog
	history   History
	orders    Orders
	window    int
	sleep     func(ctx context.Context, d time.Duration) error
}

func New(providers Providers, cat Catalog, history History, orders Orders, window int) *Orchestrator {
	if window <= 0 {
		window = 20
	}
	return &Orchestrator{
		providers: providers,
		catalog:   cat,
		history:   history,
		orders:    orders,
		window:    window,
		sleep:     sleepCtx,
	}
}

// WithSleep replaces the reply-delay sleeper.
func (o *Orchestrator) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Orchestrator {
	o.sleep = fn
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reply answers input for tc. Provider failures produce the apology text
// with a nil error; only cancellation and storage errors are returned.
func (o *Orchestrator) Reply(ctx context.Context, tc *turn.Context, input string) (Result, error) {
	if d := time.Duration(tc.Tenant.ReplyDelaySeconds) * time.Second; d > 0 {
		if err := o.sleep(ctx, d); err != nil {
			return Result{}, err
		}
	}

	products, err := o.catalog.ListActive(ctx, tc.TenantID())
	if err != nil {
		return Result{}, err
	}
	msgs, err := o.conversation(ctx, tc, products, input)
	if err != nil {
		return Result{}, err
	}

	provider, err := o.providers.Get(ctx, tc.Tenant.AIProvider, tc.Tenant.AIModel)
	if err != nil {
		log.Error().Err(err).Str("tenant", tc.TenantID()).Msg("ai provider unavailable")
		return Result{Text: MsgApology, Degraded: true}, nil
	}

	resp, err := provider.Chat(ctx, ai.ChatRequest{Messages: msgs, Tools: tools})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		ev := log.Error()
		if errors.Is(err, ai.ErrRateLimited) {
			ev = log.Warn()
		}
		ev.Err(err).Str("tenant", tc.TenantID()).Uint64("chat", tc.Chat.ID).Str("provider", provider.Name()).Msg("completion failed")
		return Result{Text: MsgApology, Degraded: true}, nil
	}

	res := Result{}
	var notice string
	for _, call := range resp.ToolCalls {
		text, err := o.runTool(ctx, tc, call, &res)
		if err != nil {
			return res, err
		}
		if text != "" {
			notice = text
		}
	}

	res.Text = Sanitize(resp.Text)
	switch {
	case notice != "" && (res.Text == "" || toolFailed(notice)):
		res.Text = notice
	case res.Text == "" && len(res.ToolsRun) > 0:
		res.Text = MsgAck
	case res.Text == "":
		res.Text = MsgGreeting
	}
	return res, nil
}

func toolFailed(notice string) bool {
	return notice == MsgUnknownPlan || notice == MsgInvalidEmail || notice == MsgNoPendingOrder
}

// runTool applies one tool call and returns the canned text describing its
// outcome. Business rejections are reported through the text; only
// unexpected errors are returned.
func (o *Orchestrator) runTool(ctx context.Context, tc *turn.Context, call ai.ToolCall, res *Result) (string, error) {
	lg := log.With().Str("tenant", tc.TenantID()).Uint64("chat", tc.Chat.ID).Str("tool", call.Name).Logger()

	switch call.Name {
	case ToolConfirmPlan:
		var args confirmPlanArgs
		if err := ai.DecodeArgs(call, &args); err != nil || strings.TrimSpace(args.PlanID) == "" {
			lg.Warn().Err(err).Msg("tool call without plan id")
			return MsgUnknownPlan, nil
		}
		ord, p, err := o.orders.Confirm(ctx, tc.Chat, args.PlanID)
		if errors.Is(err, order.ErrUnknownProduct) {
			lg.Warn().Str("plan", args.PlanID).Msg("model confirmed an unknown plan")
			return MsgUnknownPlan, nil
		}
		if err != nil {
			return "", err
		}
		tc.Order = ord
		res.ToolsRun = append(res.ToolsRun, call.Name)
		return MsgAskEmail(p.Name), nil

	case ToolProcessEmail:
		var args processEmailArgs
		if err := ai.DecodeArgs(call, &args); err != nil {
			return MsgInvalidEmail, nil
		}
		ord, p, err := o.orders.SubmitEmail(ctx, tc.Chat, args.Email)
		switch {
		case errors.Is(err, order.ErrInvalidEmail):
			return MsgInvalidEmail, nil
		case errors.Is(err, order.ErrNoActiveOrder):
			return MsgNoPendingOrder, nil
		case err != nil:
			return "", err
		}
		tc.Order = ord
		res.ToolsRun = append(res.ToolsRun, call.Name)
		hasQR := p != nil && p.PaymentQRURL != ""
		if hasQR {
			res.QRImageURL = p.PaymentQRURL
		}
		return MsgPaymentInstructions(ord.ProductName, ord.Amount, hasQR), nil
	}

	lg.Warn().Msg("model called an undeclared tool")
	return "", nil
}

// conversation builds system prompt + bounded history + the current input.
func (o *Orchestrator) conversation(ctx context.Context, tc *turn.Context, products []catalog.Product, input string) ([]ai.Message, error) {
	recent, err := o.history.ListRecentMessagesDesc(ctx, tc.Chat.ID, o.window+1)
	if err != nil {
		return nil, err
	}

	msgs := make([]ai.Message, 0, len(recent)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: SystemPrompt(tc.Tenant.TrainingPrompt, products, tc.Order)})

	n := 0
	history := make([]ai.Message, 0, len(recent))
	for _, m := range recent {
		if tc.Inbound != nil && m.ID == tc.Inbound.ID {
			continue
		}
		if n == o.window {
			break
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := ai.RoleUser
		if m.FromMe {
			role = ai.RoleAssistant
		}
		history = append(history, ai.Message{Role: role, Content: content})
		n++
	}
	for i := len(history) - 1; i >= 0; i-- {
		msgs = append(msgs, history[i])
	}

	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: input})
	return msgs, nil
}
