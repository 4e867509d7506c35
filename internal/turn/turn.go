// Package turn carries the state of one inbound event through the pipeline.
package turn

import (
	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/classify"
	"github.com/suPer8Hu/salesbot/internal/gateway"
	"github.com/suPer8Hu/salesbot/internal/order"
	"github.com/suPer8Hu/salesbot/internal/tenant"
)

// Context is built once per event and passed explicitly to every component.
type Context struct {
	Tenant  *tenant.Credential
	Chat    *chat.Chat
	Inbound *chat.Message
	Event   classify.Result
	// WamID is the gateway id of the inbound message, empty for events without one.
	WamID string
	// Order is the chat's active order after the stale sweep, nil when none.
	Order *order.Order
}

func (tc *Context) TenantID() string { return tc.Tenant.TenantID }

func (tc *Context) Creds() gateway.Creds { return tc.Tenant.Gateway() }

// Address is the counterpart's gateway address.
func (tc *Context) Address() string { return tc.Chat.Address }

func (tc *Context) Kind() chat.Kind { return tc.Event.Kind }
