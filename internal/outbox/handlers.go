package outbox

import (
	"context"

	"github.com/nounforge/entitykernel/internal/dispatch/integrations"
	"github.com/nounforge/entitykernel/internal/dispatch/subscriptions"
	"github.com/nounforge/entitykernel/internal/eventlog"
)

// SubscriptionHandler drains outbox entries through the webhook
// dispatcher's synchronous path instead of its fire-and-forget one.
type SubscriptionHandler struct {
	events *eventlog.Store
	d      *subscriptions.Dispatcher
}

func NewSubscriptionHandler(events *eventlog.Store, d *subscriptions.Dispatcher) *SubscriptionHandler {
	return &SubscriptionHandler{events: events, d: d}
}

func (h *SubscriptionHandler) Handle(ctx context.Context, eventID string) error {
	ev, err := h.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	return h.d.DispatchSync(ctx, ev)
}

// IntegrationHandler drains outbox entries through the integration
// dispatcher's synchronous path.
type IntegrationHandler struct {
	events *eventlog.Store
	d      *integrations.Dispatcher
}

func NewIntegrationHandler(events *eventlog.Store, d *integrations.Dispatcher) *IntegrationHandler {
	return &IntegrationHandler{events: events, d: d}
}

func (h *IntegrationHandler) Handle(ctx context.Context, eventID string) error {
	ev, err := h.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	return h.d.DispatchSync(ctx, ev, nil)
}
