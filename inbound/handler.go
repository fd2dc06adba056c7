package inbound

import (
	"context"

	"github.com/goliatone/go-bookings/core"
)

type surfaceHandler struct {
	surface string
	inner   core.WebhookHandler
}

// ForSurface binds a plain webhook handler to a named surface so it can be
// registered with the dispatcher.
func ForSurface(surface string, inner core.WebhookHandler) Handler {
	return &surfaceHandler{surface: normalizeSurface(surface), inner: inner}
}

func (h *surfaceHandler) Surface() string { return h.surface }

func (h *surfaceHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h == nil || h.inner == nil {
		return core.InboundResult{}, inboundInternal("inbound: handler is not configured", nil)
	}
	return h.inner.Handle(ctx, req)
}
