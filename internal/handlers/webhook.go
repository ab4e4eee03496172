package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/orderbot/internal/channel"
	"github.com/memohai/orderbot/internal/channel/adapters/whapi"
)

const maxWebhookBody = 1 << 20

// WhapiEvents converts gateway messages into inbound events.
type WhapiEvents interface {
	Events(msgs []whapi.Message) []channel.InboundEvent
}

// InboundSink accepts inbound batches for asynchronous processing.
type InboundSink interface {
	HandleInbound(ctx context.Context, events []channel.InboundEvent) error
}

// WebhookHandler receives pushed WhatsApp gateway events.
type WebhookHandler struct {
	adapter WhapiEvents
	sink    InboundSink
	logger  *slog.Logger
}

// NewWebhookHandler creates a webhook handler. A nil adapter disables the route.
func NewWebhookHandler(log *slog.Logger, adapter WhapiEvents, sink InboundSink) *WebhookHandler {
	return &WebhookHandler{
		adapter: adapter,
		sink:    sink,
		logger:  log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	if h.adapter == nil || h.sink == nil {
		return
	}
	e.POST("/webhooks/whapi", h.Whapi)
}

// Whapi accepts a gateway push. Processing happens after the response.
func (h *WebhookHandler) Whapi(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msgs, err := whapi.ParseWebhook(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	events := h.adapter.Events(msgs)
	if len(events) == 0 {
		return c.NoContent(http.StatusOK)
	}
	if err := h.sink.HandleInbound(c.Request().Context(), events); err != nil {
		h.logger.Error("enqueue webhook events failed", slog.Int("events", len(events)), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.NoContent(http.StatusOK)
}
