package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/orderbot/internal/conversation"
)

// ConversationHandler exposes conversation snapshots to staff.
type ConversationHandler struct {
	store  *conversation.Store
	logger *slog.Logger
}

func NewConversationHandler(log *slog.Logger, store *conversation.Store) *ConversationHandler {
	return &ConversationHandler{
		store:  store,
		logger: log.With(slog.String("handler", "conversation")),
	}
}

func (h *ConversationHandler) Register(e *echo.Echo) {
	group := e.Group("/api/conversations")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
}

// ConversationListResponse wraps the conversation list.
type ConversationListResponse struct {
	Items []conversation.Conversation `json:"items"`
}

// List returns every conversation ordered by customer id.
func (h *ConversationHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, ConversationListResponse{Items: h.store.List()})
}

// Get returns one conversation. The id is the customer key, e.g. "telegram:42".
func (h *ConversationHandler) Get(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	item, ok := h.store.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, item)
}
