package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/orderbot/internal/records"
)

// OrderHandler lets staff read records and confirm payments.
type OrderHandler struct {
	records records.Store
	logger  *slog.Logger
}

func NewOrderHandler(log *slog.Logger, recs records.Store) *OrderHandler {
	return &OrderHandler{
		records: recs,
		logger:  log.With(slog.String("handler", "orders")),
	}
}

func (h *OrderHandler) Register(e *echo.Echo) {
	group := e.Group("/api/orders")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("/:id/paid", h.MarkPaid)
	group.POST("/:id/status", h.SetStatus)
}

// OrderListResponse wraps a record list.
type OrderListResponse struct {
	Items []records.Record `json:"items"`
}

// StatusRequest moves a record to another kitchen status.
type StatusRequest struct {
	KitchenStatus string `json:"kitchen_status"`
}

// List returns records, optionally filtered by ?paid=true|false and ?status=.
func (h *OrderHandler) List(c echo.Context) error {
	var f records.Filter
	switch strings.ToLower(c.QueryParam("paid")) {
	case "":
	case "true", "1":
		paid := true
		f.Paid = &paid
	case "false", "0":
		paid := false
		f.Paid = &paid
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "paid must be true or false")
	}
	f.KitchenStatus = strings.TrimSpace(c.QueryParam("status"))
	items, err := h.records.Query(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if items == nil {
		items = []records.Record{}
	}
	return c.JSON(http.StatusOK, OrderListResponse{Items: items})
}

func (h *OrderHandler) Get(c echo.Context) error {
	rec, err := h.records.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// MarkPaid confirms payment; the reconcile loop then notifies the kitchen.
func (h *OrderHandler) MarkPaid(c echo.Context) error {
	id := c.Param("id")
	if err := h.records.UpdateStatus(c.Request().Context(), id, records.FieldIsPaid, true); err != nil {
		return recordError(err)
	}
	h.logger.Info("order marked paid", slog.String("record_id", id))
	return c.NoContent(http.StatusNoContent)
}

func (h *OrderHandler) SetStatus(c echo.Context) error {
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := c.Param("id")
	if err := h.records.UpdateStatus(c.Request().Context(), id, records.FieldKitchenStatus, req.KitchenStatus); err != nil {
		return recordError(err)
	}
	h.logger.Info("kitchen status changed", slog.String("record_id", id), slog.String("status", req.KitchenStatus))
	return c.NoContent(http.StatusNoContent)
}

func recordError(err error) error {
	switch {
	case errors.Is(err, records.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, records.ErrEmptyRecordID), errors.Is(err, records.ErrInvalidValue), errors.Is(err, records.ErrUnknownField):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
