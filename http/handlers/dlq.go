package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"studio-booking/http/response"
	"studio-booking/logger"
	"studio-booking/services/kafka"
)

// DeadLetters lists and resolves dead-lettered messages.
type DeadLetters interface {
	List(ctx context.Context, limit int) ([]kafka.DeadLetter, error)
	Resolve(ctx context.Context, messageID, notes string) (bool, error)
}

type DLQHandler struct {
	store DeadLetters
	log   *logger.Logger
}

func NewDLQHandler(store DeadLetters, log *logger.Logger) *DLQHandler {
	return &DLQHandler{store: store, log: logger.OrDefault(log)}
}

// GetDLQMessages retrieves unresolved DLQ messages
// GET /api/dlq?limit=50
func (h *DLQHandler) GetDLQMessages(c echo.Context) error {
	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	messages, err := h.store.List(c.Request().Context(), limit)
	if err != nil {
		h.log.Error("Error fetching DLQ messages: %v", err)
		return response.Error(c, http.StatusInternalServerError, "Failed to fetch DLQ messages")
	}

	return response.Success(c, http.StatusOK, "DLQ messages retrieved", map[string]interface{}{
		"count":    len(messages),
		"messages": messages,
	})
}

// ResolveDLQMessage marks a message as handled
// POST /api/dlq/:id/resolve
func (h *DLQHandler) ResolveDLQMessage(c echo.Context) error {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}

	id := c.Param("id")
	ok, err := h.store.Resolve(c.Request().Context(), id, req.Notes)
	if err != nil {
		h.log.Error("Error resolving DLQ message %s: %v", id, err)
		return response.Error(c, http.StatusInternalServerError, "Failed to resolve message")
	}
	if !ok {
		return response.Error(c, http.StatusNotFound, "Message not found or already resolved")
	}
	return response.Success(c, http.StatusOK, "Message resolved", nil)
}
