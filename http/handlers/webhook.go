package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"studio-booking/http/response"
	"studio-booking/logger"
	"studio-booking/models"
	"studio-booking/services"
)

// PassRunner matches a batch of transactions against the pending claims.
type PassRunner interface {
	RunMatchingPass(ctx context.Context, txs []models.BankTransaction) (services.PassResult, error)
}

type WebhookHandler struct {
	ledger PassRunner
	secret string
	log    *logger.Logger
}

func NewWebhookHandler(ledger PassRunner, secret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{ledger: ledger, secret: secret, log: logger.OrDefault(log).WithField("component", "webhook")}
}

// RazorpayWebhook settles pending claims from a captured payment as soon as
// Razorpay reports it
// POST /api/webhooks/razorpay
func (h *WebhookHandler) RazorpayWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return response.Error(c, http.StatusBadRequest, "Failed to read request body")
	}

	signature := c.Request().Header.Get("X-Razorpay-Signature")
	if !services.VerifyWebhookSignature(h.secret, body, signature) {
		h.log.Warn("Rejected webhook with invalid signature")
		return response.Error(c, http.StatusUnauthorized, "Invalid signature")
	}

	payload, tx, ok, err := services.ParseWebhook(body)
	if err != nil {
		h.log.Warn("Bad webhook payload: %v", err)
		return response.Error(c, http.StatusBadRequest, err.Error())
	}
	h.log.Info("Received %s (%s)", payload.Event, payload.ID)

	if !ok {
		return response.Success(c, http.StatusOK, "acknowledged", map[string]interface{}{"event": payload.Event})
	}

	result, err := h.ledger.RunMatchingPass(c.Request().Context(), []models.BankTransaction{tx})
	if err != nil {
		h.log.Error("Matching pass for payment %s failed: %v", tx.ID, err)
		return response.FromError(c, err)
	}

	return response.Success(c, http.StatusOK, "processed", map[string]interface{}{
		"event":      payload.Event,
		"payment_id": tx.ID,
		"matches":    result.Matches,
	})
}
