package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"studio-booking/models"
)

// RazorpayWebhookPayload represents the structure of Razorpay webhook payload
type RazorpayWebhookPayload struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	CreatedAt int64                  `json:"created_at"`
	Contains  []string               `json:"contains"`
	Payload   map[string]interface{} `json:"payload"`
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of payload against signature.
// An empty secret never verifies.
func VerifyWebhookSignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expectedSignature := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(expectedSignature), []byte(signature))
}

// ParseWebhook decodes a webhook body and returns the transaction it
// settles. ok is false for events that carry no captured payment.
func ParseWebhook(body []byte) (payload RazorpayWebhookPayload, tx models.BankTransaction, ok bool, err error) {
	if err = json.Unmarshal(body, &payload); err != nil {
		return payload, tx, false, fmt.Errorf("invalid webhook payload: %w", err)
	}

	switch payload.Event {
	case "payment.captured", "order.paid":
	default:
		return payload, tx, false, nil
	}

	paymentMap, _ := payload.Payload["payment"].(map[string]interface{})
	entity, _ := paymentMap["entity"].(map[string]interface{})
	if entity == nil {
		return payload, tx, false, fmt.Errorf("%s webhook has no payment entity", payload.Event)
	}
	if stringField(entity, "id") == "" {
		return payload, tx, false, fmt.Errorf("%s webhook payment has no id", payload.Event)
	}

	tx, ok = paymentToTransaction(entity)
	if ok && tx.Status != models.TransactionCompleted {
		ok = false
	}
	return payload, tx, ok, nil
}
