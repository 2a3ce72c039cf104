package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/razorpay/razorpay-go"

	"studio-booking/models"
)

// razorpayPageSize is the largest page the payments API serves.
const razorpayPageSize = 100

// paymentLister is the part of the Razorpay payments resource the feed uses.
type paymentLister interface {
	All(queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayFeed exposes recent Razorpay payments as bank transactions.
type RazorpayFeed struct {
	payments paymentLister
	lookback time.Duration
	now      func() time.Time
}

// NewRazorpayFeed builds a feed over the payments created within lookback.
func NewRazorpayFeed(keyID, keySecret string, lookback time.Duration) (*RazorpayFeed, error) {
	if keyID == "" || keySecret == "" {
		return nil, fmt.Errorf("razorpay credentials not configured")
	}
	client := razorpay.NewClient(keyID, keySecret)
	return newRazorpayFeed(client.Payment, lookback), nil
}

func newRazorpayFeed(payments paymentLister, lookback time.Duration) *RazorpayFeed {
	return &RazorpayFeed{payments: payments, lookback: lookback, now: time.Now}
}

func (f *RazorpayFeed) Fetch(ctx context.Context) ([]models.BankTransaction, error) {
	from := f.now().Add(-f.lookback).Unix()
	var txs []models.BankTransaction

	for skip := 0; ; skip += razorpayPageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := f.payments.All(map[string]interface{}{
			"from":  from,
			"count": razorpayPageSize,
			"skip":  skip,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("error listing razorpay payments: %w", err)
		}

		items, _ := resp["items"].([]interface{})
		for _, item := range items {
			payment, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if tx, ok := paymentToTransaction(payment); ok {
				txs = append(txs, tx)
			}
		}

		if len(items) < razorpayPageSize {
			break
		}
	}

	return txs, nil
}

// paymentToTransaction maps a Razorpay payment entity. Failed and refunded
// payments are dropped since they can never settle a claim.
func paymentToTransaction(p map[string]interface{}) (models.BankTransaction, bool) {
	var status models.TransactionStatus
	switch stringField(p, "status") {
	case "captured":
		status = models.TransactionCompleted
	case "authorized", "created":
		status = models.TransactionPending
	default:
		return models.BankTransaction{}, false
	}

	// amounts are in minor units
	minor, _ := p["amount"].(float64)

	var ts time.Time
	if created, ok := p["created_at"].(float64); ok {
		ts = time.Unix(int64(created), 0).UTC()
	}

	sender := stringField(p, "email")
	if sender == "" {
		sender = stringField(p, "contact")
	}

	return models.BankTransaction{
		ID:        stringField(p, "id"),
		Amount:    minor / 100,
		Memo:      paymentMemo(p),
		Timestamp: ts,
		Sender:    sender,
		Status:    status,
	}, true
}

// paymentMemo joins the description and note values, notes in key order.
func paymentMemo(p map[string]interface{}) string {
	parts := []string{}
	if d := stringField(p, "description"); d != "" {
		parts = append(parts, d)
	}

	// notes is an object, or an empty array when unset
	if notes, ok := p["notes"].(map[string]interface{}); ok {
		keys := make([]string, 0, len(notes))
		for k := range notes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := notes[k].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
