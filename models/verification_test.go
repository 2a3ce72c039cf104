package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	v := &PaymentVerification{Amount: 10, ConfirmationNumber: "NYABC123", Status: StatusPending}

	cases := []struct {
		name string
		tx   BankTransaction
		want bool
	}{
		{"completed with memo", BankTransaction{Amount: 10, Memo: "NYABC123 - payment", Status: TransactionCompleted}, true},
		{"pending transfer", BankTransaction{Amount: 10, Memo: "NYABC123", Status: TransactionPending}, false},
		{"amount mismatch", BankTransaction{Amount: 11, Memo: "NYABC123", Status: TransactionCompleted}, false},
		{"memo missing number", BankTransaction{Amount: 10, Memo: "yoga class", Status: TransactionCompleted}, false},
		{"lowercase memo", BankTransaction{Amount: 10, Memo: "nyabc123", Status: TransactionCompleted}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, v.Matches(tc.tx))
		})
	}
}

func TestEffectiveStatus(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v := &PaymentVerification{Status: StatusPending, CreatedAt: created}

	assert.Equal(t, StatusPending, v.EffectiveStatus(created.Add(23*time.Hour), DefaultExpiryWindow))
	assert.Equal(t, StatusExpired, v.EffectiveStatus(created.Add(24*time.Hour), DefaultExpiryWindow))

	resp := v.ToResponse(created.Add(25*time.Hour), DefaultExpiryWindow)
	assert.True(t, resp.Expired)
	assert.Equal(t, StatusPending, resp.Status)

	v.Status = StatusVerified
	assert.Equal(t, StatusVerified, v.EffectiveStatus(created.Add(48*time.Hour), DefaultExpiryWindow))
}

func TestParseFlexibleTime(t *testing.T) {
	got, ok := ParseFlexibleTime("2026-03-01")
	assert.True(t, ok)
	assert.Equal(t, 2026, got.Year())

	_, ok = ParseFlexibleTime("yesterday")
	assert.False(t, ok)

	assert.Equal(t, "Sunday, March 1, 2026", FormatDate(got))
}
