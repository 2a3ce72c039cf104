package models

import (
	"time"
)

// TransactionStatus is the settlement state reported by the feed.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
)

// BankTransaction is one entry of the external transaction feed. It is read-only.
type BankTransaction struct {
	ID        string            `json:"id"`
	Amount    float64           `json:"amount"`
	Memo      string            `json:"memo"`
	Timestamp time.Time         `json:"timestamp"`
	Sender    string            `json:"sender"`
	Status    TransactionStatus `json:"status"`
}
