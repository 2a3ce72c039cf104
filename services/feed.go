package services

import (
	"context"
	"sync"

	"studio-booking/models"
)

// StaticFeed serves a fixed, replaceable list of transactions.
type StaticFeed struct {
	mu  sync.RWMutex
	txs []models.BankTransaction
	err error
}

func NewStaticFeed(txs ...models.BankTransaction) *StaticFeed {
	return &StaticFeed{txs: txs}
}

// Set replaces the transactions returned by later fetches.
func (f *StaticFeed) Set(txs ...models.BankTransaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = txs
}

// Fail makes later fetches return err until cleared with Fail(nil).
func (f *StaticFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *StaticFeed) Fetch(ctx context.Context) ([]models.BankTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.BankTransaction, len(f.txs))
	copy(out, f.txs)
	return out, nil
}
