package services

import (
	"context"
	"sync"
	"time"

	"studio-booking/errors"
	"studio-booking/logger"
	"studio-booking/models"
)

// DefaultPollInterval is how often the verifier runs a matching pass.
const DefaultPollInterval = 30 * time.Second

// TransactionFeed supplies the bank transactions to reconcile against.
type TransactionFeed interface {
	Fetch(ctx context.Context) ([]models.BankTransaction, error)
}

// Verifier polls a TransactionFeed and runs a ledger matching pass per tick.
// Ticks are handled by a single goroutine, so passes never overlap.
type Verifier struct {
	ledger   *Ledger
	feed     TransactionFeed
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	// ticks replaces the ticker in tests.
	ticks <-chan time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
	lastErr error
}

type VerifierOption func(*Verifier)

func WithPollInterval(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.interval = d
		}
	}
}

// WithFetchTimeout bounds each feed fetch. Zero means no deadline.
func WithFetchTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.timeout = d }
}

func WithVerifierLogger(log *logger.Logger) VerifierOption {
	return func(v *Verifier) { v.log = log }
}

// WithTicks drives the loop from ch instead of a ticker.
func WithTicks(ch <-chan time.Time) VerifierOption {
	return func(v *Verifier) { v.ticks = ch }
}

func NewVerifier(ledger *Ledger, feed TransactionFeed, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		ledger:   ledger,
		feed:     feed,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = logger.OrDefault(v.log).WithField("component", "verifier")
	return v
}

// Start begins polling. It returns false if the verifier was already running.
func (v *Verifier) Start(ctx context.Context) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cancel != nil {
		v.log.Debug("Verifier already running")
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.done = make(chan struct{})

	go v.loop(loopCtx, v.done)
	v.log.Info("Payment verifier started, polling every %s", v.interval)
	return true
}

// Stop halts polling and waits for an in-flight pass to finish. It is safe
// to call when the verifier is not running.
func (v *Verifier) Stop() {
	v.mu.Lock()
	cancel, done := v.cancel, v.done
	v.cancel, v.done = nil, nil
	v.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	v.log.Info("Payment verifier stopped")
}

// Running reports whether the polling loop is active.
func (v *Verifier) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancel != nil
}

// LastRun returns the time and error of the most recent tick.
func (v *Verifier) LastRun() (time.Time, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastRun, v.lastErr
}

func (v *Verifier) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer v.release(done)

	ticks := v.ticks
	if ticks == nil {
		ticker := time.NewTicker(v.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			_, _ = v.Tick(ctx)
		}
	}
}

// release clears the running state when the loop ends on its own, e.g. when
// the context given to Start is cancelled. Stop has already cleared it
// otherwise.
func (v *Verifier) release(done chan struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.done == done {
		v.cancel()
		v.cancel, v.done = nil, nil
	}
}

// Tick fetches the feed once and runs a matching pass. A fetch failure
// aborts the pass without touching the ledger; the next tick retries.
func (v *Verifier) Tick(ctx context.Context) (PassResult, error) {
	result, err := v.tick(ctx)

	v.mu.Lock()
	v.lastRun = v.ledger.Now()
	v.lastErr = err
	v.mu.Unlock()

	return result, err
}

func (v *Verifier) tick(ctx context.Context) (PassResult, error) {
	fetchCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	txs, err := v.feed.Fetch(fetchCtx)
	if err != nil {
		v.log.Error("Transaction feed fetch failed, skipping pass: %v", err)
		return PassResult{}, errors.E(errors.Unavailable, "fetching transaction feed", err)
	}

	result, err := v.ledger.RunMatchingPass(ctx, txs)
	if err != nil {
		v.log.Error("Matching pass failed: %v", err)
		return result, err
	}
	return result, nil
}
