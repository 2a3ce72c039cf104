package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-booking/errors"
	"studio-booking/models"
)

// countingFeed wraps a feed and counts fetches.
type countingFeed struct {
	TransactionFeed
	fetches int32
}

func (c *countingFeed) Fetch(ctx context.Context) ([]models.BankTransaction, error) {
	atomic.AddInt32(&c.fetches, 1)
	return c.TransactionFeed.Fetch(ctx)
}

func (c *countingFeed) count() int {
	return int(atomic.LoadInt32(&c.fetches))
}

// blockingFeed waits for the fetch context to end.
type blockingFeed struct{}

func (blockingFeed) Fetch(ctx context.Context) ([]models.BankTransaction, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestVerifier_TickVerifiesMatches(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYTICK01")))
	v := f.create(t, 15)

	feed := NewStaticFeed(completed(15, "transfer NYTICK01"))
	verifier := NewVerifier(f.ledger, feed)

	result, err := verifier.Tick(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Matches, 1)
	assert.Equal(t, models.StatusVerified, f.get(t, v.ID).Status)

	at, lastErr := verifier.LastRun()
	assert.Equal(t, f.clock.Now(), at)
	assert.NoError(t, lastErr)
}

func TestVerifier_FeedFailureAbortsPass(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYDOWN01")))
	v := f.create(t, 15)

	feed := NewStaticFeed(completed(15, "NYDOWN01"))
	feed.Fail(fmt.Errorf("bank api unavailable"))
	verifier := NewVerifier(f.ledger, feed)

	_, err := verifier.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Unavailable))
	assert.Equal(t, models.StatusPending, f.get(t, v.ID).Status)

	_, lastErr := verifier.LastRun()
	assert.Error(t, lastErr)

	// the next tick retries
	feed.Fail(nil)
	_, err = verifier.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, f.get(t, v.ID).Status)
}

func TestVerifier_FetchTimeout(t *testing.T) {
	f := newLedgerFixture()
	verifier := NewVerifier(f.ledger, blockingFeed{}, WithFetchTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := verifier.Tick(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Unavailable))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestVerifier_StartIsIdempotent(t *testing.T) {
	f := newLedgerFixture()
	feed := &countingFeed{TransactionFeed: NewStaticFeed()}
	ticks := make(chan time.Time)
	verifier := NewVerifier(f.ledger, feed, WithTicks(ticks))

	ctx := context.Background()
	assert.True(t, verifier.Start(ctx))
	assert.False(t, verifier.Start(ctx))
	assert.True(t, verifier.Running())

	// an unbuffered send only completes once the single loop receives it
	ticks <- time.Now()
	ticks <- time.Now()
	verifier.Stop()

	assert.Equal(t, 2, feed.count())
	assert.False(t, verifier.Running())
}

func TestVerifier_StopWhenNotRunning(t *testing.T) {
	f := newLedgerFixture()
	verifier := NewVerifier(f.ledger, NewStaticFeed())

	assert.NotPanics(t, verifier.Stop)

	ticks := make(chan time.Time)
	verifier = NewVerifier(f.ledger, NewStaticFeed(), WithTicks(ticks))
	require.True(t, verifier.Start(context.Background()))
	verifier.Stop()
	assert.NotPanics(t, verifier.Stop)
}

func TestVerifier_RestartAfterStop(t *testing.T) {
	f := newLedgerFixture()
	feed := &countingFeed{TransactionFeed: NewStaticFeed()}
	ticks := make(chan time.Time)
	verifier := NewVerifier(f.ledger, feed, WithTicks(ticks))

	require.True(t, verifier.Start(context.Background()))
	verifier.Stop()
	require.True(t, verifier.Start(context.Background()))

	ticks <- time.Now()
	verifier.Stop()

	assert.Equal(t, 1, feed.count())
}

func TestVerifier_DefaultInterval(t *testing.T) {
	f := newLedgerFixture()

	assert.Equal(t, 30*time.Second, NewVerifier(f.ledger, NewStaticFeed()).interval)
	assert.Equal(t, time.Minute, NewVerifier(f.ledger, NewStaticFeed(), WithPollInterval(time.Minute)).interval)
	assert.Equal(t, DefaultPollInterval, NewVerifier(f.ledger, NewStaticFeed(), WithPollInterval(0)).interval)
}

func TestVerifier_ParentCancelStopsAndAllowsRestart(t *testing.T) {
	f := newLedgerFixture()
	feed := &countingFeed{TransactionFeed: NewStaticFeed()}
	ticks := make(chan time.Time)
	verifier := NewVerifier(f.ledger, feed, WithTicks(ticks))

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, verifier.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !verifier.Running() }, 2*time.Second, 5*time.Millisecond)

	require.True(t, verifier.Start(context.Background()))
	assert.True(t, verifier.Running())

	ticks <- time.Now()
	verifier.Stop()

	assert.Equal(t, 1, feed.count())
	assert.False(t, verifier.Running())
}
