package services

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-booking/errors"
	"studio-booking/models"
)

var confirmationPattern = regexp.MustCompile(`^NY[A-Z0-9]{6}$`)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 11, 13, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu           sync.Mutex
	instructions []string
	verified     []string
	err          error
}

func (n *recordingNotifier) SendPaymentInstructions(_ context.Context, v *models.PaymentVerification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.instructions = append(n.instructions, v.ConfirmationNumber)
	return n.err
}

func (n *recordingNotifier) SendPaymentVerified(_ context.Context, v *models.PaymentVerification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verified = append(n.verified, v.ID)
	return n.err
}

type recordingBooking struct {
	mu        sync.Mutex
	processed []*models.PaymentVerification
	err       error
}

func (b *recordingBooking) Process(_ context.Context, v *models.PaymentVerification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processed = append(b.processed, v)
	return b.err
}

// sequence hands out the given confirmation numbers in order.
func sequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(codes) {
			return "", fmt.Errorf("sequence exhausted")
		}
		code := codes[i]
		i++
		return code, nil
	}
}

type ledgerFixture struct {
	ledger   *Ledger
	store    *MemoryStore
	clock    *fakeClock
	notifier *recordingNotifier
	booking  *recordingBooking
}

func newLedgerFixture(opts ...LedgerOption) *ledgerFixture {
	f := &ledgerFixture{
		store:    NewMemoryStore(),
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
		booking:  &recordingBooking{},
	}
	opts = append([]LedgerOption{WithClock(f.clock.Now)}, opts...)
	f.ledger = NewLedger(f.store, f.notifier, f.booking, opts...)
	return f
}

func (f *ledgerFixture) create(t *testing.T, amount float64) *models.PaymentVerification {
	t.Helper()
	v, err := f.ledger.Create(context.Background(), CreateVerificationRequest{
		StudentName:  "Asha Rao",
		StudentEmail: "asha@example.com",
		Amount:       amount,
	})
	require.NoError(t, err)
	return v
}

func (f *ledgerFixture) get(t *testing.T, id string) *models.PaymentVerification {
	t.Helper()
	v, err := f.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return v
}

func completed(amount float64, memo string) models.BankTransaction {
	return models.BankTransaction{ID: "tx-" + memo, Amount: amount, Memo: memo, Status: models.TransactionCompleted}
}

func TestLedger_Create(t *testing.T) {
	f := newLedgerFixture()

	v := f.create(t, 25)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, models.StatusPending, v.Status)
	assert.Nil(t, v.VerifiedAt)
	assert.Regexp(t, confirmationPattern, v.ConfirmationNumber)
	assert.Equal(t, f.clock.Now(), v.CreatedAt)
	assert.Equal(t, []string{v.ConfirmationNumber}, f.notifier.instructions)

	stored := f.get(t, v.ID)
	assert.Equal(t, v.ConfirmationNumber, stored.ConfirmationNumber)
}

func TestLedger_CreateWithDetails(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()

	class := &models.ClassDetails{ClassID: "c1", ClassName: "Vinyasa Flow", StartsAt: f.clock.Now().Add(48 * time.Hour)}
	v, err := f.ledger.Create(ctx, CreateVerificationRequest{
		StudentName: "Asha", StudentEmail: "asha@example.com", Amount: 20, ClassDetails: class,
	})
	require.NoError(t, err)
	assert.Equal(t, "Vinyasa Flow", f.get(t, v.ID).ClassDetails.ClassName)

	_, err = f.ledger.Create(ctx, CreateVerificationRequest{
		StudentName: "Asha", StudentEmail: "asha@example.com", Amount: 20,
		ClassDetails:   class,
		PackageDetails: &models.PackageDetails{PackageID: "p1", PackageName: "Ten Pack", Sessions: 10},
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Invalid))
}

func TestLedger_CreateKeepsRecordWhenInstructionsFail(t *testing.T) {
	f := newLedgerFixture()
	f.notifier.err = fmt.Errorf("smtp down")

	v := f.create(t, 25)

	assert.Equal(t, models.StatusPending, f.get(t, v.ID).Status)
}

func TestLedger_CreateRegeneratesCollidingConfirmation(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYAAAAAA", "NYAAAAAA", "NYBBBBBB")))

	first := f.create(t, 10)
	second := f.create(t, 10)

	assert.Equal(t, "NYAAAAAA", first.ConfirmationNumber)
	assert.Equal(t, "NYBBBBBB", second.ConfirmationNumber)
}

func TestLedger_CreateReusesConfirmationOfSettledClaim(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYAAAAAA", "NYAAAAAA")))
	ctx := context.Background()

	first := f.create(t, 10)
	_, err := f.ledger.RunMatchingPass(ctx, []models.BankTransaction{completed(10, "NYAAAAAA")})
	require.NoError(t, err)
	require.Equal(t, models.StatusVerified, f.get(t, first.ID).Status)

	second := f.create(t, 10)
	assert.Equal(t, "NYAAAAAA", second.ConfirmationNumber)
}

func TestLedger_CreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	codes := []string{"NYAAAAAA"}
	for i := 0; i < maxConfirmationAttempts; i++ {
		codes = append(codes, "NYAAAAAA")
	}
	f := newLedgerFixture(WithConfirmationGenerator(sequence(codes...)))

	f.create(t, 10)
	_, err := f.ledger.Create(context.Background(), CreateVerificationRequest{
		StudentName: "Ben", StudentEmail: "ben@example.com", Amount: 10,
	})

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Conflict))
}

func TestLedger_GetUnknown(t *testing.T) {
	f := newLedgerFixture()

	_, err := f.ledger.Get(context.Background(), "missing")

	assert.True(t, errors.IsKind(err, errors.NotFound))
}

func TestLedger_ListNewestFirst(t *testing.T) {
	f := newLedgerFixture()

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, f.create(t, float64(10+i)).ID)
		f.clock.Advance(time.Minute)
	}

	list, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 4)

	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
	assert.Equal(t, ids[3], list[0].ID)
	assert.Equal(t, ids[0], list[3].ID)
}

func TestLedger_RunMatchingPass(t *testing.T) {
	tests := []struct {
		name         string
		tx           models.BankTransaction
		wantVerified bool
	}{
		{
			name:         "completed transfer with code in memo",
			tx:           models.BankTransaction{ID: "t1", Amount: 10, Memo: "NYABC123 - payment", Status: models.TransactionCompleted},
			wantVerified: true,
		},
		{
			name: "transfer not completed",
			tx:   models.BankTransaction{ID: "t2", Amount: 10, Memo: "NYABC123", Status: models.TransactionPending},
		},
		{
			name: "amount mismatch",
			tx:   models.BankTransaction{ID: "t3", Amount: 11, Memo: "NYABC123", Status: models.TransactionCompleted},
		},
		{
			name: "amount off by a cent",
			tx:   models.BankTransaction{ID: "t4", Amount: 10.01, Memo: "NYABC123", Status: models.TransactionCompleted},
		},
		{
			name: "code missing from memo",
			tx:   models.BankTransaction{ID: "t5", Amount: 10, Memo: "yoga class", Status: models.TransactionCompleted},
		},
		{
			name: "code in different case",
			tx:   models.BankTransaction{ID: "t6", Amount: 10, Memo: "nyabc123", Status: models.TransactionCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture(WithConfirmationGenerator(sequence("NYABC123")))
			v := f.create(t, 10)
			f.clock.Advance(time.Hour)

			result, err := f.ledger.RunMatchingPass(context.Background(), []models.BankTransaction{tt.tx})
			require.NoError(t, err)

			got := f.get(t, v.ID)
			if tt.wantVerified {
				assert.Equal(t, models.StatusVerified, got.Status)
				require.NotNil(t, got.VerifiedAt)
				assert.Equal(t, f.clock.Now(), *got.VerifiedAt)
				require.Len(t, result.Matches, 1)
				assert.Equal(t, tt.tx.ID, result.Matches[0].TransactionID)
				assert.Equal(t, []string{v.ID}, f.notifier.verified)
			} else {
				assert.Equal(t, models.StatusPending, got.Status)
				assert.Nil(t, got.VerifiedAt)
				assert.Empty(t, result.Matches)
				assert.Empty(t, f.notifier.verified)
			}
		})
	}
}

func TestLedger_RunMatchingPassSkipsExpired(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYOLD001", "NYNEW001")))
	ctx := context.Background()

	old := f.create(t, 10)
	f.clock.Advance(24 * time.Hour)
	fresh := f.create(t, 10)

	txs := []models.BankTransaction{completed(10, "NYOLD001"), completed(10, "NYNEW001")}
	result, err := f.ledger.RunMatchingPass(ctx, txs)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, models.StatusPending, f.get(t, old.ID).Status)
	assert.Equal(t, models.StatusVerified, f.get(t, fresh.ID).Status)
	assert.Equal(t, models.StatusExpired, f.get(t, old.ID).EffectiveStatus(f.clock.Now(), f.ledger.Expiry()))
}

func TestLedger_RunMatchingPassJustBeforeExpiry(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYEDGE01")))

	v := f.create(t, 10)
	f.clock.Advance(24*time.Hour - time.Second)

	_, err := f.ledger.RunMatchingPass(context.Background(), []models.BankTransaction{completed(10, "NYEDGE01")})
	require.NoError(t, err)

	assert.Equal(t, models.StatusVerified, f.get(t, v.ID).Status)
}

func TestLedger_RunMatchingPassCustomExpiry(t *testing.T) {
	f := newLedgerFixture(WithExpiry(time.Hour), WithConfirmationGenerator(sequence("NYSHORT1")))

	v := f.create(t, 10)
	f.clock.Advance(time.Hour)

	_, err := f.ledger.RunMatchingPass(context.Background(), []models.BankTransaction{completed(10, "NYSHORT1")})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, f.get(t, v.ID).Status)
}

func TestLedger_RunMatchingPassFirstTransactionWins(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYFIRST1")))

	f.create(t, 10)
	txs := []models.BankTransaction{
		{ID: "a", Amount: 10, Memo: "NYFIRST1", Status: models.TransactionPending},
		{ID: "b", Amount: 10, Memo: "ref NYFIRST1", Status: models.TransactionCompleted},
		{ID: "c", Amount: 10, Memo: "NYFIRST1 again", Status: models.TransactionCompleted},
	}

	result, err := f.ledger.RunMatchingPass(context.Background(), txs)
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "b", result.Matches[0].TransactionID)
}

func TestLedger_RunMatchingPassOneTransactionSettlesSeveralClaims(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYAAA111", "NYBBB222")))

	a := f.create(t, 10)
	b := f.create(t, 10)

	tx := completed(10, "NYAAA111 NYBBB222")
	result, err := f.ledger.RunMatchingPass(context.Background(), []models.BankTransaction{tx})
	require.NoError(t, err)

	assert.Len(t, result.Matches, 2)
	assert.Equal(t, models.StatusVerified, f.get(t, a.ID).Status)
	assert.Equal(t, models.StatusVerified, f.get(t, b.ID).Status)
}

func TestLedger_RunMatchingPassIsIdempotent(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYONCE01")))
	ctx := context.Background()

	v := f.create(t, 10)
	txs := []models.BankTransaction{completed(10, "NYONCE01")}

	_, err := f.ledger.RunMatchingPass(ctx, txs)
	require.NoError(t, err)
	firstVerifiedAt := *f.get(t, v.ID).VerifiedAt

	f.clock.Advance(time.Minute)
	result, err := f.ledger.RunMatchingPass(ctx, txs)
	require.NoError(t, err)

	assert.Empty(t, result.Matches)
	assert.Equal(t, firstVerifiedAt, *f.get(t, v.ID).VerifiedAt)
	assert.Len(t, f.notifier.verified, 1)
}

func TestLedger_RunMatchingPassTriggersBooking(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYCLASS1", "NYPLAIN1")))
	ctx := context.Background()

	withClass, err := f.ledger.Create(ctx, CreateVerificationRequest{
		StudentName: "Asha", StudentEmail: "asha@example.com", Amount: 20,
		ClassDetails: &models.ClassDetails{ClassID: "c1", ClassName: "Yin"},
	})
	require.NoError(t, err)
	f.create(t, 30)

	_, err = f.ledger.RunMatchingPass(ctx, []models.BankTransaction{
		completed(20, "NYCLASS1"),
		completed(30, "NYPLAIN1"),
	})
	require.NoError(t, err)

	require.Len(t, f.booking.processed, 1)
	assert.Equal(t, withClass.ID, f.booking.processed[0].ID)
	assert.Equal(t, models.StatusVerified, f.booking.processed[0].Status)
	assert.Len(t, f.notifier.verified, 2)
}

func TestLedger_SideEffectFailuresDoNotRollBack(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYFAIL01")))
	ctx := context.Background()

	v, err := f.ledger.Create(ctx, CreateVerificationRequest{
		StudentName: "Asha", StudentEmail: "asha@example.com", Amount: 20,
		PackageDetails: &models.PackageDetails{PackageID: "p1", PackageName: "Ten Pack", Sessions: 10, ValidDays: 90},
	})
	require.NoError(t, err)

	f.notifier.err = fmt.Errorf("smtp down")
	f.booking.err = fmt.Errorf("booking backend down")

	result, err := f.ledger.RunMatchingPass(ctx, []models.BankTransaction{completed(20, "NYFAIL01")})
	require.NoError(t, err)

	assert.Len(t, result.Matches, 1)
	assert.Equal(t, models.StatusVerified, f.get(t, v.ID).Status)
	assert.Len(t, f.booking.processed, 1)
}

func TestLedger_ConcurrentPassesVerifyOnce(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYRACE01")))
	ctx := context.Background()

	f.create(t, 10)
	txs := []models.BankTransaction{completed(10, "NYRACE01")}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.ledger.RunMatchingPass(ctx, txs)
			assert.NoError(t, err)
			mu.Lock()
			total += len(result.Matches)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.Len(t, f.notifier.verified, 1)
}

func TestNewConfirmationNumber(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := NewConfirmationNumber()
		require.NoError(t, err)
		assert.Regexp(t, confirmationPattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestLedger_CreateRoundsAmountToCents(t *testing.T) {
	f := newLedgerFixture(WithConfirmationGenerator(sequence("NYCENT01")))

	v := f.create(t, 10.000000001)
	assert.Equal(t, 10.0, f.get(t, v.ID).Amount)

	_, err := f.ledger.RunMatchingPass(context.Background(), []models.BankTransaction{completed(10, "NYCENT01")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, f.get(t, v.ID).Status)
}

// holdingNotifier blocks the verified email for one confirmation number
// until release is closed.
type holdingNotifier struct {
	recordingNotifier
	hold    string
	held    chan struct{}
	release chan struct{}
}

func (n *holdingNotifier) SendPaymentVerified(ctx context.Context, v *models.PaymentVerification) error {
	if v.ConfirmationNumber == n.hold {
		close(n.held)
		<-n.release
	}
	return n.recordingNotifier.SendPaymentVerified(ctx, v)
}

func TestLedger_SlowSideEffectsDoNotBlockNextPass(t *testing.T) {
	clock := newFakeClock()
	notifier := &holdingNotifier{hold: "NYHOLD01", held: make(chan struct{}), release: make(chan struct{})}
	ledger := NewLedger(NewMemoryStore(), notifier, nil,
		WithClock(clock.Now),
		WithConfirmationGenerator(sequence("NYHOLD01", "NYFREE01")),
	)
	ctx := context.Background()

	for _, amount := range []float64{10, 20} {
		_, err := ledger.Create(ctx, CreateVerificationRequest{StudentName: "Asha", StudentEmail: "asha@example.com", Amount: amount})
		require.NoError(t, err)
	}

	first := make(chan struct{})
	go func() {
		defer close(first)
		_, _ = ledger.RunMatchingPass(ctx, []models.BankTransaction{completed(10, "NYHOLD01")})
	}()
	<-notifier.held

	second := make(chan PassResult, 1)
	go func() {
		result, _ := ledger.RunMatchingPass(ctx, []models.BankTransaction{completed(20, "NYFREE01")})
		second <- result
	}()

	select {
	case result := <-second:
		require.Len(t, result.Matches, 1)
		assert.Equal(t, "NYFREE01", result.Matches[0].ConfirmationNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("second pass waited for the first pass's email")
	}

	close(notifier.release)
	<-first
	assert.Len(t, notifier.verified, 2)
}
