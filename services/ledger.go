package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"studio-booking/errors"
	"studio-booking/logger"
	"studio-booking/models"
)

// maxConfirmationAttempts bounds regeneration when a fresh confirmation
// number collides with a live pending claim.
const maxConfirmationAttempts = 5

// Notifier requests the emails the ledger is responsible for.
type Notifier interface {
	SendPaymentInstructions(ctx context.Context, v *models.PaymentVerification) error
	SendPaymentVerified(ctx context.Context, v *models.PaymentVerification) error
}

// BookingProcessor allocates the class or package a verified claim paid for.
type BookingProcessor interface {
	Process(ctx context.Context, v *models.PaymentVerification) error
}

// CreateVerificationRequest carries the inputs of a new claim.
type CreateVerificationRequest struct {
	StudentName    string                 `json:"student_name"`
	StudentEmail   string                 `json:"student_email"`
	Amount         float64                `json:"amount"`
	ClassDetails   *models.ClassDetails   `json:"class_details,omitempty"`
	PackageDetails *models.PackageDetails `json:"package_details,omitempty"`
}

// Match pairs a newly verified claim with the transaction that settled it.
type Match struct {
	VerificationID     string `json:"verification_id"`
	ConfirmationNumber string `json:"confirmation_number"`
	TransactionID      string `json:"transaction_id"`
}

// PassResult summarises one matching pass.
type PassResult struct {
	Transactions int     `json:"transactions"`
	Checked      int     `json:"checked"`
	Matches      []Match `json:"matches"`
}

// Ledger holds outstanding payment claims and reconciles them against
// transaction feeds.
type Ledger struct {
	store    Store
	notifier Notifier
	booking  BookingProcessor
	log      *logger.Logger

	now          func() time.Time
	expiry       time.Duration
	newID        func() string
	confirmation func() (string, error)

	// passMu keeps matching passes strictly sequential.
	passMu sync.Mutex
}

type LedgerOption func(*Ledger)

func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func WithExpiry(window time.Duration) LedgerOption {
	return func(l *Ledger) {
		if window > 0 {
			l.expiry = window
		}
	}
}

func WithLedgerLogger(log *logger.Logger) LedgerOption {
	return func(l *Ledger) { l.log = log }
}

func WithConfirmationGenerator(gen func() (string, error)) LedgerOption {
	return func(l *Ledger) { l.confirmation = gen }
}

// NewLedger wires a ledger to its store and collaborators. notifier and
// booking may be nil, in which case those side effects are skipped.
func NewLedger(store Store, notifier Notifier, booking BookingProcessor, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:        store,
		notifier:     notifier,
		booking:      booking,
		now:          time.Now,
		expiry:       models.DefaultExpiryWindow,
		newID:        func() string { return uuid.New().String() },
		confirmation: NewConfirmationNumber,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logger.OrDefault(l.log).WithField("component", "ledger")
	return l
}

// Expiry is the age after which a pending claim is no longer matched.
func (l *Ledger) Expiry() time.Duration {
	return l.expiry
}

// Now is the ledger's clock.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Create records a new pending claim and requests the payment instructions email.
func (l *Ledger) Create(ctx context.Context, req CreateVerificationRequest) (*models.PaymentVerification, error) {
	if req.ClassDetails != nil && req.PackageDetails != nil {
		return nil, errors.NewInvalidParamsError("a verification pays for a class or a package, not both")
	}

	now := l.now()
	code, err := l.uniqueConfirmation(ctx, now)
	if err != nil {
		return nil, err
	}

	v := &models.PaymentVerification{
		ID:                 l.newID(),
		StudentName:        req.StudentName,
		StudentEmail:       req.StudentEmail,
		Amount:             roundCents(req.Amount),
		ConfirmationNumber: code,
		Status:             models.StatusPending,
		CreatedAt:          now,
		ClassDetails:       req.ClassDetails,
		PackageDetails:     req.PackageDetails,
	}

	if err := l.store.Insert(ctx, v); err != nil {
		return nil, err
	}

	l.log.WithFields(map[string]interface{}{
		"verification_id":     v.ID,
		"confirmation_number": v.ConfirmationNumber,
	}).Info("Payment verification created for %s, amount %.2f", v.StudentEmail, v.Amount)

	if l.notifier != nil {
		if err := l.notifier.SendPaymentInstructions(ctx, v); err != nil {
			l.log.Error("Failed to send payment instructions for %s: %v", v.ID, err)
		}
	}

	return v, nil
}

func (l *Ledger) uniqueConfirmation(ctx context.Context, now time.Time) (string, error) {
	since := now.Add(-l.expiry)
	for attempt := 0; attempt < maxConfirmationAttempts; attempt++ {
		code, err := l.confirmation()
		if err != nil {
			return "", errors.E(errors.Internal, err)
		}
		taken, err := l.store.PendingConfirmationExists(ctx, code, since)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
		l.log.Warn("Confirmation number %s already pending, regenerating", code)
	}
	return "", errors.NewConflictError(fmt.Sprintf("no unused confirmation number after %d attempts", maxConfirmationAttempts))
}

// Get returns the claim with the given id, or a NotFound error.
func (l *Ledger) Get(ctx context.Context, id string) (*models.PaymentVerification, error) {
	return l.store.Get(ctx, id)
}

// List returns all claims, newest first.
func (l *Ledger) List(ctx context.Context) ([]*models.PaymentVerification, error) {
	return l.store.List(ctx)
}

// RunMatchingPass verifies every pending, unexpired claim that has a matching
// transaction in txs. The first matching transaction in feed order wins. A
// transaction is not consumed by a match, so it may settle several claims.
// Emails and booking for the verified claims are requested after the pass
// releases the ledger, so a slow collaborator never holds up the next pass.
func (l *Ledger) RunMatchingPass(ctx context.Context, txs []models.BankTransaction) (PassResult, error) {
	result, verified, err := l.match(ctx, txs)
	for _, v := range verified {
		l.settle(ctx, v)
	}
	return result, err
}

func (l *Ledger) match(ctx context.Context, txs []models.BankTransaction) (PassResult, []*models.PaymentVerification, error) {
	l.passMu.Lock()
	defer l.passMu.Unlock()

	now := l.now()
	result := PassResult{Transactions: len(txs)}

	pending, err := l.store.ListPending(ctx, now.Add(-l.expiry))
	if err != nil {
		return result, nil, err
	}

	var verified []*models.PaymentVerification
	for _, v := range pending {
		if v.IsExpired(now, l.expiry) {
			continue
		}
		result.Checked++

		for _, tx := range txs {
			if !v.Matches(tx) {
				continue
			}
			if l.verify(ctx, v, tx, now) {
				verified = append(verified, v)
				result.Matches = append(result.Matches, Match{
					VerificationID:     v.ID,
					ConfirmationNumber: v.ConfirmationNumber,
					TransactionID:      tx.ID,
				})
			}
			break
		}
	}

	if len(result.Matches) > 0 {
		l.log.Info("Matching pass verified %d of %d pending claims against %d transactions",
			len(result.Matches), result.Checked, result.Transactions)
	}
	return result, verified, nil
}

// verify applies the pending -> verified transition. It reports false when
// the claim was already settled elsewhere.
func (l *Ledger) verify(ctx context.Context, v *models.PaymentVerification, tx models.BankTransaction, now time.Time) bool {
	log := l.log.WithFields(map[string]interface{}{
		"verification_id": v.ID,
		"transaction_id":  tx.ID,
	})

	ok, err := l.store.MarkVerified(ctx, v.ID, now)
	if err != nil {
		log.Error("Failed to mark verification as verified: %v", err)
		return false
	}
	if !ok {
		log.Debug("Verification no longer pending, skipping")
		return false
	}

	v.Status = models.StatusVerified
	verifiedAt := now
	v.VerifiedAt = &verifiedAt
	log.Info("Payment verified for %s (%s)", v.StudentEmail, v.ConfirmationNumber)
	return true
}

// settle fires the downstream side effects of a verified claim. Failures are
// logged and never undo the transition.
func (l *Ledger) settle(ctx context.Context, v *models.PaymentVerification) {
	log := l.log.WithField("verification_id", v.ID)

	if l.notifier != nil {
		if err := l.notifier.SendPaymentVerified(ctx, v); err != nil {
			log.Error("Failed to send payment verified email: %v", err)
		}
	}
	if l.booking != nil && (v.ClassDetails != nil || v.PackageDetails != nil) {
		if err := l.booking.Process(ctx, v); err != nil {
			log.Error("Failed to process booking: %v", err)
		}
	}
}

// roundCents drops float noise below a cent so stored amounts compare
// exactly against feed amounts.
func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
