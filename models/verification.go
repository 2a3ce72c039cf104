package models

import (
	"strings"
	"time"
)

// VerificationStatus is the lifecycle state of a payment claim.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	// StatusExpired is only ever computed, it is never written to storage.
	StatusExpired VerificationStatus = "expired"
)

// DefaultExpiryWindow is how long a claim stays eligible for matching.
const DefaultExpiryWindow = 24 * time.Hour

// ClassDetails describes a single class a claim pays for.
type ClassDetails struct {
	ClassID         string    `json:"class_id"`
	ClassName       string    `json:"class_name"`
	Instructor      string    `json:"instructor,omitempty"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
}

// PackageDetails describes a class package a claim pays for.
type PackageDetails struct {
	PackageID   string `json:"package_id"`
	PackageName string `json:"package_name"`
	Sessions    int    `json:"sessions"`
	ValidDays   int    `json:"valid_days"`
}

// PaymentVerification is a student's claim that they will pay Amount by an
// out-of-band transfer quoting ConfirmationNumber.
type PaymentVerification struct {
	ID                 string             `json:"id"`
	StudentName        string             `json:"student_name"`
	StudentEmail       string             `json:"student_email"`
	Amount             float64            `json:"amount"`
	ConfirmationNumber string             `json:"confirmation_number"`
	Status             VerificationStatus `json:"status"`
	CreatedAt          time.Time          `json:"created_at"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	ClassDetails       *ClassDetails      `json:"class_details,omitempty"`
	PackageDetails     *PackageDetails    `json:"package_details,omitempty"`
}

// IsExpired reports whether the claim is older than window at now.
func (v *PaymentVerification) IsExpired(now time.Time, window time.Duration) bool {
	return now.Sub(v.CreatedAt) >= window
}

// EffectiveStatus is Status with expiry applied to pending claims.
func (v *PaymentVerification) EffectiveStatus(now time.Time, window time.Duration) VerificationStatus {
	if v.Status == StatusPending && v.IsExpired(now, window) {
		return StatusExpired
	}
	return v.Status
}

// Matches reports whether tx settles this claim: exact amount, confirmation
// number somewhere in the memo, and a completed transfer.
func (v *PaymentVerification) Matches(tx BankTransaction) bool {
	return tx.Status == TransactionCompleted &&
		tx.Amount == v.Amount &&
		v.ConfirmationNumber != "" &&
		strings.Contains(tx.Memo, v.ConfirmationNumber)
}

// VerificationResponse is the API shape of a claim, with expiry resolved.
type VerificationResponse struct {
	PaymentVerification
	Expired         bool               `json:"expired"`
	EffectiveStatus VerificationStatus `json:"effective_status"`
	CreatedAtText   string             `json:"created_at_text"`
}

// ToResponse converts a claim to its response shape as seen at now.
func (v *PaymentVerification) ToResponse(now time.Time, window time.Duration) VerificationResponse {
	return VerificationResponse{
		PaymentVerification: *v,
		Expired:             v.Status == StatusPending && v.IsExpired(now, window),
		EffectiveStatus:     v.EffectiveStatus(now, window),
		CreatedAtText:       FormatDateTime(v.CreatedAt),
	}
}
