package utils

import (
	"fmt"
	"math"
	"regexp"
)

// EmailRegex is the accepted shape of a student email.
var EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidationRules contains validation configuration
type ValidationRules struct {
	MaxNameLength int
	MaxAmount     float64
}

// DefaultValidationRules provides default validation constraints
var DefaultValidationRules = ValidationRules{
	MaxNameLength: 100,
	MaxAmount:     100000,
}

// ValidateEmail checks if email format is valid
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("student_email is required")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateName checks if name meets requirements
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("student_name is required")
	}
	if len(name) > DefaultValidationRules.MaxNameLength {
		return fmt.Errorf("student_name must be less than %d characters", DefaultValidationRules.MaxNameLength)
	}
	return nil
}

// ValidateAmount requires a positive amount with at most two decimal places.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("amount must be greater than zero")
	}
	if amount > DefaultValidationRules.MaxAmount {
		return fmt.Errorf("amount must not exceed %.2f", DefaultValidationRules.MaxAmount)
	}
	cents := amount * 100
	if math.Abs(cents-math.Round(cents)) > 1e-6 {
		return fmt.Errorf("amount must have at most two decimal places")
	}
	return nil
}

// ValidateVerificationRequest checks the student-supplied fields of a new claim.
func ValidateVerificationRequest(name, email string, amount float64) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	return ValidateAmount(amount)
}
