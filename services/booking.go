package services

import (
	"context"
	"fmt"
	"time"

	"studio-booking/logger"
	"studio-booking/models"
)

// BookingNotifier sends the emails that complete a booking.
type BookingNotifier interface {
	SendClassConfirmation(ctx context.Context, v *models.PaymentVerification, m ClassMeeting) error
	SendPackageActivation(ctx context.Context, v *models.PaymentVerification, validUntil time.Time) error
}

// BookingService allocates the class seat or package a verified claim paid for.
type BookingService struct {
	meetings *MeetingProvisioner
	notifier BookingNotifier
	log      *logger.Logger
}

func NewBookingService(meetings *MeetingProvisioner, notifier BookingNotifier, log *logger.Logger) *BookingService {
	return &BookingService{
		meetings: meetings,
		notifier: notifier,
		log:      logger.OrDefault(log).WithField("component", "booking"),
	}
}

func (s *BookingService) Process(ctx context.Context, v *models.PaymentVerification) error {
	switch {
	case v.ClassDetails != nil:
		meeting, err := s.meetings.Provision(v.ClassDetails)
		if err != nil {
			return fmt.Errorf("provisioning class meeting: %w", err)
		}
		s.log.Info("Class %s booked for %s, meeting %s", v.ClassDetails.ClassID, v.StudentEmail, meeting.MeetingID)
		return s.notifier.SendClassConfirmation(ctx, v, meeting)

	case v.PackageDetails != nil:
		validUntil := packageValidUntil(v)
		s.log.Info("Package %s activated for %s until %s", v.PackageDetails.PackageID, v.StudentEmail, validUntil.Format(models.ShortDate))
		return s.notifier.SendPackageActivation(ctx, v, validUntil)

	default:
		s.log.Debug("Verification %s has nothing to book", v.ID)
		return nil
	}
}

// packageValidUntil counts validity from the moment the payment was verified.
func packageValidUntil(v *models.PaymentVerification) time.Time {
	start := v.CreatedAt
	if v.VerifiedAt != nil {
		start = *v.VerifiedAt
	}
	return start.AddDate(0, 0, v.PackageDetails.ValidDays)
}
