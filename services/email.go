package services

import (
	"context"
	"fmt"
	"html"
	"time"

	"studio-booking/logger"
	"studio-booking/models"
)

// InstructionsRenderer produces a printable payment instruction sheet and
// returns its file path.
type InstructionsRenderer interface {
	Render(v *models.PaymentVerification, deadline time.Time) (string, error)
}

// BankDetails are printed on payment instructions.
type BankDetails struct {
	AccountName   string
	AccountNumber string
	RoutingNumber string
}

// EmailNotifier renders the studio's transactional emails and hands them to a Mailer.
type EmailNotifier struct {
	mailer       Mailer
	instructions InstructionsRenderer
	studio       string
	bank         BankDetails
	expiry       time.Duration
	log          *logger.Logger
}

// NewEmailNotifier builds a notifier. instructions may be nil to skip the PDF.
func NewEmailNotifier(mailer Mailer, instructions InstructionsRenderer, studio string, bank BankDetails, expiry time.Duration, log *logger.Logger) *EmailNotifier {
	if expiry <= 0 {
		expiry = models.DefaultExpiryWindow
	}
	return &EmailNotifier{
		mailer:       mailer,
		instructions: instructions,
		studio:       studio,
		bank:         bank,
		expiry:       expiry,
		log:          logger.OrDefault(log),
	}
}

const emailStyle = `
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: %s; color: white; padding: 20px; text-align: center; border-radius: 5px; }
        .content { background-color: #f9f9f9; padding: 20px; margin-top: 20px; border-radius: 5px; }
        .details { background-color: #eef6f0; padding: 15px; margin: 15px 0; border-left: 4px solid %s; }
        .code { font-size: 20px; font-weight: bold; letter-spacing: 2px; }
    </style>`

func page(color, title, content string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>%s
</head>
<body>
    <div class="container">
        <div class="header"><h2>%s</h2></div>
        <div class="content">%s
        </div>
    </div>
</body>
</html>`, fmt.Sprintf(emailStyle, color, color), html.EscapeString(title), content)
}

// SendPaymentInstructions emails the transfer instructions for a new claim.
func (n *EmailNotifier) SendPaymentInstructions(ctx context.Context, v *models.PaymentVerification) error {
	deadline := v.CreatedAt.Add(n.expiry)

	content := fmt.Sprintf(`
            <p>Dear <strong>%s</strong>,</p>
            <p>Thank you for booking with %s. To confirm your booking, please send a bank transfer with the details below.</p>
            <div class="details">
                <p><strong>Amount:</strong> $%.2f</p>
                <p><strong>Confirmation number:</strong> <span class="code">%s</span></p>
                <p><strong>Account name:</strong> %s</p>
                <p><strong>Account number:</strong> %s</p>
                <p><strong>Routing number:</strong> %s</p>
                <p><strong>For:</strong> %s</p>
            </div>
            <p>Include the confirmation number in the transfer memo and send the exact amount, otherwise we cannot match your payment.</p>
            <p>Please complete the transfer before <strong>%s</strong>. We confirm payments automatically and will email you once yours arrives.</p>
            <p>Namaste,<br/>%s</p>`,
		html.EscapeString(v.StudentName),
		html.EscapeString(n.studio),
		v.Amount,
		v.ConfirmationNumber,
		html.EscapeString(n.bank.AccountName),
		html.EscapeString(n.bank.AccountNumber),
		html.EscapeString(n.bank.RoutingNumber),
		html.EscapeString(purchaseDescription(v)),
		models.FormatDateTime(deadline),
		html.EscapeString(n.studio),
	)

	email := Email{
		To:      v.StudentEmail,
		Subject: fmt.Sprintf("Payment instructions - %s", v.ConfirmationNumber),
		Body:    page("#6a8caf", "Complete Your Booking", content),
	}

	if n.instructions != nil {
		path, err := n.instructions.Render(v, deadline)
		if err != nil {
			n.log.Warn("Could not render instruction sheet for %s, sending without it: %v", v.ID, err)
		} else {
			email.Attachment = path
		}
	}

	return n.mailer.Send(ctx, email)
}

// SendPaymentVerified tells the student their transfer was matched.
func (n *EmailNotifier) SendPaymentVerified(ctx context.Context, v *models.PaymentVerification) error {
	verifiedAt := v.CreatedAt
	if v.VerifiedAt != nil {
		verifiedAt = *v.VerifiedAt
	}

	content := fmt.Sprintf(`
            <p>Dear <strong>%s</strong>,</p>
            <p>We have received your payment. Your booking is confirmed.</p>
            <div class="details">
                <p><strong>Amount:</strong> $%.2f</p>
                <p><strong>Confirmation number:</strong> %s</p>
                <p><strong>Received:</strong> %s</p>
                <p><strong>For:</strong> %s</p>
            </div>
            <p>Namaste,<br/>%s</p>`,
		html.EscapeString(v.StudentName),
		v.Amount,
		v.ConfirmationNumber,
		models.FormatDateTime(verifiedAt),
		html.EscapeString(purchaseDescription(v)),
		html.EscapeString(n.studio),
	)

	return n.mailer.Send(ctx, Email{
		To:      v.StudentEmail,
		Subject: fmt.Sprintf("Payment received - %s", v.ConfirmationNumber),
		Body:    page("#4CAF50", "Payment Verified", content),
	})
}

// SendClassConfirmation sends the join details of a booked online class.
func (n *EmailNotifier) SendClassConfirmation(ctx context.Context, v *models.PaymentVerification, m ClassMeeting) error {
	class := v.ClassDetails
	content := fmt.Sprintf(`
            <p>Dear <strong>%s</strong>,</p>
            <p>You are booked into <strong>%s</strong>%s.</p>
            <div class="details">
                <p><strong>Date:</strong> %s</p>
                <p><strong>Time:</strong> %s - %s</p>
                <p><strong>Meeting ID:</strong> %s</p>
                <p><strong>Passcode:</strong> %s</p>
                <p><strong>Join link:</strong> <a href="%s">%s</a></p>
            </div>
            <p>Please join a few minutes early and have your mat ready.</p>
            <p>Namaste,<br/>%s</p>`,
		html.EscapeString(v.StudentName),
		html.EscapeString(class.ClassName),
		instructorSuffix(class.Instructor),
		models.FormatDate(m.StartsAt),
		models.FormatTime(m.StartsAt),
		models.FormatTime(m.EndsAt),
		m.DisplayID(),
		m.Passcode,
		m.JoinURL,
		m.JoinURL,
		html.EscapeString(n.studio),
	)

	return n.mailer.Send(ctx, Email{
		To:      v.StudentEmail,
		Subject: fmt.Sprintf("Class booked: %s on %s", class.ClassName, models.FormatDateTime(m.StartsAt)),
		Body:    page("#4CAF50", "Class Confirmed", content),
	})
}

// SendPackageActivation confirms a class package and its validity.
func (n *EmailNotifier) SendPackageActivation(ctx context.Context, v *models.PaymentVerification, validUntil time.Time) error {
	pkg := v.PackageDetails
	content := fmt.Sprintf(`
            <p>Dear <strong>%s</strong>,</p>
            <p>Your <strong>%s</strong> package is now active.</p>
            <div class="details">
                <p><strong>Sessions:</strong> %d</p>
                <p><strong>Valid until:</strong> %s</p>
            </div>
            <p>Book your sessions any time on our schedule.</p>
            <p>Namaste,<br/>%s</p>`,
		html.EscapeString(v.StudentName),
		html.EscapeString(pkg.PackageName),
		pkg.Sessions,
		models.FormatDate(validUntil),
		html.EscapeString(n.studio),
	)

	return n.mailer.Send(ctx, Email{
		To:      v.StudentEmail,
		Subject: fmt.Sprintf("Your %s package is active", pkg.PackageName),
		Body:    page("#4CAF50", "Package Activated", content),
	})
}

func instructorSuffix(name string) string {
	if name == "" {
		return ""
	}
	return " with " + html.EscapeString(name)
}

func purchaseDescription(v *models.PaymentVerification) string {
	switch {
	case v.ClassDetails != nil:
		return fmt.Sprintf("%s on %s", v.ClassDetails.ClassName, models.FormatDateTime(v.ClassDetails.StartsAt))
	case v.PackageDetails != nil:
		return fmt.Sprintf("%s (%d sessions)", v.PackageDetails.PackageName, v.PackageDetails.Sessions)
	default:
		return "Studio booking"
	}
}
