package services

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"studio-booking/config"
	"studio-booking/logger"
)

// Email is one outgoing HTML message with an optional file attachment.
type Email struct {
	To         string `json:"recipient"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Attachment string `json:"attachment,omitempty"`
}

// Mailer dispatches an Email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

type smtpDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers mail directly over SMTP.
type SMTPSender struct {
	from   string
	dialer smtpDialer
	log    *logger.Logger
}

// NewSMTPSender validates the SMTP settings and builds a sender.
func NewSMTPSender(cfg config.Config, log *logger.Logger) (*SMTPSender, error) {
	from := cfg.EmailFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	if from == "" {
		return nil, fmt.Errorf("email sender not configured (set EMAIL_FROM or SMTP_USER)")
	}
	if cfg.SMTPUser == "" || cfg.SMTPPass == "" {
		return nil, fmt.Errorf("smtp credentials not configured (set SMTP_USER and SMTP_PASS)")
	}

	return &SMTPSender{
		from:   from,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		log:    logger.OrDefault(log),
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.To == "" {
		return fmt.Errorf("email recipient is required")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", e.To)
	m.SetHeader("Subject", e.Subject)
	m.SetBody("text/html", e.Body)
	if e.Attachment != "" {
		m.Attach(e.Attachment)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		s.log.Error("Failed to send email to %s: %v", e.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.log.Info("Email sent to %s: %s", e.To, e.Subject)
	return nil
}
