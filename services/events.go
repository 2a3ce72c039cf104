package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studio-booking/models"
)

// Event names carried in the "event" field of queued messages.
const (
	EventEmailSend        = "email.send"
	EventBookingRequested = "booking.requested"
)

// Publisher queues a JSON-encoded value on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// EmailEvent is the queued form of an Email.
type EmailEvent struct {
	Event     string    `json:"event"`
	EventID   string    `json:"event_id"`
	Email               // flattened: recipient, subject, body, attachment
	Timestamp time.Time `json:"timestamp"`
}

// BookingRequestedEvent asks the booking processor to allocate what a
// verified claim paid for.
type BookingRequestedEvent struct {
	Event        string                     `json:"event"`
	EventID      string                     `json:"event_id"`
	Verification models.PaymentVerification `json:"verification"`
	Timestamp    time.Time                  `json:"timestamp"`
}

// QueuedMailer publishes emails for a consumer to deliver.
type QueuedMailer struct {
	publisher Publisher
	topic     string
}

func NewQueuedMailer(publisher Publisher, topic string) *QueuedMailer {
	return &QueuedMailer{publisher: publisher, topic: topic}
}

func (q *QueuedMailer) Send(ctx context.Context, e Email) error {
	evt := EmailEvent{
		Event:     EventEmailSend,
		EventID:   uuid.New().String(),
		Email:     e,
		Timestamp: time.Now().UTC(),
	}
	if err := q.publisher.Publish(ctx, q.topic, "email-"+e.To, evt); err != nil {
		return fmt.Errorf("failed to queue email: %w", err)
	}
	return nil
}

// QueuedBookingProcessor hands verified claims to the booking consumer.
type QueuedBookingProcessor struct {
	publisher Publisher
	topic     string
}

func NewQueuedBookingProcessor(publisher Publisher, topic string) *QueuedBookingProcessor {
	return &QueuedBookingProcessor{publisher: publisher, topic: topic}
}

func (q *QueuedBookingProcessor) Process(ctx context.Context, v *models.PaymentVerification) error {
	evt := BookingRequestedEvent{
		Event:        EventBookingRequested,
		EventID:      uuid.New().String(),
		Verification: *v,
		Timestamp:    time.Now().UTC(),
	}
	if err := q.publisher.Publish(ctx, q.topic, "verification-"+v.ID, evt); err != nil {
		return fmt.Errorf("failed to queue booking: %w", err)
	}
	return nil
}

// EmailEventHandler decodes queued email events and delivers them with m.
func EmailEventHandler(m Mailer) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var evt EmailEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("error unmarshaling email event: %w", err)
		}
		if evt.To == "" {
			return fmt.Errorf("invalid recipient in email event")
		}
		if evt.Subject == "" {
			return fmt.Errorf("invalid subject in email event")
		}
		if evt.Body == "" {
			return fmt.Errorf("invalid body in email event")
		}
		return m.Send(ctx, evt.Email)
	}
}

// BookingEventHandler decodes booking events and runs them through p.
func BookingEventHandler(p BookingProcessor) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var evt BookingRequestedEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("error unmarshaling booking event: %w", err)
		}
		if evt.Verification.ID == "" {
			return fmt.Errorf("booking event has no verification")
		}
		return p.Process(ctx, &evt.Verification)
	}
}
