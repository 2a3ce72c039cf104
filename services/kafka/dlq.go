package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segmentio/kafka-go"

	"studio-booking/logger"
)

// DeadLetterSink receives messages that could not be published or processed.
type DeadLetterSink interface {
	Send(ctx context.Context, topic, key string, value []byte, errorMsg string) error
}

// DeadLetter is a stored failed message.
type DeadLetter struct {
	ID              int       `db:"id" json:"id"`
	MessageID       string    `db:"message_id" json:"message_id"`
	Topic           string    `db:"topic" json:"topic"`
	Key             string    `db:"key" json:"key"`
	Value           string    `db:"value" json:"value"`
	ErrorMessage    string    `db:"error_message" json:"error_message"`
	RetryCount      int       `db:"retry_count" json:"retry_count"`
	Resolved        bool      `db:"resolved" json:"resolved"`
	ResolutionNotes *string   `db:"resolution_notes" json:"resolution_notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// DeadLetterStore keeps dead letters in the dlq_messages table.
type DeadLetterStore struct {
	db *sqlx.DB
}

func NewDeadLetterStore(db *sqlx.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Store inserts a failed message.
func (s *DeadLetterStore) Store(ctx context.Context, topic, key string, value []byte, errorMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dlq_messages (message_id, topic, key, value, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (message_id) DO NOTHING`,
		uuid.New().String(), topic, key, string(value), errorMsg)
	if err != nil {
		return fmt.Errorf("error storing DLQ message: %w", err)
	}
	return nil
}

// List returns unresolved dead letters, newest first.
func (s *DeadLetterStore) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	var out []DeadLetter
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, message_id, topic, key, value, error_message, retry_count, resolved, resolution_notes, created_at
		FROM dlq_messages
		WHERE resolved = FALSE
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying DLQ messages: %w", err)
	}
	return out, nil
}

// Resolve marks a dead letter handled. It reports false if no unresolved
// message has that id.
func (s *DeadLetterStore) Resolve(ctx context.Context, messageID, notes string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE dlq_messages SET resolved = TRUE, resolution_notes = $1 WHERE message_id = $2 AND resolved = FALSE`,
		notes, messageID)
	if err != nil {
		return false, fmt.Errorf("error resolving DLQ message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// DLQ publishes failed messages to the dead letter topic and always keeps a
// copy in the database when one is configured.
type DLQ struct {
	mu     sync.Mutex
	writer messageWriter
	store  *DeadLetterStore
	log    *logger.Logger
}

// NewDLQ builds a DLQ. Either side may be absent: no brokers skips the
// topic, a nil store skips persistence.
func NewDLQ(brokers []string, topic string, store *DeadLetterStore, log *logger.Logger) *DLQ {
	d := &DLQ{store: store, log: logger.OrDefault(log).WithField("component", "dlq")}
	if len(brokers) > 0 && topic != "" {
		d.writer = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			WriteTimeout:           10 * time.Second,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}
	return d
}

type dlqEnvelope struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
	ErrorMessage  string `json:"error_message"`
	Timestamp     int64  `json:"timestamp"`
}

func (d *DLQ) Send(ctx context.Context, topic, key string, value []byte, errorMsg string) error {
	d.mu.Lock()
	writer := d.writer
	d.mu.Unlock()

	if writer != nil {
		payload, err := json.Marshal(dlqEnvelope{
			OriginalTopic: topic,
			OriginalKey:   key,
			OriginalValue: string(value),
			ErrorMessage:  errorMsg,
			Timestamp:     time.Now().Unix(),
		})
		if err == nil {
			writeCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err = writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(key), Value: payload})
			cancel()
		}
		if err != nil {
			d.log.Warn("DLQ publish failed, storing to DB only: %v", err)
			if strings.Contains(strings.ToLower(err.Error()), "unknown topic") {
				d.mu.Lock()
				d.writer = nil
				d.mu.Unlock()
			}
		}
	}

	if d.store == nil {
		return nil
	}
	return d.store.Store(ctx, topic, key, value, errorMsg)
}

func (d *DLQ) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer != nil {
		return d.writer.Close()
	}
	return nil
}
