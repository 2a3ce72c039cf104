package kafka

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"studio-booking/logger"
)

const (
	publishAttempts = 3
	publishTimeout  = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON events. A Producer built without brokers is
// disabled and drops messages, which keeps Kafka optional.
type Producer struct {
	mu        sync.Mutex
	writer    messageWriter
	connected bool
	dlq       DeadLetterSink
	backoff   func(attempt int) time.Duration
	log       *logger.Logger
}

// NewProducer creates a writer for brokers. An empty broker list yields a
// disabled producer.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	p := &Producer{
		backoff: exponentialBackoff,
		log:     logger.OrDefault(log).WithField("component", "kafka-producer"),
	}

	if len(brokers) == 0 {
		p.log.Info("Kafka is disabled (KAFKA_BROKERS is empty)")
		return p
	}

	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		Async:                  false,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	p.connected = true
	p.log.Info("Kafka producer initialized. Brokers=%v", brokers)
	return p
}

func newProducerWithWriter(w messageWriter, log *logger.Logger) *Producer {
	return &Producer{
		writer:    w,
		connected: true,
		backoff:   exponentialBackoff,
		log:       logger.OrDefault(log),
	}
}

// WithDeadLetters routes messages that exhaust their retries to sink.
func (p *Producer) WithDeadLetters(sink DeadLetterSink) *Producer {
	p.dlq = sink
	return p
}

func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// Enabled reports whether the producer has brokers to write to.
func (p *Producer) Enabled() bool {
	return p.writer != nil
}

// Publish marshals value to JSON and publishes it with exponential backoff.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	if p.writer == nil {
		p.log.Debug("Kafka producer disabled, dropping message for topic %s", topic)
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		p.log.Error("Error marshaling Kafka message: %v", err)
		return err
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	var lastErr error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := p.writer.WriteMessages(writeCtx, msg)
		cancel()

		if err == nil {
			p.setConnected(true)
			return nil
		}

		lastErr = err
		p.setConnected(false)
		p.log.Warn("Kafka publish attempt %d/%d to %s failed: %v", attempt+1, publishAttempts, topic, err)

		if attempt < publishAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}
	}

	p.log.Error("Kafka publish to %s failed after %d attempts: %v", topic, publishAttempts, lastErr)
	if p.dlq != nil {
		if dlqErr := p.dlq.Send(ctx, topic, key, payload, lastErr.Error()); dlqErr != nil {
			p.log.Error("Failed to dead-letter message: %v", dlqErr)
		}
	}
	return lastErr
}

func (p *Producer) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// IsConnected returns true if the last publish succeeded.
func (p *Producer) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && p.writer != nil
}

// Close gracefully closes the Kafka producer
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// EnsureTopics creates topics in the background, retrying with backoff
// while brokers come up.
func EnsureTopics(brokers []string, topics []string, log *logger.Logger) {
	if len(brokers) == 0 {
		return
	}
	log = logger.OrDefault(log)

	go func() {
		const maxRetries = 5
		for attempt := 0; attempt < maxRetries; attempt++ {
			time.Sleep(exponentialBackoff(attempt))

			conn, err := kafka.Dial("tcp", brokers[0])
			if err != nil {
				if attempt == maxRetries-1 {
					log.Warn("Could not connect to Kafka broker for topic creation after %d attempts: %v", maxRetries, err)
				}
				continue
			}

			ready := 0
			for _, topic := range topics {
				err := conn.CreateTopics(kafka.TopicConfig{
					Topic:             topic,
					NumPartitions:     1,
					ReplicationFactor: 1,
				})
				if err == nil || strings.Contains(err.Error(), "already exists") {
					ready++
				}
			}
			conn.Close()

			if ready == len(topics) {
				log.Info("Kafka topics ready: %v", topics)
				return
			}
		}
	}()
}
