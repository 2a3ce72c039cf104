package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"studio-booking/logger"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// HandlerFunc processes the raw JSON payload of one event.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Consumer reads events from a consumer group and routes them by their
// "event" field. Messages that cannot be handled go to the dead letter sink.
type Consumer struct {
	reader   messageReader
	dlq      DeadLetterSink
	log      *logger.Logger
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewConsumer returns nil when no brokers are configured.
func NewConsumer(brokers []string, groupID string, topics []string, dlq DeadLetterSink, log *logger.Logger) *Consumer {
	log = logger.OrDefault(log).WithField("component", "kafka-consumer")
	if len(brokers) == 0 {
		log.Info("Kafka consumer is disabled (KAFKA_BROKERS is empty)")
		return nil
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:          brokers,
		GroupID:          groupID,
		GroupTopics:      topics,
		StartOffset:      kafka.LastOffset,
		CommitInterval:   time.Second,
		MaxBytes:         10e6,
		SessionTimeout:   20 * time.Second,
		ReadBackoffMin:   100 * time.Millisecond,
		ReadBackoffMax:   1 * time.Second,
		QueueCapacity:    100,
		RebalanceTimeout: 60 * time.Second,
	})

	log.Info("Kafka consumer initialized. Brokers=%v, Topics=%v, ConsumerGroup=%s", brokers, topics, groupID)
	return newConsumerWithReader(reader, dlq, log)
}

func newConsumerWithReader(r messageReader, dlq DeadLetterSink, log *logger.Logger) *Consumer {
	return &Consumer{
		reader:   r,
		dlq:      dlq,
		log:      logger.OrDefault(log),
		handlers: make(map[string]HandlerFunc),
	}
}

// Register routes events named event to h.
func (c *Consumer) Register(event string, h HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
	c.log.Info("Handler registered for %s", event)
}

// Start consumes in a background goroutine until Stop or ctx is done.
func (c *Consumer) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.log.Warn("Consumer already running")
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.consume(runCtx, c.done)
	c.log.Info("Kafka consumer started")
	return true
}

// Running reports whether the consume loop is active.
func (c *Consumer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Consumer) consume(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			if strings.Contains(err.Error(), "Group Coordinator Not Available") {
				time.Sleep(500 * time.Millisecond)
				continue
			}
			c.log.Warn("Kafka read failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.HandleMessage(ctx, msg)
	}
}

// HandleMessage processes one message and reports whether it succeeded.
// Failed messages are dead-lettered.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafka.Message) bool {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		c.log.Error("Error unmarshaling message from %s: %v", msg.Topic, err)
		c.deadLetter(ctx, msg, "Failed to unmarshal JSON: "+err.Error())
		return false
	}
	if envelope.Event == "" {
		c.log.Warn("Message on %s does not contain event type", msg.Topic)
		c.deadLetter(ctx, msg, "Message does not contain valid event type")
		return false
	}

	c.mu.Lock()
	handler, ok := c.handlers[envelope.Event]
	c.mu.Unlock()
	if !ok {
		c.log.Warn("Unknown event type: %s", envelope.Event)
		c.deadLetter(ctx, msg, "Unknown event type: "+envelope.Event)
		return false
	}

	if err := handler(ctx, msg.Value); err != nil {
		c.log.Error("Error handling event type %s: %v", envelope.Event, err)
		c.deadLetter(ctx, msg, "Handler error: "+err.Error())
		return false
	}
	return true
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, reason string) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Send(ctx, msg.Topic, string(msg.Key), msg.Value, reason); err != nil {
		c.log.Error("Failed to send message to DLQ: %v", err)
	}
}

// Stop ends the consume loop and closes the reader. It is safe to call when
// the consumer is not running.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if err := c.reader.Close(); err != nil {
		c.log.Error("Error closing consumer: %v", err)
		return err
	}
	c.log.Info("Kafka consumer stopped")
	return nil
}
