package kafka

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-booking/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Output: &bytes.Buffer{}})
}

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	written  []kafka.Message
	attempts int
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.failures > 0 {
		w.failures--
		return fmt.Errorf("leader not available")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type deadLetter struct {
	topic, key, reason string
	value              []byte
}

type fakeSink struct {
	mu      sync.Mutex
	letters []deadLetter
}

func (s *fakeSink) Send(_ context.Context, topic, key string, value []byte, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, deadLetter{topic: topic, key: key, value: value, reason: errorMsg})
	return nil
}

func noBackoff(int) time.Duration { return 0 }

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter(w, quietLogger())

	require.NoError(t, p.Publish(context.Background(), "emails", "email-a@b.co", map[string]string{"event": "email.send"}))

	require.Len(t, w.written, 1)
	assert.Equal(t, "emails", w.written[0].Topic)
	assert.Equal(t, []byte("email-a@b.co"), w.written[0].Key)
	assert.JSONEq(t, `{"event":"email.send"}`, string(w.written[0].Value))
	assert.True(t, p.IsConnected())
}

func TestProducer_RetriesThenSucceeds(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newProducerWithWriter(w, quietLogger())
	p.backoff = noBackoff

	require.NoError(t, p.Publish(context.Background(), "bookings", "k", map[string]int{"n": 1}))
	assert.Equal(t, 3, w.attempts)
	assert.True(t, p.IsConnected())
}

func TestProducer_DeadLettersAfterRetries(t *testing.T) {
	w := &fakeWriter{failures: 10}
	sink := &fakeSink{}
	p := newProducerWithWriter(w, quietLogger()).WithDeadLetters(sink)
	p.backoff = noBackoff

	err := p.Publish(context.Background(), "bookings", "verification-v1", map[string]string{"event": "booking.requested"})
	require.Error(t, err)

	assert.Equal(t, publishAttempts, w.attempts)
	assert.False(t, p.IsConnected())
	require.Len(t, sink.letters, 1)
	assert.Equal(t, "bookings", sink.letters[0].topic)
	assert.Equal(t, "verification-v1", sink.letters[0].key)
	assert.JSONEq(t, `{"event":"booking.requested"}`, string(sink.letters[0].value))
}

func TestProducer_Disabled(t *testing.T) {
	p := NewProducer(nil, quietLogger())

	assert.False(t, p.Enabled())
	assert.False(t, p.IsConnected())
	assert.NoError(t, p.Publish(context.Background(), "emails", "k", "v"))
	assert.NoError(t, p.Close())
}

func TestProducer_MarshalError(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter(w, quietLogger())

	assert.Error(t, p.Publish(context.Background(), "emails", "k", make(chan int)))
	assert.Equal(t, 0, w.attempts)
}

type fakeReader struct {
	msgs   chan kafka.Message
	closed bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumer_HandleMessage(t *testing.T) {
	sink := &fakeSink{}
	c := newConsumerWithReader(&fakeReader{}, sink, quietLogger())

	var handled [][]byte
	c.Register("email.send", func(_ context.Context, payload []byte) error {
		handled = append(handled, payload)
		return nil
	})
	c.Register("booking.requested", func(context.Context, []byte) error {
		return fmt.Errorf("no seats left")
	})

	ctx := context.Background()
	tests := []struct {
		name       string
		value      string
		wantOK     bool
		wantReason string
	}{
		{"routed", `{"event":"email.send","recipient":"a@b.co"}`, true, ""},
		{"invalid json", `{`, false, "Failed to unmarshal JSON"},
		{"missing event", `{"recipient":"a@b.co"}`, false, "does not contain valid event type"},
		{"unknown event", `{"event":"lead.created"}`, false, "Unknown event type: lead.created"},
		{"handler error", `{"event":"booking.requested"}`, false, "Handler error: no seats left"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(sink.letters)
			ok := c.HandleMessage(ctx, kafka.Message{Topic: "emails", Key: []byte("k"), Value: []byte(tt.value)})
			assert.Equal(t, tt.wantOK, ok)

			if tt.wantOK {
				assert.Len(t, sink.letters, before)
				return
			}
			require.Len(t, sink.letters, before+1)
			assert.Contains(t, sink.letters[before].reason, tt.wantReason)
			assert.Equal(t, "emails", sink.letters[before].topic)
		})
	}

	assert.Len(t, handled, 1)
}

func TestConsumer_StartStop(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message)}
	c := newConsumerWithReader(reader, nil, quietLogger())

	got := make(chan string, 1)
	c.Register("email.send", func(_ context.Context, payload []byte) error {
		got <- string(payload)
		return nil
	})

	assert.True(t, c.Start(context.Background()))
	assert.False(t, c.Start(context.Background()))

	reader.msgs <- kafka.Message{Value: []byte(`{"event":"email.send"}`)}
	select {
	case payload := <-got:
		assert.Equal(t, `{"event":"email.send"}`, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not handled")
	}

	require.NoError(t, c.Stop())
	assert.False(t, c.Running())
	assert.True(t, reader.closed)
}

func TestNewConsumer_DisabledWithoutBrokers(t *testing.T) {
	assert.Nil(t, NewConsumer(nil, "group", []string{"emails"}, nil, quietLogger()))
}

func newMockDeadLetterStore(t *testing.T) (*DeadLetterStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewDeadLetterStore(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestDeadLetterStore_Store(t *testing.T) {
	s, mock := newMockDeadLetterStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dlq_messages")).
		WithArgs(sqlmock.AnyArg(), "emails", "k", `{"event":"x"}`, "Unknown event type: x").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Store(context.Background(), "emails", "k", []byte(`{"event":"x"}`), "Unknown event type: x"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadLetterStore_List(t *testing.T) {
	s, mock := newMockDeadLetterStore(t)
	created := time.Date(2025, 11, 13, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM dlq_messages")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "message_id", "topic", "key", "value", "error_message", "retry_count", "resolved", "resolution_notes", "created_at",
		}).AddRow(1, "m-1", "emails", "k", `{"event":"x"}`, "boom", 0, false, nil, created))

	letters, err := s.List(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "m-1", letters[0].MessageID)
	assert.Nil(t, letters[0].ResolutionNotes)
	assert.Equal(t, created, letters[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadLetterStore_Resolve(t *testing.T) {
	s, mock := newMockDeadLetterStore(t)
	query := regexp.QuoteMeta("UPDATE dlq_messages SET resolved = TRUE")

	mock.ExpectExec(query).WithArgs("replayed by hand", "m-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("again", "m-1").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.Resolve(context.Background(), "m-1", "replayed by hand")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Resolve(context.Background(), "m-1", "again")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQ_StoresWithoutBrokers(t *testing.T) {
	s, mock := newMockDeadLetterStore(t)
	d := NewDLQ(nil, "dlq", s, quietLogger())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dlq_messages")).WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, d.Send(context.Background(), "emails", "k", []byte(`{}`), "failed"))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, d.Close())

	assert.NoError(t, NewDLQ(nil, "dlq", nil, quietLogger()).Send(context.Background(), "emails", "k", nil, "failed"))
}

func TestDLQ_PublishesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	d := &DLQ{writer: w, log: quietLogger()}

	require.NoError(t, d.Send(context.Background(), "emails", "k", []byte(`{"event":"x"}`), "boom"))

	require.Len(t, w.written, 1)
	assert.Contains(t, string(w.written[0].Value), `"original_topic":"emails"`)
	assert.Contains(t, string(w.written[0].Value), `"error_message":"boom"`)
}
