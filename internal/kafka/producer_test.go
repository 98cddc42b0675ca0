package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// MockWriter captures written messages
type MockWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *MockWriter) Close() error {
	m.closed = true
	return nil
}

func decodeEvent(t *testing.T, msg kafka.Message) models.BusEvent {
	t.Helper()
	var ev models.BusEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	return ev
}

func TestPublishWatchlistEvent(t *testing.T) {
	w := &MockWriter{}
	p := &Producer{writer: w, topic: "events"}

	err := p.PublishWatchlistEvent(context.Background(), models.BusEvent{
		EventType: models.EventTypeIntervalChanged,
		ChatID:    42,
		Minutes:   5,
	})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	assert.Equal(t, "42", string(w.messages[0].Key))

	ev := decodeEvent(t, w.messages[0])
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, models.EventTypeIntervalChanged, ev.EventType)
	assert.Equal(t, 5, ev.Minutes)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestOnNotification(t *testing.T) {
	w := &MockWriter{}
	p := &Producer{writer: w, topic: "events"}
	delivered := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	p.OnNotification(context.Background(), models.Notification{
		ID:          "n-1",
		ChatID:      42,
		Ticker:      "AAPL",
		Kind:        models.EventKindPriceMove,
		Message:     "AAPL +0.60%",
		Attempts:    1,
		DeliveredAt: delivered,
	})

	require.Len(t, w.messages, 1)
	ev := decodeEvent(t, w.messages[0])
	assert.Equal(t, models.EventTypeNotificationSent, ev.EventType)
	assert.Equal(t, "AAPL", ev.Ticker)
	require.NotNil(t, ev.Notification)
	assert.Equal(t, "n-1", ev.Notification.ID)
	assert.Equal(t, delivered, ev.Timestamp)
}

func TestPublishFailure(t *testing.T) {
	w := &MockWriter{err: errors.New("leader not available")}
	p := &Producer{writer: w, topic: "events"}

	err := p.PublishWatchlistEvent(context.Background(), models.BusEvent{EventType: models.EventTypeTickerAdded, ChatID: 1})
	assert.Error(t, err)

	// listener path swallows the error
	p.OnNotification(context.Background(), models.Notification{ChatID: 1})
	assert.NoError(t, p.Close())
	assert.True(t, w.closed)
}
