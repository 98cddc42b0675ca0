package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes notification and watchlist events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishWatchlistEvent publishes a ticker added/removed or interval change
func (p *Producer) PublishWatchlistEvent(ctx context.Context, ev models.BusEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, ev)
}

// PublishNotification publishes a delivered notification
func (p *Producer) PublishNotification(ctx context.Context, n models.Notification) error {
	ev := models.BusEvent{
		ID:           uuid.New().String(),
		EventType:    models.EventTypeNotificationSent,
		ChatID:       n.ChatID,
		Ticker:       n.Ticker,
		Notification: &n,
		Timestamp:    n.DeliveredAt.UTC(),
	}
	return p.publish(ctx, ev)
}

// OnNotification publishes deliveries as they happen. Failures are logged
// so the bus never blocks alerting.
func (p *Producer) OnNotification(ctx context.Context, n models.Notification) {
	if err := p.PublishNotification(ctx, n); err != nil {
		log.Warn().Err(err).Int64("user", n.ChatID).Str("ticker", n.Ticker).Msg("Failed to publish notification event")
	}
}

// publish keys messages by chat id so one user's events stay ordered
func (p *Producer) publish(ctx context.Context, event models.BusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.ChatID, 10)),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
