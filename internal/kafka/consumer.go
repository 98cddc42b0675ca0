package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stock-watch-agent/internal/dedup"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// EventTypeCommandReceived marks a chat command relayed over the bus
const EventTypeCommandReceived = "COMMAND_RECEIVED"

// Sink receives inbound commands
type Sink interface {
	Deliver(ctx context.Context, msg models.InboundMessage) error
}

// CommandEvent is a chat command published by another service, such as a
// web dashboard or a second chat gateway
type CommandEvent struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	ChatID    int64     `json:"chat_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Consumer reads command events from Kafka and forwards them to a Sink.
// Kafka redelivers after a crash, so event ids are recorded in the
// fingerprint store and repeats are skipped.
type Consumer struct {
	reader *kafka.Reader
	sink   Sink
	seen   dedup.Store
	now    func() time.Time
}

// NewConsumer creates a new Kafka consumer for command events
func NewConsumer(brokers []string, topic, groupID string, sink Sink, seen dedup.Store) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader: reader,
		sink:   sink,
		seen:   seen,
		now:    time.Now,
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting Kafka command consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Kafka command consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				log.Error().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("Error processing message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	log.Debug().Int("partition", msg.Partition).Int64("offset", msg.Offset).Str("key", string(msg.Key)).Msg("Received message")

	var event CommandEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal command event: %w", err)
	}

	if event.EventType != EventTypeCommandReceived {
		log.Debug().Str("event_type", event.EventType).Msg("Ignoring event type")
		return nil
	}

	text := strings.TrimSpace(event.Text)
	if event.ChatID == 0 || text == "" {
		return fmt.Errorf("command event %s is missing chat_id or text", event.ID)
	}

	if event.ID != "" && c.seen != nil {
		fresh, err := c.seen.CheckAndInsert(ctx, "cmd:"+event.ID, c.now())
		if err != nil {
			return fmt.Errorf("failed to check for duplicate command: %w", err)
		}
		if !fresh {
			log.Info().Str("id", event.ID).Msg("Command already handled, skipping")
			return nil
		}
	}

	receivedAt := event.Timestamp
	if receivedAt.IsZero() {
		receivedAt = c.now()
	}

	inbound := models.InboundMessage{ChatID: event.ChatID, Text: text, ReceivedAt: receivedAt.UTC()}
	if err := c.sink.Deliver(ctx, inbound); err != nil {
		return fmt.Errorf("failed to deliver command: %w", err)
	}
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
