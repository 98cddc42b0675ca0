package telegram

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// Sink receives inbound messages
type Sink interface {
	Deliver(ctx context.Context, msg models.InboundMessage) error
}

// Poller long-polls getUpdates and forwards text messages to a Sink
type Poller struct {
	client  *Client
	sink    Sink
	timeout time.Duration
	retry   time.Duration
	offset  int64
}

// NewPoller creates a poller with the given long-poll timeout
func NewPoller(client *Client, sink Sink, timeout time.Duration) *Poller {
	return &Poller{
		client:  client,
		sink:    sink,
		timeout: timeout,
		retry:   5 * time.Second,
	}
}

// Run polls until ctx is cancelled. Messages are handled in arrival order so
// a user's disambiguation reply always follows the prompt it answers.
func (p *Poller) Run(ctx context.Context) {
	log.Info().Dur("timeout", p.timeout).Msg("Telegram poller started")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Telegram poller stopped")
			return
		}

		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Dur("retry_in", p.retry).Msg("Failed to get Telegram updates")
			select {
			case <-ctx.Done():
			case <-time.After(p.retry):
			}
		}
	}
}

// PollOnce fetches one batch of updates and delivers them
func (p *Poller) PollOnce(ctx context.Context) error {
	updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
	if err != nil {
		return err
	}

	for _, u := range updates {
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.Text == "" {
			continue
		}

		msg := models.InboundMessage{
			ChatID:     u.Message.Chat.ID,
			Text:       u.Message.Text,
			ReceivedAt: time.Unix(u.Message.Date, 0).UTC(),
		}
		if err := p.sink.Deliver(ctx, msg); err != nil {
			log.Error().Err(err).Int64("user", msg.ChatID).Msg("Failed to deliver reply")
		}
	}
	return nil
}
