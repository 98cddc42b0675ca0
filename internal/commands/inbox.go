package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// Replier sends a reply to a chat
type Replier interface {
	Reply(ctx context.Context, chatID int64, text string) error
}

// Handler turns a message into a reply
type Handler interface {
	Handle(ctx context.Context, msg models.InboundMessage) (string, error)
}

// Inbox feeds inbound messages from any source through the dispatcher and
// sends the reply back to the sender
type Inbox struct {
	handler Handler
	replier Replier
	allowed map[int64]bool
}

// NewInbox creates an inbox. An empty allow list accepts every chat.
func NewInbox(h Handler, r Replier, allowedChatIDs []int64) *Inbox {
	allowed := make(map[int64]bool, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		allowed[id] = true
	}
	return &Inbox{handler: h, replier: r, allowed: allowed}
}

// Deliver handles one message. Only reply delivery failures are returned;
// command failures have already been turned into a reply.
func (i *Inbox) Deliver(ctx context.Context, msg models.InboundMessage) error {
	if len(i.allowed) > 0 && !i.allowed[msg.ChatID] {
		log.Warn().Int64("user", msg.ChatID).Msg("Ignoring message from chat not on the allow list")
		return nil
	}

	log.Info().Int64("user", msg.ChatID).Str("text", msg.Text).Msg("Command received")

	reply, err := i.handler.Handle(ctx, msg)
	if err != nil {
		log.Error().Err(err).Int64("user", msg.ChatID).Msg("Command handling failed")
	}
	if reply == "" {
		return nil
	}
	return i.replier.Reply(ctx, msg.ChatID, reply)
}
