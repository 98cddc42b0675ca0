// Package notify formats events and delivers them to users with bounded
// retries.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// DefaultMaxAttempts bounds delivery attempts per message
const DefaultMaxAttempts = 3

// Transport sends a message to one chat. Failures should be
// *models.TransportError so the router can tell permanent from transient.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Listener observes successful deliveries
type Listener interface {
	OnNotification(ctx context.Context, n models.Notification)
}

// Router delivers events and command replies through a Transport
type Router struct {
	transport       Transport
	listeners       []Listener
	maxAttempts     int
	initialInterval time.Duration
	now             func() time.Time
}

// NewRouter creates a router with default retry settings
func NewRouter(t Transport, listeners ...Listener) *Router {
	return &Router{
		transport:       t,
		listeners:       listeners,
		maxAttempts:     DefaultMaxAttempts,
		initialInterval: 500 * time.Millisecond,
		now:             time.Now,
	}
}

// WithRetry overrides the attempt limit and the first backoff interval
func (r *Router) WithRetry(maxAttempts int, initial time.Duration) *Router {
	if maxAttempts > 0 {
		r.maxAttempts = maxAttempts
	}
	if initial > 0 {
		r.initialInterval = initial
	}
	return r
}

// AddListener registers a delivery observer. Not safe once delivery has started.
func (r *Router) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Notify formats and delivers an event. On exhausted retries the event is
// logged and dropped and the last error returned.
func (r *Router) Notify(ctx context.Context, ev models.Event) error {
	n := models.Notification{
		ID:          uuid.New().String(),
		ChatID:      ev.UserID,
		Ticker:      ev.Ticker,
		Kind:        ev.Kind,
		Fingerprint: ev.Fingerprint,
		Message:     Format(ev),
	}
	return r.deliver(ctx, n)
}

// Reply sends a command reply with the same retry policy
func (r *Router) Reply(ctx context.Context, chatID int64, text string) error {
	n := models.Notification{
		ID:      uuid.New().String(),
		ChatID:  chatID,
		Kind:    "REPLY",
		Message: text,
	}
	return r.send(ctx, &n)
}

func (r *Router) deliver(ctx context.Context, n models.Notification) error {
	if err := r.send(ctx, &n); err != nil {
		log.Error().Err(err).
			Int64("user", n.ChatID).
			Str("ticker", n.Ticker).
			Str("fingerprint", n.Fingerprint).
			Int("attempts", n.Attempts).
			Msg("Delivery failed, dropping notification")
		return err
	}

	log.Info().Int64("user", n.ChatID).Str("ticker", n.Ticker).Str("kind", n.Kind).Msg("Notification delivered")
	for _, l := range r.listeners {
		l.OnNotification(ctx, n)
	}
	return nil
}

func (r *Router) send(ctx context.Context, n *models.Notification) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.maxAttempts-1)), ctx)

	op := func() error {
		n.Attempts++
		err := r.transport.Send(ctx, n.ChatID, n.Message)
		if err == nil {
			return nil
		}
		var terr *models.TransportError
		if errors.As(err, &terr) && !terr.Retryable() {
			return backoff.Permanent(err)
		}
		log.Warn().Err(err).Int64("user", n.ChatID).Int("attempt", n.Attempts).Msg("Send failed, retrying")
		return err
	}

	if err := backoff.Retry(op, b); err != nil {
		return err
	}
	n.DeliveredAt = r.now()
	return nil
}
