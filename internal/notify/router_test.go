package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

type fakeTransport struct {
	mu       sync.Mutex
	failures []error
	sent     []string
	calls    int
}

func (f *fakeTransport) Send(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	f.sent = append(f.sent, text)
	return nil
}

type recordingListener struct {
	mu   sync.Mutex
	seen []models.Notification
}

func (l *recordingListener) OnNotification(ctx context.Context, n models.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, n)
}

func priceEvent() models.Event {
	return models.Event{
		UserID:        42,
		Ticker:        "AAPL",
		Kind:          models.EventKindPriceMove,
		Fingerprint:   "fp",
		Quote:         &models.Quote{Ticker: "AAPL", Price: decimal.RequireFromString("100.6")},
		PreviousPrice: decimal.RequireFromString("100"),
		ChangePercent: decimal.RequireFromString("0.6"),
	}
}

func transient() error {
	return &models.TransportError{ChatID: 42, StatusCode: 502, Err: errors.New("bad gateway")}
}

func TestNotifyDelivers(t *testing.T) {
	tr := &fakeTransport{}
	l := &recordingListener{}
	r := NewRouter(tr, l).WithRetry(3, time.Millisecond)

	require.NoError(t, r.Notify(context.Background(), priceEvent()))
	require.Len(t, tr.sent, 1)
	assert.Contains(t, tr.sent[0], "<b>AAPL</b> +0.60%")

	require.Len(t, l.seen, 1)
	n := l.seen[0]
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, int64(42), n.ChatID)
	assert.Equal(t, "fp", n.Fingerprint)
	assert.Equal(t, 1, n.Attempts)
	assert.False(t, n.DeliveredAt.IsZero())
}

func TestNotifyRetriesTransientFailures(t *testing.T) {
	tr := &fakeTransport{failures: []error{transient(), transient()}}
	l := &recordingListener{}
	r := NewRouter(tr, l).WithRetry(3, time.Millisecond)

	require.NoError(t, r.Notify(context.Background(), priceEvent()))
	assert.Equal(t, 3, tr.calls)
	require.Len(t, l.seen, 1)
	assert.Equal(t, 3, l.seen[0].Attempts)
}

func TestNotifyDropsAfterMaxAttempts(t *testing.T) {
	tr := &fakeTransport{failures: []error{transient(), transient(), transient(), transient()}}
	l := &recordingListener{}
	r := NewRouter(tr, l).WithRetry(3, time.Millisecond)

	err := r.Notify(context.Background(), priceEvent())
	var terr *models.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 3, tr.calls)
	assert.Empty(t, l.seen)
}

func TestNotifyDoesNotRetryPermanentFailures(t *testing.T) {
	forbidden := &models.TransportError{ChatID: 42, StatusCode: 403, Err: errors.New("bot was blocked by the user")}
	tr := &fakeTransport{failures: []error{forbidden}}
	r := NewRouter(tr).WithRetry(3, time.Millisecond)

	err := r.Notify(context.Background(), priceEvent())
	assert.ErrorIs(t, err, forbidden)
	assert.Equal(t, 1, tr.calls)
}

func TestReplySkipsListeners(t *testing.T) {
	tr := &fakeTransport{}
	l := &recordingListener{}
	r := NewRouter(tr, l)

	require.NoError(t, r.Reply(context.Background(), 7, "pong"))
	assert.Equal(t, []string{"pong"}, tr.sent)
	assert.Empty(t, l.seen)
}

func TestFormat(t *testing.T) {
	t.Run("price drop", func(t *testing.T) {
		ev := priceEvent()
		ev.ChangePercent = decimal.RequireFromString("-1.25")
		ev.Quote.Price = decimal.RequireFromString("98.75")
		msg := Format(ev)
		assert.True(t, strings.HasPrefix(msg, "📉 <b>AAPL</b> -1.25%"))
		assert.Contains(t, msg, "Price: <b>98.75</b> (was 100.00)")
	})

	t.Run("news escapes html", func(t *testing.T) {
		ev := models.Event{
			Ticker: "T&T",
			Kind:   models.EventKindNews,
			Article: &models.NewsArticle{
				Headline: "Q3 <beats> estimates",
				URL:      "https://example.com/a?b=1&c=2",
				Source:   "Reuters",
				Material: true,
			},
		}
		msg := Format(ev)
		assert.Contains(t, msg, "<b>T&amp;T</b> ⚠️")
		assert.Contains(t, msg, "Q3 &lt;beats&gt; estimates")
		assert.Contains(t, msg, `<a href="https://example.com/a?b=1&amp;c=2">Reuters</a>`)
	})

	t.Run("long summary is truncated", func(t *testing.T) {
		ev := models.Event{
			Ticker:  "AAPL",
			Kind:    models.EventKindNews,
			Article: &models.NewsArticle{Headline: "h", Summary: strings.Repeat("x", 400)},
		}
		assert.Contains(t, Format(ev), strings.Repeat("x", 300)+"…")
	})
}
