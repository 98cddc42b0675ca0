package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

const (
	feedPingInterval = 45 * time.Second
	feedReadTimeout  = 90 * time.Second
	feedClientBuffer = 64
)

var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type feedClient struct {
	conn *websocket.Conn
	out  chan models.Notification
	done chan struct{}
}

// Feed streams delivered notifications to websocket clients and keeps a
// short history for clients that connect later
type Feed struct {
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	history []models.Notification
	limit   int
}

// NewFeed creates a feed that replays up to limit recent notifications
func NewFeed(limit int) *Feed {
	return &Feed{
		clients: make(map[*feedClient]struct{}),
		history: make([]models.Notification, 0, limit),
		limit:   limit,
	}
}

// OnNotification broadcasts a delivered notification. Slow clients drop
// messages rather than block delivery.
func (f *Feed) OnNotification(ctx context.Context, n models.Notification) {
	f.mu.Lock()
	f.history = append(f.history, n)
	if f.limit > 0 && len(f.history) > f.limit {
		f.history = f.history[len(f.history)-f.limit:]
	}
	f.mu.Unlock()

	f.mu.RLock()
	defer f.mu.RUnlock()
	for c := range f.clients {
		select {
		case c.out <- n:
		default:
		}
	}
}

// History returns the buffered notifications, oldest first
func (f *Feed) History() []models.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.Notification, len(f.history))
	copy(out, f.history)
	return out
}

// Clients returns the number of connected clients
func (f *Feed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// ServeHTTP upgrades the request and streams until the client goes away
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	cl := &feedClient{conn: conn, out: make(chan models.Notification, feedClientBuffer), done: make(chan struct{})}
	backlog := f.History()

	f.mu.Lock()
	f.clients[cl] = struct{}{}
	f.mu.Unlock()

	go f.write(cl, backlog)

	_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(cl.done)
	f.mu.Lock()
	delete(f.clients, cl)
	f.mu.Unlock()
}

func (f *Feed) write(cl *feedClient, backlog []models.Notification) {
	ping := time.NewTicker(feedPingInterval)
	defer ping.Stop()

	for _, n := range backlog {
		if err := cl.conn.WriteJSON(n); err != nil {
			return
		}
	}

	for {
		select {
		case n := <-cl.out:
			if err := cl.conn.WriteJSON(n); err != nil {
				return
			}
		case <-ping.C:
			_ = cl.conn.WriteMessage(websocket.PingMessage, nil)
		case <-cl.done:
			return
		}
	}
}
