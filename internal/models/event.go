package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event kind constants
const (
	EventKindPriceMove = "PRICE_MOVE"
	EventKindNews      = "NEWS"
)

// Bus event type constants
const (
	EventTypeNotificationSent = "NOTIFICATION_SENT"
	EventTypeTickerAdded      = "TICKER_ADDED"
	EventTypeTickerRemoved    = "TICKER_REMOVED"
	EventTypeIntervalChanged  = "INTERVAL_CHANGED"
)

// Event is a candidate notification produced by the detector
type Event struct {
	UserID        int64           `json:"user_id"`
	Ticker        string          `json:"ticker"`
	Kind          string          `json:"kind"`
	Fingerprint   string          `json:"fingerprint"`
	Quote         *Quote          `json:"quote,omitempty"`
	PreviousPrice decimal.Decimal `json:"previous_price,omitempty"`
	ChangePercent decimal.Decimal `json:"change_percent,omitempty"`
	Article       *NewsArticle    `json:"article,omitempty"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// Notification is a delivered message
type Notification struct {
	ID          string    `json:"id"`
	ChatID      int64     `json:"chat_id"`
	Ticker      string    `json:"ticker"`
	Kind        string    `json:"kind"`
	Fingerprint string    `json:"fingerprint"`
	Message     string    `json:"message"`
	Attempts    int       `json:"attempts"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// BusEvent is the envelope published to the event bus
type BusEvent struct {
	ID           string        `json:"id"`
	EventType    string        `json:"event_type"`
	ChatID       int64         `json:"chat_id"`
	Ticker       string        `json:"ticker,omitempty"`
	Minutes      int           `json:"minutes,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// InboundMessage is a chat message addressed to the agent
type InboundMessage struct {
	ChatID     int64     `json:"chat_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}
