package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settings are the monitoring parameters applied to a user's watchlist
type Settings struct {
	CheckIntervalMinutes        int             `json:"check_interval_minutes" validate:"min=1,max=1440"`
	PriceChangeThresholdPercent decimal.Decimal `json:"price_change_threshold_percent"`
	NotifyAllNews               bool            `json:"notify_all_news"`
}

// Interval returns the check interval as a duration
func (s Settings) Interval() time.Duration {
	return time.Duration(s.CheckIntervalMinutes) * time.Minute
}

// User is a chat endpoint that owns a watchlist
type User struct {
	ChatID           int64            `json:"chat_id"`
	IntervalMinutes  *int             `json:"interval_minutes,omitempty"`
	ThresholdPercent *decimal.Decimal `json:"threshold_percent,omitempty"`
	NotifyAllNews    *bool            `json:"notify_all_news,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Effective merges the user's overrides onto the global settings
func (u *User) Effective(global Settings) Settings {
	s := global
	if u == nil {
		return s
	}
	if u.IntervalMinutes != nil {
		s.CheckIntervalMinutes = *u.IntervalMinutes
	}
	if u.ThresholdPercent != nil {
		s.PriceChangeThresholdPercent = *u.ThresholdPercent
	}
	if u.NotifyAllNews != nil {
		s.NotifyAllNews = *u.NotifyAllNews
	}
	return s
}

// WatchlistEntry is the per-user, per-ticker monitoring state
type WatchlistEntry struct {
	UserID                  int64               `json:"user_id"`
	Ticker                  string              `json:"ticker"`
	Enabled                 bool                `json:"enabled"`
	LastPrice               decimal.NullDecimal `json:"last_price"`
	LastNotifiedFingerprint *string             `json:"last_notified_fingerprint,omitempty"`
	Position                int64               `json:"position"`
	AddedAt                 time.Time           `json:"added_at"`
	UpdatedAt               time.Time           `json:"updated_at"`
}

// WatchPair is one enabled (user, ticker) pair with the user's effective settings,
// as seen by a single scheduler tick
type WatchPair struct {
	Entry    WatchlistEntry `json:"entry"`
	Settings Settings       `json:"settings"`
}

// AddResult describes what an add operation did to the watchlist
type AddResult int

const (
	AddResultAdded AddResult = iota
	AddResultReenabled
	AddResultAlreadyPresent
)

func (r AddResult) String() string {
	switch r {
	case AddResultAdded:
		return "added"
	case AddResultReenabled:
		return "reenabled"
	case AddResultAlreadyPresent:
		return "already_present"
	}
	return "unknown"
}
