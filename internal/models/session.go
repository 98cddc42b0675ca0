package models

import "time"

// PendingSession holds a command waiting for the user to pick a ticker
type PendingSession struct {
	ChatID     int64             `json:"chat_id"`
	Verb       string            `json:"verb"`
	Args       []string          `json:"args"`
	Candidates []TickerCandidate `json:"candidates"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at t
func (s *PendingSession) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}
