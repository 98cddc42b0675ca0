// Package store defines the watchlist and configuration store used by the
// scheduler, the command dispatcher and the operator API.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// Store is the per-user watchlist, settings and session state.
// Every method is atomic: concurrent readers observe either the state before
// or after a mutation, never a partial one.
type Store interface {
	// EnsureUser creates the user on first interaction
	EnsureUser(ctx context.Context, chatID int64) error
	// AddTicker enables ticker for the user, creating the entry if needed
	AddTicker(ctx context.Context, chatID int64, ticker string) (models.AddResult, error)
	// RemoveTicker deletes the entry; removing an absent ticker is a no-op
	RemoveTicker(ctx context.Context, chatID int64, ticker string) (bool, error)
	// SetEnabled pauses or resumes an existing entry
	SetEnabled(ctx context.Context, chatID int64, ticker string, enabled bool) error
	// ListWatchlist returns the user's entries in insertion order
	ListWatchlist(ctx context.Context, chatID int64) ([]models.WatchlistEntry, error)
	// EnabledPairs returns a consistent snapshot of every enabled entry with
	// its owner's effective settings
	EnabledPairs(ctx context.Context) ([]models.WatchPair, error)
	// RecordObservation stores the last seen price and, when non-empty, the
	// last notified fingerprint
	RecordObservation(ctx context.Context, chatID int64, ticker string, price decimal.Decimal, fingerprint string) error

	// InitGlobalSettings installs the process-wide defaults
	InitGlobalSettings(ctx context.Context, s models.Settings) error
	GlobalSettings(ctx context.Context) (models.Settings, error)
	SetGlobalInterval(ctx context.Context, minutes int) error
	SetUserInterval(ctx context.Context, chatID int64, minutes int) error
	EffectiveSettings(ctx context.Context, chatID int64) (models.Settings, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (int, error)

	// SaveSession replaces the user's pending session
	SaveSession(ctx context.Context, s models.PendingSession) error
	// TakeSession removes and returns the user's session if it has not expired at now
	TakeSession(ctx context.Context, chatID int64, now time.Time) (*models.PendingSession, error)
}

// ErrNotFound is returned when a watchlist entry does not exist
var ErrNotFound = errors.New("watchlist entry not found")

// Interval bounds accepted for check intervals
const (
	MinIntervalMinutes = 1
	MaxIntervalMinutes = 1440
)

// ValidateInterval rejects intervals outside the accepted bounds
func ValidateInterval(minutes int) error {
	if minutes < MinIntervalMinutes {
		return &models.ValidationError{Field: "minutes", Message: "interval must be at least 1 minute"}
	}
	if minutes > MaxIntervalMinutes {
		return &models.ValidationError{Field: "minutes", Message: "interval cannot exceed 24 hours (1440 minutes)"}
	}
	return nil
}
