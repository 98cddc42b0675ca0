package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

type entryKey struct {
	chatID int64
	ticker string
}

// Memory is an in-process Store. Entries live in an arena slice indexed by
// (user, ticker); a single RWMutex guards every read and mutation.
type Memory struct {
	mu       sync.RWMutex
	global   models.Settings
	users    map[int64]*models.User
	arena    []*models.WatchlistEntry
	index    map[entryKey]int
	sessions map[int64]models.PendingSession
	nextPos  int64
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store with the given defaults
func NewMemory(global models.Settings) *Memory {
	return &Memory{
		global:   global,
		users:    make(map[int64]*models.User),
		index:    make(map[entryKey]int),
		sessions: make(map[int64]models.PendingSession),
		now:      time.Now,
	}
}

func (m *Memory) ensureUserLocked(chatID int64) *models.User {
	u, ok := m.users[chatID]
	if !ok {
		now := m.now()
		u = &models.User{ChatID: chatID, CreatedAt: now, UpdatedAt: now}
		m.users[chatID] = u
	}
	return u
}

// EnsureUser creates the user on first interaction
func (m *Memory) EnsureUser(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureUserLocked(chatID)
	return nil
}

// AddTicker enables ticker for the user
func (m *Memory) AddTicker(ctx context.Context, chatID int64, ticker string) (models.AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureUserLocked(chatID)
	key := entryKey{chatID, ticker}
	if i, ok := m.index[key]; ok {
		e := m.arena[i]
		if e.Enabled {
			return models.AddResultAlreadyPresent, nil
		}
		e.Enabled = true
		e.UpdatedAt = m.now()
		return models.AddResultReenabled, nil
	}

	now := m.now()
	m.nextPos++
	m.arena = append(m.arena, &models.WatchlistEntry{
		UserID:    chatID,
		Ticker:    ticker,
		Enabled:   true,
		Position:  m.nextPos,
		AddedAt:   now,
		UpdatedAt: now,
	})
	m.index[key] = len(m.arena) - 1
	return models.AddResultAdded, nil
}

// RemoveTicker deletes the entry and compacts the arena
func (m *Memory) RemoveTicker(ctx context.Context, chatID int64, ticker string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryKey{chatID, ticker}
	i, ok := m.index[key]
	if !ok {
		return false, nil
	}

	last := len(m.arena) - 1
	if i != last {
		moved := m.arena[last]
		m.arena[i] = moved
		m.index[entryKey{moved.UserID, moved.Ticker}] = i
	}
	m.arena[last] = nil
	m.arena = m.arena[:last]
	delete(m.index, key)
	return true, nil
}

// SetEnabled pauses or resumes an existing entry
func (m *Memory) SetEnabled(ctx context.Context, chatID int64, ticker string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[entryKey{chatID, ticker}]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}
	m.arena[i].Enabled = enabled
	m.arena[i].UpdatedAt = m.now()
	return nil
}

// ListWatchlist returns a copy of the user's entries in insertion order
func (m *Memory) ListWatchlist(ctx context.Context, chatID int64) ([]models.WatchlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.WatchlistEntry
	for _, e := range m.arena {
		if e.UserID == chatID {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Position < out[b].Position })
	return out, nil
}

// EnabledPairs snapshots every enabled entry with its effective settings
func (m *Memory) EnabledPairs(ctx context.Context) ([]models.WatchPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.WatchPair
	for _, e := range m.arena {
		if !e.Enabled {
			continue
		}
		out = append(out, models.WatchPair{
			Entry:    copyEntry(e),
			Settings: m.users[e.UserID].Effective(m.global),
		})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Entry.UserID != out[b].Entry.UserID {
			return out[a].Entry.UserID < out[b].Entry.UserID
		}
		return out[a].Entry.Position < out[b].Entry.Position
	})
	return out, nil
}

// RecordObservation stores the last seen price and notified fingerprint.
// An entry removed since the tick snapshot is silently skipped.
func (m *Memory) RecordObservation(ctx context.Context, chatID int64, ticker string, price decimal.Decimal, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[entryKey{chatID, ticker}]
	if !ok {
		return nil
	}
	e := m.arena[i]
	e.LastPrice = decimal.NewNullDecimal(price)
	if fingerprint != "" {
		fp := fingerprint
		e.LastNotifiedFingerprint = &fp
	}
	e.UpdatedAt = m.now()
	return nil
}

// InitGlobalSettings installs the process-wide defaults
func (m *Memory) InitGlobalSettings(ctx context.Context, s models.Settings) error {
	if err := ValidateInterval(s.CheckIntervalMinutes); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = s
	return nil
}

// GlobalSettings returns the process-wide defaults
func (m *Memory) GlobalSettings(ctx context.Context) (models.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.global, nil
}

// SetGlobalInterval changes the default interval for users without an override
func (m *Memory) SetGlobalInterval(ctx context.Context, minutes int) error {
	if err := ValidateInterval(minutes); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global.CheckIntervalMinutes = minutes
	return nil
}

// SetUserInterval installs a per-user interval override
func (m *Memory) SetUserInterval(ctx context.Context, chatID int64, minutes int) error {
	if err := ValidateInterval(minutes); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.ensureUserLocked(chatID)
	n := minutes
	u.IntervalMinutes = &n
	u.UpdatedAt = m.now()
	return nil
}

// EffectiveSettings returns the user's settings merged onto the defaults
func (m *Memory) EffectiveSettings(ctx context.Context, chatID int64) (models.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[chatID].Effective(m.global), nil
}

// ListUsers returns all known users ordered by chat id
func (m *Memory) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ChatID < out[b].ChatID })
	return out, nil
}

// CountUsers returns the number of known users
func (m *Memory) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// SaveSession replaces the user's pending session
func (m *Memory) SaveSession(ctx context.Context, s models.PendingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.Args = append([]string(nil), s.Args...)
	s.Candidates = append([]models.TickerCandidate(nil), s.Candidates...)
	m.sessions[s.ChatID] = s
	return nil
}

// TakeSession removes the user's session, returning it only if still live
func (m *Memory) TakeSession(ctx context.Context, chatID int64, now time.Time) (*models.PendingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[chatID]
	if !ok {
		return nil, nil
	}
	delete(m.sessions, chatID)
	if s.Expired(now) {
		return nil, nil
	}
	return &s, nil
}

func copyEntry(e *models.WatchlistEntry) models.WatchlistEntry {
	c := *e
	if e.LastNotifiedFingerprint != nil {
		fp := *e.LastNotifiedFingerprint
		c.LastNotifiedFingerprint = &fp
	}
	return c
}
