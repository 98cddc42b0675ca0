package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-watch-agent/internal/models"
	"github.com/trogers1052/stock-watch-agent/internal/store"
)

var _ store.Store = (*DB)(nil)

// AddTicker enables ticker for the user, creating the user and entry as needed.
// Concurrent adds of the same ticker leave a single entry.
func (db *DB) AddTicker(ctx context.Context, chatID int64, ticker string) (models.AddResult, error) {
	result := models.AddResultAlreadyPresent
	now := db.now()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, ensureUserQuery, chatID, now); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		var enabled bool
		err := tx.QueryRowContext(ctx, `
			SELECT enabled FROM watchlist_entries
			WHERE chat_id = $1 AND ticker = $2
			FOR UPDATE
		`, chatID, ticker).Scan(&enabled)

		switch {
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO watchlist_entries (chat_id, ticker, enabled, added_at, updated_at)
				VALUES ($1, $2, true, $3, $3)
				ON CONFLICT (chat_id, ticker) DO NOTHING
			`, chatID, ticker, now)
			if err != nil {
				return fmt.Errorf("failed to insert watchlist entry: %w", err)
			}
			// zero rows means a concurrent add won the insert
			if n, _ := res.RowsAffected(); n == 1 {
				result = models.AddResultAdded
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to get watchlist entry: %w", err)
		case enabled:
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE watchlist_entries SET enabled = true, updated_at = $3
			WHERE chat_id = $1 AND ticker = $2
		`, chatID, ticker, now)
		if err != nil {
			return fmt.Errorf("failed to enable watchlist entry: %w", err)
		}
		result = models.AddResultReenabled
		return nil
	})
	if err != nil {
		return result, storageError("add ticker", err)
	}
	return result, nil
}

// RemoveTicker deletes the entry; an absent ticker is not an error
func (db *DB) RemoveTicker(ctx context.Context, chatID int64, ticker string) (bool, error) {
	query := `DELETE FROM watchlist_entries WHERE chat_id = $1 AND ticker = $2`
	result, err := db.conn.ExecContext(ctx, query, chatID, ticker)
	if err != nil {
		return false, storageError("remove ticker", fmt.Errorf("failed to delete watchlist entry: %w", err))
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// SetEnabled pauses or resumes an existing entry
func (db *DB) SetEnabled(ctx context.Context, chatID int64, ticker string, enabled bool) error {
	query := `UPDATE watchlist_entries SET enabled = $3, updated_at = $4 WHERE chat_id = $1 AND ticker = $2`
	result, err := db.conn.ExecContext(ctx, query, chatID, ticker, enabled, db.now())
	if err != nil {
		return storageError("set enabled", fmt.Errorf("failed to update watchlist entry: %w", err))
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, ticker)
	}
	return nil
}

// ListWatchlist returns the user's entries in insertion order
func (db *DB) ListWatchlist(ctx context.Context, chatID int64) ([]models.WatchlistEntry, error) {
	query := `
		SELECT chat_id, ticker, enabled, last_price, last_notified_fingerprint, id, added_at, updated_at
		FROM watchlist_entries
		WHERE chat_id = $1
		ORDER BY id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, storageError("list watchlist", fmt.Errorf("failed to query watchlist: %w", err))
	}
	defer rows.Close()

	var entries []models.WatchlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storageError("list watchlist", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list watchlist", err)
	}
	return entries, nil
}

// EnabledPairs returns every enabled entry with its owner's effective
// settings, read in a single statement so the snapshot is consistent
func (db *DB) EnabledPairs(ctx context.Context) ([]models.WatchPair, error) {
	query := `
		SELECT w.chat_id, w.ticker, w.enabled, w.last_price, w.last_notified_fingerprint,
		       w.id, w.added_at, w.updated_at,
		       COALESCE(u.interval_minutes, g.check_interval_minutes),
		       COALESCE(u.threshold_percent, g.price_change_threshold_percent),
		       COALESCE(u.notify_all_news, g.notify_all_news)
		FROM watchlist_entries w
		JOIN users u ON u.chat_id = w.chat_id
		CROSS JOIN global_settings g
		WHERE w.enabled = true AND g.id = 1
		ORDER BY w.chat_id ASC, w.id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storageError("enabled pairs", fmt.Errorf("failed to query enabled pairs: %w", err))
	}
	defer rows.Close()

	var pairs []models.WatchPair
	for rows.Next() {
		var p models.WatchPair
		var fingerprint sql.NullString
		err := rows.Scan(
			&p.Entry.UserID, &p.Entry.Ticker, &p.Entry.Enabled, &p.Entry.LastPrice, &fingerprint,
			&p.Entry.Position, &p.Entry.AddedAt, &p.Entry.UpdatedAt,
			&p.Settings.CheckIntervalMinutes, &p.Settings.PriceChangeThresholdPercent, &p.Settings.NotifyAllNews,
		)
		if err != nil {
			return nil, storageError("enabled pairs", fmt.Errorf("failed to scan enabled pair: %w", err))
		}
		if fingerprint.Valid {
			p.Entry.LastNotifiedFingerprint = &fingerprint.String
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("enabled pairs", err)
	}
	return pairs, nil
}

// RecordObservation stores the last seen price and, when given, the last
// notified fingerprint. Entries removed since the snapshot are skipped.
func (db *DB) RecordObservation(ctx context.Context, chatID int64, ticker string, price decimal.Decimal, fingerprint string) error {
	query := `
		UPDATE watchlist_entries SET
			last_price = $3,
			last_notified_fingerprint = COALESCE(NULLIF($4, ''), last_notified_fingerprint),
			updated_at = $5
		WHERE chat_id = $1 AND ticker = $2
	`
	if _, err := db.conn.ExecContext(ctx, query, chatID, ticker, price, fingerprint, db.now()); err != nil {
		return storageError("record observation", fmt.Errorf("failed to update watchlist entry: %w", err))
	}
	return nil
}

func scanEntry(rows *sql.Rows) (models.WatchlistEntry, error) {
	var e models.WatchlistEntry
	var fingerprint sql.NullString

	err := rows.Scan(
		&e.UserID, &e.Ticker, &e.Enabled, &e.LastPrice, &fingerprint,
		&e.Position, &e.AddedAt, &e.UpdatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan watchlist entry: %w", err)
	}
	if fingerprint.Valid {
		e.LastNotifiedFingerprint = &fingerprint.String
	}
	return e, nil
}
