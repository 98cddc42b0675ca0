package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-watch-agent/internal/models"
	"github.com/trogers1052/stock-watch-agent/internal/store"
)

const ensureUserQuery = `
	INSERT INTO users (chat_id, created_at, updated_at)
	VALUES ($1, $2, $2)
	ON CONFLICT (chat_id) DO NOTHING
`

// EnsureUser creates the user on first interaction
func (db *DB) EnsureUser(ctx context.Context, chatID int64) error {
	if _, err := db.conn.ExecContext(ctx, ensureUserQuery, chatID, db.now()); err != nil {
		return storageError("ensure user", fmt.Errorf("failed to insert user: %w", err))
	}
	return nil
}

// InitGlobalSettings installs the process-wide defaults, replacing any stored values
func (db *DB) InitGlobalSettings(ctx context.Context, s models.Settings) error {
	if err := store.ValidateInterval(s.CheckIntervalMinutes); err != nil {
		return err
	}
	query := `
		INSERT INTO global_settings (id, check_interval_minutes, price_change_threshold_percent, notify_all_news, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			check_interval_minutes = EXCLUDED.check_interval_minutes,
			price_change_threshold_percent = EXCLUDED.price_change_threshold_percent,
			notify_all_news = EXCLUDED.notify_all_news,
			updated_at = EXCLUDED.updated_at
	`
	_, err := db.conn.ExecContext(ctx, query,
		s.CheckIntervalMinutes, s.PriceChangeThresholdPercent, s.NotifyAllNews, db.now())
	if err != nil {
		return storageError("init global settings", fmt.Errorf("failed to upsert global settings: %w", err))
	}
	return nil
}

// GlobalSettings returns the process-wide defaults
func (db *DB) GlobalSettings(ctx context.Context) (models.Settings, error) {
	query := `
		SELECT check_interval_minutes, price_change_threshold_percent, notify_all_news
		FROM global_settings
		WHERE id = 1
	`
	var s models.Settings
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&s.CheckIntervalMinutes, &s.PriceChangeThresholdPercent, &s.NotifyAllNews,
	)
	if err == sql.ErrNoRows {
		return s, storageError("get global settings", fmt.Errorf("global settings not initialized"))
	}
	if err != nil {
		return s, storageError("get global settings", fmt.Errorf("failed to get global settings: %w", err))
	}
	return s, nil
}

// SetGlobalInterval changes the default interval for users without an override
func (db *DB) SetGlobalInterval(ctx context.Context, minutes int) error {
	if err := store.ValidateInterval(minutes); err != nil {
		return err
	}
	query := `UPDATE global_settings SET check_interval_minutes = $1, updated_at = $2 WHERE id = 1`
	result, err := db.conn.ExecContext(ctx, query, minutes, db.now())
	if err != nil {
		return storageError("set global interval", fmt.Errorf("failed to update global interval: %w", err))
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return storageError("set global interval", fmt.Errorf("global settings not initialized"))
	}
	return nil
}

// SetUserInterval installs a per-user interval override
func (db *DB) SetUserInterval(ctx context.Context, chatID int64, minutes int) error {
	if err := store.ValidateInterval(minutes); err != nil {
		return err
	}
	query := `
		INSERT INTO users (chat_id, interval_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (chat_id) DO UPDATE SET
			interval_minutes = EXCLUDED.interval_minutes,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := db.conn.ExecContext(ctx, query, chatID, minutes, db.now()); err != nil {
		return storageError("set user interval", fmt.Errorf("failed to set user interval: %w", err))
	}
	return nil
}

// EffectiveSettings returns the user's overrides merged onto the defaults
func (db *DB) EffectiveSettings(ctx context.Context, chatID int64) (models.Settings, error) {
	query := `
		SELECT COALESCE(u.interval_minutes, g.check_interval_minutes),
		       COALESCE(u.threshold_percent, g.price_change_threshold_percent),
		       COALESCE(u.notify_all_news, g.notify_all_news)
		FROM global_settings g
		LEFT JOIN users u ON u.chat_id = $1
		WHERE g.id = 1
	`
	var s models.Settings
	err := db.conn.QueryRowContext(ctx, query, chatID).Scan(
		&s.CheckIntervalMinutes, &s.PriceChangeThresholdPercent, &s.NotifyAllNews,
	)
	if err == sql.ErrNoRows {
		return s, storageError("get effective settings", fmt.Errorf("global settings not initialized"))
	}
	if err != nil {
		return s, storageError("get effective settings", fmt.Errorf("failed to get settings: %w", err))
	}
	return s, nil
}

// ListUsers returns all users ordered by chat id
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	query := `
		SELECT chat_id, interval_minutes, threshold_percent, notify_all_news, created_at, updated_at
		FROM users
		ORDER BY chat_id
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storageError("list users", fmt.Errorf("failed to query users: %w", err))
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var interval sql.NullInt64
		var threshold decimal.NullDecimal
		var notifyAll sql.NullBool

		if err := rows.Scan(&u.ChatID, &interval, &threshold, &notifyAll, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, storageError("list users", fmt.Errorf("failed to scan user: %w", err))
		}
		if interval.Valid {
			n := int(interval.Int64)
			u.IntervalMinutes = &n
		}
		if threshold.Valid {
			d := threshold.Decimal
			u.ThresholdPercent = &d
		}
		if notifyAll.Valid {
			b := notifyAll.Bool
			u.NotifyAllNews = &b
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list users", err)
	}
	return users, nil
}

// CountUsers returns the number of known users
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, storageError("count users", fmt.Errorf("failed to count users: %w", err))
	}
	return n, nil
}
