package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// SaveSession replaces the user's pending disambiguation session
func (db *DB) SaveSession(ctx context.Context, s models.PendingSession) error {
	args, err := json.Marshal(s.Args)
	if err != nil {
		return fmt.Errorf("failed to marshal session args: %w", err)
	}
	candidates, err := json.Marshal(s.Candidates)
	if err != nil {
		return fmt.Errorf("failed to marshal session candidates: %w", err)
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, ensureUserQuery, s.ChatID, db.now()); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pending_sessions (chat_id, verb, args, candidates, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (chat_id) DO UPDATE SET
				verb = EXCLUDED.verb,
				args = EXCLUDED.args,
				candidates = EXCLUDED.candidates,
				expires_at = EXCLUDED.expires_at
		`, s.ChatID, s.Verb, string(args), string(candidates), s.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return storageError("save session", err)
	}
	return nil
}

// TakeSession deletes the user's session and returns it if it is still live at now
func (db *DB) TakeSession(ctx context.Context, chatID int64, now time.Time) (*models.PendingSession, error) {
	query := `
		DELETE FROM pending_sessions
		WHERE chat_id = $1
		RETURNING verb, args, candidates, expires_at
	`
	s := models.PendingSession{ChatID: chatID}
	var args, candidates []byte

	err := db.conn.QueryRowContext(ctx, query, chatID).Scan(&s.Verb, &args, &candidates, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("take session", fmt.Errorf("failed to delete session: %w", err))
	}
	if s.Expired(now) {
		return nil, nil
	}

	if err := json.Unmarshal(args, &s.Args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session args: %w", err)
	}
	if err := json.Unmarshal(candidates, &s.Candidates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session candidates: %w", err)
	}
	return &s, nil
}
