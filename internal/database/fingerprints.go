package database

import (
	"context"
	"fmt"
	"time"
)

// CheckAndInsert records a notification fingerprint. The primary key makes
// the insert a single atomic test-and-set: only the first writer affects a row.
func (db *DB) CheckAndInsert(ctx context.Context, fp string, at time.Time) (bool, error) {
	query := `
		INSERT INTO sent_fingerprints (fingerprint, first_sent_at)
		VALUES ($1, $2)
		ON CONFLICT (fingerprint) DO NOTHING
	`
	result, err := db.conn.ExecContext(ctx, query, fp, at)
	if err != nil {
		return false, storageError("fingerprint check-and-insert", fmt.Errorf("failed to insert fingerprint: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, storageError("fingerprint check-and-insert", err)
	}
	return rowsAffected == 1, nil
}

// EvictBefore deletes fingerprints first sent before cutoff. Rows still
// being inserted are invisible to the delete and carry a recent timestamp.
func (db *DB) EvictBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM sent_fingerprints WHERE first_sent_at < $1`, cutoff)
	if err != nil {
		return 0, storageError("evict fingerprints", fmt.Errorf("failed to delete fingerprints: %w", err))
	}
	return result.RowsAffected()
}

// FingerprintExists reports whether fp is currently recorded
func (db *DB) FingerprintExists(ctx context.Context, fp string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sent_fingerprints WHERE fingerprint = $1)`, fp,
	).Scan(&exists)
	if err != nil {
		return false, storageError("fingerprint exists", fmt.Errorf("failed to check fingerprint: %w", err))
	}
	return exists, nil
}
