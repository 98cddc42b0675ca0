package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("all tables exist", func(t *testing.T) {
		expectedTables := []string{
			"users",
			"global_settings",
			"watchlist_entries",
			"sent_fingerprints",
			"pending_sessions",
		}

		for _, tableName := range expectedTables {
			var exists bool
			err := testDB.GetRawConn().QueryRow(`
				SELECT EXISTS (
					SELECT FROM information_schema.tables
					WHERE table_schema = 'public'
					AND table_name = $1
				)
			`, tableName).Scan(&exists)

			require.NoError(t, err, "failed to check table existence for %s", tableName)
			assert.True(t, exists, "table %s should exist", tableName)
		}
	})

	t.Run("watchlist_entries table has correct columns", func(t *testing.T) {
		expectedColumns := map[string]string{
			"id":                        "bigint",
			"chat_id":                   "bigint",
			"ticker":                    "character varying",
			"enabled":                   "boolean",
			"last_price":                "numeric",
			"last_notified_fingerprint": "character varying",
			"added_at":                  "timestamp with time zone",
			"updated_at":                "timestamp with time zone",
		}

		for colName, expectedType := range expectedColumns {
			var actualType string
			err := testDB.GetRawConn().QueryRow(`
				SELECT data_type
				FROM information_schema.columns
				WHERE table_name = 'watchlist_entries' AND column_name = $1
			`, colName).Scan(&actualType)

			require.NoError(t, err, "column %s should exist in watchlist_entries table", colName)
			assert.Equal(t, expectedType, actualType, "column %s should have type %s", colName, expectedType)
		}
	})

	t.Run("interval check constraint rejects zero", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.GetRawConn().Exec(`INSERT INTO users (chat_id, interval_minutes) VALUES (1, 0)`)
		assert.Error(t, err)
	})

	t.Run("watchlist entries are unique per user and ticker", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.GetRawConn().Exec(`INSERT INTO users (chat_id) VALUES (1)`)
		require.NoError(t, err)
		_, err = testDB.GetRawConn().Exec(`INSERT INTO watchlist_entries (chat_id, ticker) VALUES (1, 'AAPL')`)
		require.NoError(t, err)
		_, err = testDB.GetRawConn().Exec(`INSERT INTO watchlist_entries (chat_id, ticker) VALUES (1, 'AAPL')`)
		assert.Error(t, err)
	})

	t.Run("running migrations twice is a no-op", func(t *testing.T) {
		assert.NoError(t, testDB.RunMigrations(migrationsPath()))
	})
}
