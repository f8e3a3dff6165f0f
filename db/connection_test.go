package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpen(t *testing.T) {
	t.Run("applies every connection pragma", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "audit.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode, "runs command reads while process writes")

		var foreignKeys, busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
		assert.Equal(t, 1, foreignKeys)
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})

	t.Run("creates a missing database file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "fresh.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err, "file should exist once pragmas have executed")
	})

	t.Run("fails on an uncreatable path", func(t *testing.T) {
		db, err := Open("/nonexistent/airlock/audit.db", nil)

		// sqlite opens lazily on some platforms; the pragma round-trip in
		// Open normally forces the failure, but tolerate a lazy success
		if err == nil && db != nil {
			err = db.Ping()
			db.Close()
		}
		assert.Error(t, err)
	})

	t.Run("accepts a logger", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "audit.db"), zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		db.Close()
	})
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	db, err := OpenWithMigrations(dbPath, nil)
	require.NoError(t, err)
	_, err = db.Exec(
		"INSERT INTO runs (id, repo, started_at, finished_at) VALUES (?, ?, ?, ?)",
		"RNtest", "octo/repo", "2026-01-01T00:00:00Z", "2026-01-01T00:00:01Z")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenWithMigrations(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count))
	assert.Equal(t, 1, count, "audit rows survive reopen")
}
