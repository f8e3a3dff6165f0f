package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/airlock/errors"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("successfully opens database and runs migrations", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		// Every audit table exists after migration
		for _, table := range []string{"schema_migrations", "runs", "run_redactions", "run_resolved_ids", "run_diagnostics"} {
			var exists int
			err = db.QueryRow(
				"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&exists)
			require.NoError(t, err)
			assert.Equal(t, 1, exists, "table %s should exist after migrations", table)
		}
	})

	t.Run("migration errors include stack traces", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		firstDB, err := Open(dbPath, nil)
		require.NoError(t, err)
		firstDB.Close()

		// Make directory read-only so WAL mode will fail
		err = os.Chmod(tmpDir, 0555)
		require.NoError(t, err)
		defer os.Chmod(tmpDir, 0755) // Restore for cleanup

		db, err := OpenWithMigrations(dbPath, nil)
		require.Error(t, err)
		assert.Nil(t, db)

		stackTrace := errors.GetReportableStackTrace(err)
		assert.NotNil(t, stackTrace, "migration errors should have stack traces")

		detailed := fmt.Sprintf("%+v", err)
		assert.Contains(t, detailed, "connection.go", "stack should reference source file")
	})
}

func TestMigrate(t *testing.T) {
	t.Run("records every applied version", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		err = Migrate(db, nil)
		require.NoError(t, err)

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 2, count, "both shipped migrations should be recorded")
	})

	t.Run("is idempotent", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		err = Migrate(db, nil)
		require.NoError(t, err)

		err = Migrate(db, nil)
		require.NoError(t, err, "running migrations multiple times should be safe")

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 2, count, "re-running must not re-record versions")
	})

	t.Run("migration errors have context", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)

		db.Close()

		err = Migrate(db, nil)
		require.Error(t, err)
	})
}
