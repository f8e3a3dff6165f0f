// Package db is the run audit store. Every processed batch persists
// its summary, redaction log, resolved-id map, and per-line
// diagnostics to a local SQLite database, so "what did the agent do
// and what was refused" stays answerable after the workflow run is
// gone.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/airlock/errors"
)

// SQLiteBusyTimeoutMS bounds how long a statement waits on a locked
// database before failing.
const SQLiteBusyTimeoutMS = 5000

// Open opens the audit database at path, creating the file if needed.
// WAL keeps `airlock runs` readable while a process run is writing;
// foreign keys hold the run → detail-row relationship together.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening audit database", "path", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open audit database %s", path)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", SQLiteBusyTimeoutMS),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", p)
		}
	}

	if logger != nil {
		logger.Infow("Audit database opened",
			"path", path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and brings its schema current.
// This is the entrypoint callers should use; Open alone leaves the
// schema wherever the last run left it.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
