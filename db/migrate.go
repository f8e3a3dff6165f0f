package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/airlock/errors"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationDir = "sqlite/migrations"

// Migrate brings the audit schema up to date, applying any shipped
// migration not yet recorded in schema_migrations. Migration 000
// bootstraps the tracking table itself, so a fresh database and an
// existing one go through the same path. Safe to run on every open.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	pending, err := migrationFiles()
	if err != nil {
		return err
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	ran := 0
	for _, name := range pending {
		version, _, _ := strings.Cut(name, "_")
		if _, done := applied[version]; done {
			if logger != nil {
				logger.Debugw("Migration already applied", "migration", name)
			}
			continue
		}
		if err := apply(db, name, version); err != nil {
			return err
		}
		if logger != nil {
			logger.Infow("Applied migration", "migration", name, "version", version)
		}
		ran++
	}

	if logger != nil && ran > 0 {
		logger.Infow("Audit schema up to date", "applied", ran, "total", len(pending))
	}
	return nil
}

// migrationFiles lists the embedded migrations in apply order. Names
// are NNN_description.sql; the numeric prefix is the recorded version.
func migrationFiles() ([]string, error) {
	entries, err := migrationFS.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "read embedded migrations")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// appliedVersions reads the recorded versions. Before migration 000 has
// run the tracking table does not exist, which reads as nothing applied.
func appliedVersions(db *sql.DB) (map[string]struct{}, error) {
	var exists int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'").Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "inspect schema")
	}
	applied := make(map[string]struct{})
	if exists == 0 {
		return applied, nil
	}

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read schema_migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}

// apply executes one migration and records its version in the same
// transaction, so a failed migration leaves no half-applied schema.
func apply(db *sql.DB, name, version string) error {
	ddl, err := migrationFS.ReadFile(path.Join(migrationDir, name))
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", name)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(ddl)); err != nil {
		return errors.Wrapf(err, "execute %s", name)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return errors.Wrapf(err, "record %s", name)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", name)
}
