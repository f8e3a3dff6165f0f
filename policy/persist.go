package policy

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/logger"
)

// Snapshot writes the fully merged effective configuration (defaults,
// files, and environment overrides) to a TOML file. Rotating backups
// (.back1, .back2, .back3) protect the previous snapshot.
func Snapshot(path string) error {
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to back up previous snapshot")
	}

	data, err := toml.Marshal(GetViper().AllSettings())
	if err != nil {
		return errors.Wrap(err, "failed to marshal policy snapshot")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create snapshot directory %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write snapshot %s", path)
	}
	return nil
}

// createBackup rotates existing snapshots before a write:
// .back3 is dropped, .back2 → .back3, .back1 → .back2, current → .back1.
func createBackup(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	back3 := path + ".back3"
	back2 := path + ".back2"
	back1 := path + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete oldest snapshot backup",
			logger.FieldPath, back3,
			logger.FieldError, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read snapshot for backup")
	}
	if err := os.WriteFile(back1, content, 0o644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}
