// Package runid mints the short identifiers that tie one processing
// run's report, log lines, and audit rows together.
package runid

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// Prefix marks every run identifier, so a bare token in a log line is
// recognizable as a run id at a glance.
const Prefix = "RN"

// New mints a run id: the prefix plus a base58btc-encoded random UUID.
// Base58 keeps the token short, double-click selectable, and free of
// look-alike characters.
func New() string {
	u := uuid.New()
	return Prefix + base58.Encode(u[:])
}

// Valid reports whether s is shaped like an id minted by New.
func Valid(s string) bool {
	if !strings.HasPrefix(s, Prefix) {
		return false
	}
	raw, err := base58.Decode(s[len(Prefix):])
	return err == nil && len(raw) == 16
}
