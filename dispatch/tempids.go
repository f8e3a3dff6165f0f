package dispatch

import (
	"sort"
	"strconv"
	"strings"

	"github.com/teranos/airlock/intake"
)

// TempEntry is the real identity minted for a temporary id: an item
// number in a repository, or a resource URL for entities the platform
// addresses by URL (discussions).
type TempEntry struct {
	Repo   string `json:"repo,omitempty"`
	Number int    `json:"number,omitempty"`
	URL    string `json:"url,omitempty"`
}

// IsZero reports whether no identity was minted.
func (e TempEntry) IsZero() bool {
	return e.Number == 0 && e.URL == ""
}

// Ref renders the entry as reference text usable inside body content:
// the resource URL when that is all we have, "#N" within the current
// repository, "owner/repo#N" across repositories.
func (e TempEntry) Ref(currentRepo string) string {
	if e.Number == 0 {
		return e.URL
	}
	if e.Repo == "" || strings.EqualFold(e.Repo, currentRepo) {
		return "#" + strconv.Itoa(e.Number)
	}
	return e.Repo + "#" + strconv.Itoa(e.Number)
}

// ResolvedIDs is the read-only view of the temporary-id map a handler
// receives. It reflects every registration made before the handler's
// own invocation; handlers cannot add to it.
type ResolvedIDs struct {
	entries map[string]TempEntry
}

// NewResolvedIDs builds a view over entries, normalizing ids. The engine
// maintains its own map during a run; this constructor serves callers
// assembling a snapshot by hand.
func NewResolvedIDs(entries map[string]TempEntry) ResolvedIDs {
	m := make(map[string]TempEntry, len(entries))
	for id, e := range entries {
		m[intake.NormalizeTempID(id)] = e
	}
	return ResolvedIDs{entries: m}
}

// Lookup resolves one token, tolerating any casing.
func (ids ResolvedIDs) Lookup(ref string) (TempEntry, bool) {
	e, ok := ids.entries[intake.NormalizeTempID(ref)]
	return e, ok
}

// Len reports how many ids have resolved.
func (ids ResolvedIDs) Len() int { return len(ids.entries) }

// Tokens returns the resolved tokens in lexical order.
func (ids ResolvedIDs) Tokens() []string {
	out := make([]string, 0, len(ids.entries))
	for t := range ids.entries {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Render substitutes every resolvable temporary-id token in text with
// its reference form and returns the tokens that remain unresolved.
func (ids ResolvedIDs) Render(text, currentRepo string) (string, []string) {
	if len(ids.entries) == 0 {
		return text, intake.FindTempIDs(text)
	}
	return intake.ReplaceTempIDs(text, func(id string) (string, bool) {
		e, ok := ids.entries[id]
		if !ok {
			return "", false
		}
		return e.Ref(currentRepo), true
	})
}
