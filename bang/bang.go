// Package bang resolves shortcut-operator queries ("!w einstein") into
// direct redirects to a third-party site's own search URL.
package bang

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
)

// Entry describes one bang operator: a URL template with a single {}
// placeholder and a human-readable suggestion shown in autocomplete.
type Entry struct {
	URL        string `json:"url"`
	Suggestion string `json:"suggestion"`
}

// Table is an immutable mapping from operator token (including the leading
// "!") to its entry. Build one with LoadFile or FromEntries and publish it
// through a Store; never mutate a Table that may be visible to readers.
type Table map[string]Entry

// FromEntries copies entries into a new Table, lower-casing operator tokens
// so lookups stay case-insensitive.
func FromEntries(entries map[string]Entry) Table {
	t := make(Table, len(entries))
	for op, e := range entries {
		t[strings.ToLower(op)] = e
	}
	return t
}

// LoadFile reads a bang table from a JSON file on disk.
func LoadFile(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bang: read table: %w", err)
	}
	var entries map[string]Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("bang: parse table: %w", err)
	}
	return FromEntries(entries), nil
}

// Resolve transforms a query into a bang redirect if it contains a known
// operator, either canonical ("!w term") or reversed ("term w!"). The first
// matching operator is stripped, the remainder trimmed and substituted into
// the template. An empty remainder yields the template's scheme and host
// only. Returns "" when no operator matches.
func (t Table) Resolve(query string) string {
	tokens := strings.Fields(strings.ToLower(query))
	for idx, tok := range tokens {
		entry, ok := t.lookup(tok)
		if !ok {
			continue
		}
		rest := make([]string, 0, len(tokens)-1)
		rest = append(rest, tokens[:idx]...)
		rest = append(rest, tokens[idx+1:]...)
		remainder := strings.Join(rest, " ")
		if remainder == "" {
			parsed, err := url.Parse(entry.URL)
			if err != nil || parsed.Host == "" {
				return entry.URL
			}
			return parsed.Scheme + "://" + parsed.Host
		}
		// PathEscape keeps spaces as %20, which is valid in both path and
		// query position of the target templates.
		return strings.Replace(entry.URL, "{}", url.PathEscape(remainder), 1)
	}
	return ""
}

// lookup matches one query token against the table, in either its
// canonical ("!w") or reversed ("w!") form. Scanning tokens left to right
// keeps resolution deterministic when a query names several operators.
func (t Table) lookup(tok string) (Entry, bool) {
	if strings.HasPrefix(tok, "!") {
		if entry, ok := t[tok]; ok {
			return entry, true
		}
	}
	if strings.HasSuffix(tok, "!") {
		if entry, ok := t["!"+strings.TrimSuffix(tok, "!")]; ok {
			return entry, true
		}
	}
	return Entry{}, false
}

// Suggest returns the suggestion strings of all operators sharing the given
// prefix, sorted, for use by the autocomplete endpoint.
func (t Table) Suggest(prefix string) []string {
	prefix = strings.ToLower(prefix)
	var out []string
	for op, entry := range t {
		if strings.HasPrefix(op, prefix) {
			out = append(out, entry.Suggestion)
		}
	}
	sort.Strings(out)
	return out
}
