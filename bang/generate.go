package bang

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// upstreamListURL is the DuckDuckGo bang catalogue this table is generated
// from.
const upstreamListURL = "https://duckduckgo.com/bang.v255.js"

type upstreamBang struct {
	Trigger  string `json:"t"`
	URL      string `json:"u"`
	SiteName string `json:"s"`
}

// Generate downloads the upstream bang catalogue and writes it to path as a
// JSON Table. Run at deploy time, not per request.
func Generate(client *http.Client, path string) error {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Get(upstreamListURL)
	if err != nil {
		return fmt.Errorf("bang: fetch upstream list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bang: fetch upstream list: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bang: read upstream list: %w", err)
	}

	var rows []upstreamBang
	if err := json.Unmarshal(body, &rows); err != nil {
		return fmt.Errorf("bang: parse upstream list: %w", err)
	}

	entries := make(map[string]Entry, len(rows))
	for _, row := range rows {
		if row.Trigger == "" || row.URL == "" {
			continue
		}
		op := "!" + strings.ToLower(row.Trigger)
		entries[op] = Entry{
			URL:        strings.Replace(row.URL, "{{{s}}}", "{}", 1),
			Suggestion: op + " (" + row.SiteName + ")",
		}
	}

	out, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("bang: encode table: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("bang: write table: %w", err)
	}
	return nil
}
