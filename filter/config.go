package filter

import "strings"

// Config carries the per-session preferences the rewrite passes consult.
// Loading (env, cookies, form params) is the server layer's concern; the
// filter reads these values only.
type Config struct {
	// Block lists domains scrubbed from queries and visible text
	// (comma-separated in transport, split here).
	Block []string
	// BlockTitle removes result blocks whose title matches this pattern.
	BlockTitle string
	// BlockURL removes result blocks containing a link matching this pattern.
	BlockURL string
	// Minimal enables reduced verbosity: auxiliary sections are removed
	// rather than collapsed.
	Minimal bool
	// NewTab marks rewritten external links to open in a new context.
	NewTab bool
	// AnonView appends an alternate-view link once per destination host.
	AnonView bool
	// SiteAlts substitutes recognized services with configured mirrors.
	SiteAlts bool
	// NoJS propagates script-free viewing into alternate-view links.
	NoJS bool
	// GetOnly forces the rewritten search form to submit via GET.
	GetOnly bool
	// Alts maps service hosts to replacement mirrors; nil means the
	// built-in defaults.
	Alts map[string]string
}

// siteAlts returns the effective service-substitution table.
func (c Config) siteAlts() map[string]string {
	if c.Alts != nil {
		return c.Alts
	}
	return defaultSiteAlts
}

// blockString reconstructs the "-site:a -site:b" query fragment the block
// list produces, for scrubbing from visible text.
func (c Config) blockString() string {
	if len(c.Block) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c.Block))
	for _, site := range c.Block {
		site = strings.TrimSpace(site)
		if site != "" {
			parts = append(parts, "-site:"+site)
		}
	}
	return strings.Join(parts, " ")
}

// ApplyBlocks appends the block-list filters to an outgoing query.
func (c Config) ApplyBlocks(query string) string {
	if bs := c.blockString(); bs != "" {
		return query + " " + bs
	}
	return query
}

// CleanQuery strips the appended block-list filters from a user-visible
// query string.
func CleanQuery(query string) string {
	if i := strings.Index(query, "-site:"); i != -1 {
		return strings.TrimSpace(query[:i])
	}
	return query
}
