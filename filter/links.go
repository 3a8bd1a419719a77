package filter

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// maxAncestorWalk bounds ancestor walks so a malformed tree cannot send the
// classifier on an unbounded climb.
const maxAncestorWalk = 10

// rewriteLink classifies one anchor and applies the matching rewrite:
// internal search links get encrypted query tokens, external result links
// are stripped of tracking arguments, engine-native destinations are
// forwarded or dropped, and maps links are rebuilt canonically.
func (f *Filter) rewriteLink(link *html.Node) {
	href := attrVal(link, "href")
	parsed, err := url.Parse(href)
	if err != nil {
		f.logger.Printf("filter: unparsable href %q: %v", href, err)
		return
	}

	// Redirect-style hrefs carry the true destination in their q param.
	linkNetloc := parsed.Host
	if strings.Contains(href, "/url?q=") {
		linkNetloc = extractQ(parsed.RawQuery, href)
	}

	for _, page := range unsupportedPages {
		if strings.Contains(linkNetloc, page) {
			f.rewriteUnsupported(link, linkNetloc)
			return
		}
	}

	// Normalize to the engine-relative form; the remaining branches key off
	// path shapes.
	href = strings.Replace(href, originPrefix, "", 1)
	q := ""
	if resultLink, err := url.Parse(href); err == nil {
		q = extractQ(resultLink.RawQuery, href)
	}

	switch {
	case strings.HasPrefix(q, "/") && !strings.Contains(f.opt.Query, q) &&
		!strings.Contains(href, spellCorrectionMarker):
		// Engine-native destinations (mail, maps, tools) that this proxy
		// does not reimplement keep pointing at the origin.
		setAttr(link, "href", originHost+q)

	case strings.HasPrefix(q, signInPrefix):
		detach(link)
		return

	case strings.Contains(href, "/search?q="):
		f.rewriteSearchLink(link, href, q)

	case strings.Contains(href, "url?q="):
		f.rewriteExternalLink(link, q)

	default:
		switch {
		case strings.HasPrefix(href, mapsURL):
			setAttr(link, "href", buildMapURL(href))
		case hasRelativePrefix(href):
			// Clickable as a relative reference into this proxy.
			setAttr(link, "href", href[1:])
		case strings.HasPrefix(href, "/intl/"):
			// Terms-of-service pages keep their original URL.
		case strings.HasPrefix(href, "/preferences"):
			// No proxy-side analog for engine preference pages.
			detach(link)
			return
		default:
			setAttr(link, "href", href)
		}
	}

	final := attrVal(link, "href")
	if f.cfg.NewTab && (strings.HasPrefix(final, "http") || strings.HasPrefix(final, "imgres?")) {
		setAttr(link, "target", "_blank")
	}
	if f.cfg.SiteAlts {
		setAttr(link, "href", siteAlt(final, f.cfg.siteAlts()))
		f.substituteLinkText(link)
	}
}

// rewriteUnsupported handles links into engine pages this proxy cannot
// serve. The link is pointed at its direct destination; a link sitting in a
// footer-like container is removed instead, and the language-preference
// variant removes its whole result block (language config happens through
// the proxy, not the engine).
func (f *Filter) rewriteUnsupported(link *html.Node, dest string) {
	setAttr(link, "href", dest)

	if strings.Contains(dest, languageConfigPath) {
		for p, depth := link.Parent, 0; p != nil && depth < maxAncestorWalk; p, depth = p.Parent, depth+1 {
			if p.Type == html.ElementNode && hasClass(p, classes.ResultA) {
				detach(p)
				return
			}
		}
		return
	}

	for p, depth := link.Parent, 0; p != nil && depth < maxAncestorWalk; p, depth = p.Parent, depth+1 {
		if isElement(p, "footer") || (p.Type == html.ElementNode && hasClass(p, classes.Footer)) {
			detach(link)
			return
		}
	}
}

// rewriteSearchLink turns a same-engine search link into an encrypted proxy
// search, copying through only the allow-listed auxiliary parameters.
func (f *Filter) rewriteSearchLink(link *html.Node, href, q string) {
	if strings.Contains(href, exactPhraseMarker) {
		q = `"` + q + `"`
	}
	tok, err := f.encryptPath(q, false)
	if err != nil {
		f.logger.Printf("filter: encrypt search query: %v", err)
		return
	}
	newSearch := "search?q=" + tok
	if parsed, err := url.Parse(href); err == nil {
		params := parsed.Query()
		for _, p := range resultParams {
			if v := params.Get(p); v != "" {
				newSearch += "&" + p + "=" + v
			}
		}
	}
	setAttr(link, "href", newSearch)
}

// rewriteExternalLink strips tracking arguments from a redirect-wrapped
// external destination and, once per destination host per page, appends an
// alternate-view link through the whole-page relay.
func (f *Filter) rewriteExternalLink(link *html.Node, q string) {
	stripped := filterLinkArgs(q)
	setAttr(link, "href", stripped)

	if !f.cfg.AnonView {
		return
	}
	host := ""
	if u, err := url.Parse(stripped); err == nil {
		host = u.Host
	}
	if host == "" {
		return
	}
	if _, seen := f.seenHosts[host]; seen {
		return
	}
	f.seenHosts[host] = struct{}{}
	f.appendAnonView(link, stripped)
}

func (f *Filter) appendAnonView(link *html.Node, dest string) {
	tok, err := f.encryptPath(dest, false)
	if err != nil {
		f.logger.Printf("filter: encrypt anon view target: %v", err)
		return
	}
	av := newElement("a")
	setAttr(av, "class", "anon-view")
	href := "window?location=" + tok
	if f.cfg.NoJS {
		href += "&nojs=1"
	}
	setAttr(av, "href", href)
	av.AppendChild(newText(" (anonymous view)"))
	if link.Parent != nil {
		link.Parent.InsertBefore(av, link.NextSibling)
	}
}

// siteAlt swaps a recognized service host in an href for its configured
// alternative. Mirrors may carry a path prefix ("farside.link/nitter"), so
// the swap happens textually on the href once the host has matched. The
// first matching service wins; subdomains of a service match too and are
// folded into the mirror.
func siteAlt(href string, alts map[string]string) string {
	parsed, err := url.Parse(href)
	if err != nil || parsed.Hostname() == "" {
		return href
	}
	host := parsed.Hostname()

	sites := make([]string, 0, len(alts))
	for site := range alts {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	for _, site := range sites {
		alt := alts[site]
		if alt == "" {
			continue
		}
		if host != site && !strings.HasSuffix(host, "."+site) {
			continue
		}
		return strings.Replace(href, host, alt, 1)
	}
	return href
}

// substituteLinkText replaces the first recognized service name in the
// link's visible text with its configured alternative. Only the first
// matching substitution applies.
func (f *Filter) substituteLinkText(link *html.Node) {
	alts := f.cfg.siteAlts()
	sites := make([]string, 0, len(alts))
	for site := range alts {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	for _, tn := range textNodes(link) {
		for _, site := range sites {
			alt := alts[site]
			if alt == "" || !strings.Contains(tn.Data, site) {
				continue
			}
			tn.Data = strings.Replace(tn.Data, site, alt, 1)
			return
		}
	}
}

// extractQ pulls the embedded destination out of a redirect-style link. The
// href is checked for a standalone q parameter before the query string is
// parsed.
func extractQ(rawQuery, href string) string {
	if !strings.Contains(href, "&q=") && !strings.Contains(href, "?q=") {
		return ""
	}
	vals, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}
	return vals.Get("q")
}

// buildMapURL rebuilds a canonical maps URL from known location arguments.
// A map link carrying no recognizable location passes through unchanged.
func buildMapURL(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	vals := parsed.Query()
	for _, param := range mapsParams {
		if v := vals.Get(param); v != "" {
			return mapsURL + "?q=" + url.QueryEscape(v)
		}
	}
	return href
}

func hasRelativePrefix(href string) bool {
	for _, prefix := range relativePrefixes {
		if strings.HasPrefix(href, prefix) {
			return true
		}
	}
	return false
}

// filterLinkArgs drops tracking and marketing arguments from a destination
// URL, keeping only what is needed to reach the resource.
func filterLinkArgs(link string) string {
	parsed, err := url.Parse(link)
	if err != nil || parsed.RawQuery == "" {
		return link
	}
	safe := url.Values{}
	for key, vals := range parsed.Query() {
		if isTrackingArg(key) {
			continue
		}
		safe[key] = vals
	}
	parsed.RawQuery = safe.Encode()
	return parsed.String()
}

func isTrackingArg(key string) bool {
	for _, arg := range trackingArgs {
		if key == arg {
			return true
		}
	}
	for _, prefix := range trackingArgPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
