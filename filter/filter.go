// Package filter implements the content-filtering and link-rewriting engine
// for proxied search result pages: it consumes a parsed HTML tree and
// produces a sanitized, tracker-free, re-linked document in which every
// outbound URL and query is replaced by an encrypted token.
package filter

import (
	"log"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"veil/pathcipher"
)

// resultChildLimit is the grandchild-count threshold separating regular
// results from list-type auxiliary sections ("people also ask", "related
// searches") that get collapsed or removed.
const resultChildLimit = 7

// Options carries the per-request context of one filter pass.
type Options struct {
	// RootURL is the proxy's own externally visible base URL, without a
	// trailing slash.
	RootURL string
	// PageURL is the upstream URL the document was fetched from; CSS
	// references are resolved against it.
	PageURL string
	// Query is the user's raw query string for this page.
	Query string
	// Mobile tweaks a few styling fixups for small screens.
	Mobile bool
	// RenderBrand supplies a replacement markup fragment when an origin
	// brand asset is detected. Nil falls back to a blank pixel.
	RenderBrand func(kind string) string
	// Logger receives per-element rewrite failures. Nil means log.Default.
	Logger *log.Logger
}

// Filter rewrites one request's document tree. It is owned by a single
// request for the duration of a pass and must not be shared.
type Filter struct {
	cipher *pathcipher.Cipher
	cfg    Config
	opt    Options
	logger *log.Logger

	main      *html.Node
	elements  int
	seenHosts map[string]struct{}
}

// New builds a Filter bound to one session cipher and one request context.
func New(cipher *pathcipher.Cipher, cfg Config, opt Options) *Filter {
	logger := opt.Logger
	if logger == nil {
		logger = log.Default()
	}
	opt.RootURL = strings.TrimSuffix(opt.RootURL, "/")
	return &Filter{
		cipher:    cipher,
		cfg:       cfg,
		opt:       opt,
		logger:    logger,
		seenHosts: make(map[string]struct{}),
	}
}

// Elements reports how many asset elements were rewritten during the last
// Clean or RewriteAsset calls. The session layer uses it to decide when all
// encrypted tokens of a page have been served and the key may rotate.
func (f *Filter) Elements() int { return f.elements }

// encryptPath seals a URL or query into a session-bound token. Asset
// elements are counted separately from query links so the key-rotation
// policy knows how many tokens remain outstanding.
func (f *Filter) encryptPath(path string, isElement bool) (string, error) {
	tok, err := f.cipher.Encrypt(path)
	if err != nil {
		return "", err
	}
	if isElement {
		f.elements++
	}
	return tok, nil
}

// Clean runs the full rewrite sequence over doc and returns it. Passes run
// in a fixed order: later passes assume the invariants earlier ones
// establish (collapsing sees original child counts, link rewriting sees the
// final structure). A pass that finds nothing to do is a no-op. A document
// with no body is returned unmodified.
func (f *Filter) Clean(doc *html.Node) *html.Node {
	if doc == nil {
		return doc
	}
	if firstByTag(doc, "body") == nil {
		f.logger.Printf("filter: document has no body, returning unmodified")
		return doc
	}
	f.elements = 0
	f.seenHosts = make(map[string]struct{})
	f.main = cascadia.Query(doc, selMain)
	if f.main == nil {
		f.logger.Printf("filter: no main result container, block passes will be skipped")
	}

	passes := []struct {
		name string
		run  func(*html.Node)
	}{
		{"strip-ads", f.stripAds},
		{"block-filter", f.applyBlocklists},
		{"collapse-sections", f.collapseSections},
		{"normalize-style", f.normalizeStyle},
		{"rewrite-links", f.rewriteLinks},
		{"rewrite-assets", f.rewriteAssets},
	}
	for _, pass := range passes {
		pass.run(doc)
	}
	return doc
}

// stripAds removes result blocks carrying a recognized ad marker.
func (f *Filter) stripAds(*html.Node) {
	if f.main == nil {
		return
	}
	for _, div := range cascadia.QueryAll(f.main, selDivs) {
		for _, span := range cascadia.QueryAll(div, selSpans) {
			if hasAdContent(textContent(span)) {
				detach(div)
				break
			}
		}
	}
}

func hasAdContent(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.Contains(trimmed, adInfoMarker) {
		return true
	}
	for _, marker := range adMarkers {
		if strings.EqualFold(trimmed, marker) {
			return true
		}
	}
	return false
}

// applyBlocklists removes result blocks matching the configured title and
// URL patterns, strips the result-type tab strips, and scrubs block-list
// query fragments from visible text.
func (f *Filter) applyBlocklists(doc *html.Node) {
	f.removeBlockedTitles()
	f.removeBlockedURLs()
	f.removeTabStrips(doc)
	f.scrubSiteBlocks(doc)
}

func (f *Filter) removeBlockedTitles() {
	if f.main == nil || f.cfg.BlockTitle == "" {
		return
	}
	pattern, err := regexp.Compile(f.cfg.BlockTitle)
	if err != nil {
		f.logger.Printf("filter: invalid block title pattern %q: %v", f.cfg.BlockTitle, err)
		return
	}
	for _, div := range cascadia.QueryAll(f.main, selDivs) {
		for _, h := range cascadia.QueryAll(div, selHeadings) {
			if pattern.MatchString(textContent(h)) {
				detach(div)
				break
			}
		}
	}
}

func (f *Filter) removeBlockedURLs() {
	if f.main == nil || f.cfg.BlockURL == "" {
		return
	}
	pattern, err := regexp.Compile(f.cfg.BlockURL)
	if err != nil {
		f.logger.Printf("filter: invalid block url pattern %q: %v", f.cfg.BlockURL, err)
		return
	}
	for _, div := range cascadia.QueryAll(f.main, selDivs) {
		for _, a := range cascadia.QueryAll(div, selAnchors) {
			if pattern.MatchString(attrVal(a, "href")) {
				detach(div)
				break
			}
		}
	}
}

func (f *Filter) removeTabStrips(doc *html.Node) {
	if f.main != nil {
		for _, div := range cascadia.QueryAll(f.main, selMainTabs) {
			detach(div)
		}
		return
	}
	// Images tab pages have no main container; the strip carries a
	// different class there.
	for _, div := range cascadia.QueryAll(doc, selImageTabs) {
		detach(div)
	}
}

func (f *Filter) scrubSiteBlocks(doc *html.Node) {
	needle := f.cfg.blockString()
	if needle == "" {
		return
	}
	body := firstByTag(doc, "body")
	if body == nil {
		return
	}
	for _, tn := range textNodes(body) {
		if strings.Contains(tn.Data, needle) {
			tn.Data = strings.ReplaceAll(tn.Data, needle, "")
		}
	}
}

// normalizeStyle applies the structural cleanups that do not depend on link
// or asset rewriting: script removal, form retargeting, footer and header
// cleanup, button and svg removal, and small styling fixes.
func (f *Filter) normalizeStyle(doc *html.Node) {
	for _, script := range cascadia.QueryAll(doc, selScripts) {
		detach(script)
	}
	for _, button := range cascadia.QueryAll(doc, selButtons) {
		detach(button)
	}
	for _, svg := range cascadia.QueryAll(doc, selSVGs) {
		detach(svg)
	}

	// Submissions go back through the proxy's own search endpoint.
	if form := firstByTag(doc, "form"); form != nil {
		method := "POST"
		if f.cfg.GetOnly {
			method = "GET"
		}
		setAttr(form, "method", method)
		setAttr(form, "action", "search")
	}

	// Footer divs that hold more than page navigation get removed.
	if footer := firstByTag(doc, "footer"); footer != nil {
		for _, div := range directChildElements(footer, "div") {
			if len(cascadia.QueryAll(div, selAnchors)) > 3 {
				detach(div)
			}
		}
	}
	if header := firstByTag(doc, "header"); header != nil {
		detach(header)
	}

	if f.opt.Mobile {
		if logo := cascadia.Query(doc, cascadia.MustCompile("a.l")); logo != nil {
			setAttr(logo, "style",
				"display:flex; justify-content:center; align-items:center; color:#685e79; font-size:18px; ")
		}
	}
}

// rewriteLinks classifies and rewrites every anchor in the document.
func (f *Filter) rewriteLinks(doc *html.Node) {
	for _, a := range cascadia.QueryAll(doc, selAnchors) {
		if a.Parent == nil {
			continue // removed by an earlier link's ancestor walk
		}
		f.rewriteLink(a)
	}
}

// rewriteAssets relays every embeddable resource and rewrites CSS url()
// references inside inline style blocks.
func (f *Filter) rewriteAssets(doc *html.Node) {
	for _, img := range elementsByTag(doc, "img") {
		if hasAttr(img, "src") {
			f.RewriteAsset(img, "image/png", "src")
		}
	}
	for _, audio := range elementsByTag(doc, "audio") {
		if hasAttr(audio, "src") {
			f.RewriteAsset(audio, "audio/mpeg", "src")
		}
	}
	for _, style := range cascadia.QueryAll(doc, selStyles) {
		if style.FirstChild != nil && style.FirstChild.Type == html.TextNode {
			style.FirstChild.Data = f.RewriteCSS(style.FirstChild.Data)
		}
	}
}
