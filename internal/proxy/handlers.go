package proxy

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"veil/filter"
	"veil/pathcipher"
)

// upstreamSearch is the origin's basic-HTML query endpoint; the built
// query string is appended directly.
const upstreamSearch = "https://www.google.com/search?gbv=1&q="

// blankGIF stands in for images the relay could not retrieve, so a broken
// upstream asset degrades to an invisible pixel instead of an error page.
var blankGIF, _ = base64.StdEncoding.DecodeString(
	"R0lGODlhAQABAIAAAP///////yH5BAEKAAEALAAAAAABAAEAAAICTAEAOw==")

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/home" {
		http.NotFound(w, r)
		return
	}
	if _, err := s.sessions.ensure(w, r); err != nil {
		s.logger.Printf("home: session setup: %v", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := strings.ReplaceAll(indexHTML, "{root}", s.rootURL(r))
	_, _ = w.Write([]byte(page))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.ensure(w, r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	cipher, err := s.sessions.cipher(sess)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	query := strings.TrimSpace(r.FormValue("q"))
	if query == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	// Related-search, pagination, and spelling links carry the query as an
	// encrypted token; recover the plaintext before anything else sees it.
	if pathcipher.IsToken(query) {
		dec, err := cipher.Decrypt(query)
		if err != nil {
			http.Error(w, "This token is not valid for the current session. Reload the page that referenced it.", http.StatusUnauthorized)
			return
		}
		query = strings.TrimSpace(dec)
	}

	// A "! " prefix asks to jump straight to the first result.
	lucky := strings.HasPrefix(query, "! ")
	if lucky {
		query = strings.TrimSpace(strings.TrimPrefix(query, "! "))
	}

	// Operator queries never reach the upstream engine.
	if !lucky {
		if dest := s.bangs.Resolve(query); dest != "" {
			http.Redirect(w, r, dest, http.StatusFound)
			return
		}
	}

	cfg := s.sessions.config(sess)
	built := buildSearchQuery(cfg.ApplyBlocks(query), r.URL.Query(), r.URL.Query().Get("near"), s.cfg.Language)
	pageURL := upstreamSearch + built

	body, _, err := s.fetcher.fetch(r.Context(), pageURL, r.UserAgent())
	if err != nil {
		s.logger.Printf("search: %v", err)
		http.Error(w, "results temporarily unavailable", http.StatusBadGateway)
		return
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		s.logger.Printf("search: parse results: %v", err)
		http.Error(w, "results temporarily unavailable", http.StatusBadGateway)
		return
	}

	f := filter.New(cipher, cfg, filter.Options{
		RootURL:     s.rootURL(r),
		PageURL:     pageURL,
		Query:       query,
		Mobile:      isMobile(r.UserAgent()),
		RenderBrand: brandFragment,
		Logger:      s.logger,
	})
	clean := f.Clean(doc)

	if lucky {
		if dest := firstResultLink(clean); dest != "" {
			http.Redirect(w, r, dest, http.StatusSeeOther)
			return
		}
		// No external result to jump to; fall through to the page.
	}
	s.sessions.noteIssued(sess, f.Elements())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := html.Render(w, clean); err != nil {
		s.logger.Printf("search: render: %v", err)
	}
}

// firstResultLink returns the first rewritten external destination in a
// cleaned results page. Internal references (search tokens, relay links)
// are relative after rewriting, so an absolute href is an external result.
func firstResultLink(doc *html.Node) string {
	var dest string
	var visit func(n *html.Node) bool
	visit = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" && strings.HasPrefix(a.Val, "http") {
					dest = a.Val
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if visit(c) {
				return true
			}
		}
		return false
	}
	if doc != nil {
		visit(doc)
	}
	return dest
}

// handleElement relays a single page asset named by an encrypted token.
// Tokens from expired or rotated keys fail authentication and are refused;
// failed image fetches degrade to a blank pixel so result pages stay intact.
func (s *Server) handleElement(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.ensure(w, r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	cipher, err := s.sessions.cipher(sess)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	tok := r.URL.Query().Get("url")
	mime := r.URL.Query().Get("type")
	if mime == "" {
		mime = "application/octet-stream"
	}

	src, err := cipher.Decrypt(tok)
	if err != nil {
		if errors.Is(err, pathcipher.ErrAuthentication) {
			http.Error(w, "This token is not valid for the current session. Reload the page that referenced it.", http.StatusUnauthorized)
			return
		}
		http.Error(w, "bad asset reference", http.StatusBadRequest)
		return
	}

	if body, contentType, ok := s.cache.get(src); ok {
		s.sessions.noteServed(sess)
		serveAsset(w, body, contentType)
		return
	}

	body, contentType, err := s.fetcher.fetch(r.Context(), src, r.UserAgent())
	if err != nil {
		s.logger.Printf("element: %v", err)
		s.sessions.noteServed(sess)
		if strings.HasPrefix(mime, "image/") {
			serveAsset(w, blankGIF, "image/gif")
			return
		}
		http.Error(w, "asset unavailable", http.StatusBadGateway)
		return
	}
	if contentType == "" {
		contentType = mime
	}
	if strings.HasPrefix(contentType, "image/") || strings.HasPrefix(mime, "image/") {
		body, contentType = reencodeImage(body, contentType)
	}

	s.cache.store(src, body, contentType)
	s.sessions.noteServed(sess)
	serveAsset(w, body, contentType)
}

func serveAsset(w http.ResponseWriter, body []byte, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(body)
}

// handleWindow relays a whole external page through the proxy, stripping
// or relaying its subresources so the user's address never reaches the
// destination directly.
func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.ensure(w, r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	cipher, err := s.sessions.cipher(sess)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	location := r.URL.Query().Get("location")
	noJS := r.URL.Query().Get("nojs") == "1"
	if pathcipher.IsToken(location) {
		dec, err := cipher.Decrypt(location)
		if err != nil {
			http.Error(w, "This link is not valid for the current session. Reload the page that referenced it.", http.StatusUnauthorized)
			return
		}
		location = dec
	}
	target, err := url.Parse(location)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		http.Error(w, "bad location", http.StatusBadRequest)
		return
	}

	body, _, err := s.fetcher.fetch(r.Context(), target.String(), r.UserAgent())
	if err != nil {
		s.logger.Printf("window: %v", err)
		http.Error(w, "page unavailable", http.StatusBadGateway)
		return
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		http.Error(w, "page unavailable", http.StatusBadGateway)
		return
	}

	f := filter.New(cipher, s.sessions.config(sess), filter.Options{
		RootURL: s.rootURL(r),
		PageURL: target.String(),
		Logger:  s.logger,
	})
	s.rewriteWindowPage(f, cipher, doc, target, noJS)
	s.sessions.noteIssued(sess, f.Elements())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := html.Render(w, doc); err != nil {
		s.logger.Printf("window: render: %v", err)
	}
}

// handleImgres unwraps the origin's image-result indirection and sends the
// client straight to the relayed target.
func (s *Server) handleImgres(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.ensure(w, r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	target := r.URL.Query().Get("imgurl")
	if pathcipher.IsToken(target) {
		cipher, err := s.sessions.cipher(sess)
		if err != nil {
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		dec, err := cipher.Decrypt(target)
		if err != nil {
			http.Error(w, "This token is not valid for the current session.", http.StatusUnauthorized)
			return
		}
		target = dec
	}
	if target == "" {
		http.Error(w, "missing imgurl", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleAutocomplete serves operator suggestions in the standard
// two-element suggestion format. Only queries that look like the start of
// an operator produce suggestions; everything else returns an empty list
// so no partial query leaves the proxy.
func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.FormValue("q")
	var suggestions []string
	if strings.HasPrefix(q, "!") && len(q) > 1 && !strings.HasPrefix(q, "! ") {
		suggestions = s.bangs.Suggest(q)
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode([]any{q, suggestions})
}

// configView is the externally visible shape of session preferences. Only
// these keys are user-settable; session keys and identifiers never appear.
type configView struct {
	Block      string `json:"block"`
	BlockTitle string `json:"block_title"`
	BlockURL   string `json:"block_url"`
	Minimal    bool   `json:"minimal"`
	NewTab     bool   `json:"new_tab"`
	AnonView   bool   `json:"anon_view"`
	SiteAlts   bool   `json:"site_alts"`
	NoJS       bool   `json:"nojs"`
	GetOnly    bool   `json:"get_only"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.ensure(w, r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	cfg := s.sessions.config(sess)

	switch r.Method {
	case http.MethodGet:
		view := configView{
			Block:      strings.Join(cfg.Block, ","),
			BlockTitle: cfg.BlockTitle,
			BlockURL:   cfg.BlockURL,
			Minimal:    cfg.Minimal,
			NewTab:     cfg.NewTab,
			AnonView:   cfg.AnonView,
			SiteAlts:   cfg.SiteAlts,
			NoJS:       cfg.NoJS,
			GetOnly:    cfg.GetOnly,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(view)
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		cfg.Block = splitSites(r.PostForm.Get("block"))
		cfg.BlockTitle = r.PostForm.Get("block_title")
		cfg.BlockURL = r.PostForm.Get("block_url")
		cfg.Minimal = formBool(r.PostForm, "minimal")
		cfg.NewTab = formBool(r.PostForm, "new_tab")
		cfg.AnonView = formBool(r.PostForm, "anon_view")
		cfg.SiteAlts = formBool(r.PostForm, "site_alts")
		cfg.NoJS = formBool(r.PostForm, "nojs")
		cfg.GetOnly = formBool(r.PostForm, "get_only")
		s.sessions.updateConfig(sess, cfg)
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func splitSites(raw string) []string {
	var sites []string
	for _, site := range strings.Split(raw, ",") {
		if site = strings.TrimSpace(site); site != "" {
			sites = append(sites, site)
		}
	}
	return sites
}

func formBool(form url.Values, key string) bool {
	switch strings.ToLower(form.Get(key)) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}

func (s *Server) handleOpensearch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/opensearchdescription+xml")
	_, _ = w.Write([]byte(strings.ReplaceAll(opensearchXML, "{root}", s.rootURL(r))))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok\n"))
}

func isMobile(ua string) bool {
	return strings.Contains(ua, "Android") || strings.Contains(ua, "iPhone")
}

// brandFragment supplies the markup swapped in for origin brand imagery.
func brandFragment(string) string {
	return `<span class="veil-brand">veil</span>`
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>veil</title>
<link rel="search" type="application/opensearchdescription+xml" title="veil" href="{root}/opensearch.xml">
<style>
body { font-family: sans-serif; max-width: 40em; margin: 4em auto; padding: 0 1em; }
input[type=text] { width: 100%; padding: .5em; font-size: 1.1em; }
.footer { margin-top: 3em; font-size: .8em; color: #666; }
</style>
</head>
<body>
<h1>veil</h1>
<form action="{root}/search" method="get">
<input type="text" name="q" autofocus autocomplete="off" placeholder="Search privately&hellip;">
</form>
<p class="footer"><a href="{root}/config">preferences</a></p>
</body>
</html>
`

const opensearchXML = `<?xml version="1.0" encoding="UTF-8"?>
<OpenSearchDescription xmlns="http://a9.com/-/spec/opensearch/1.1/">
  <ShortName>veil</ShortName>
  <Description>Anonymous search</Description>
  <InputEncoding>UTF-8</InputEncoding>
  <Url type="text/html" method="get" template="{root}/search?q={searchTerms}"/>
  <Url type="application/x-suggestions+json" template="{root}/autocomplete?q={searchTerms}"/>
</OpenSearchDescription>
`
