package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrFetch wraps all outbound retrieval failures so callers can pick the
// right degradation (placeholder for images, explicit error otherwise).
var ErrFetch = errors.New("proxy: upstream fetch failed")

// maxFetchBytes caps relayed payloads; anything larger is cut off rather
// than buffered without bound.
const maxFetchBytes = 16 << 20

// mobileUA and desktopUA are deliberately mangled user-agent templates: the
// shape passes upstream sniffing while identifying no real browser.
const (
	mobileUA  = "%s/5.0 (Android 10; Mobile; rv:109.0) Gecko/109.0 %s/115.0"
	desktopUA = "%s/5.0 (X11; %s x86_64; rv:109.0) Gecko/20100101 %s/115.0"
)

// genUserAgent fabricates a throwaway user agent, keeping only the
// mobile/desktop distinction from the client's real one.
func genUserAgent(realUA string) string {
	mozilla := pick("Moo", "Woah", "Bro", "Slow") + "zilla"
	firefox := pick("Choir", "Squier", "Higher", "Wire") + "fox"
	linux := pick("Win", "Sin", "Gin", "Fin", "Kin") + "ux"
	if strings.Contains(realUA, "Android") || strings.Contains(realUA, "iPhone") {
		return fmt.Sprintf(mobileUA, mozilla, firefox)
	}
	return fmt.Sprintf(desktopUA, mozilla, linux, firefox)
}

func pick(options ...string) string {
	return options[rand.Intn(len(options))]
}

// fetcher performs outbound retrieval on the user's behalf with a bounded
// timeout and a fabricated identity.
type fetcher struct {
	client *http.Client
}

func newFetcher(timeout time.Duration) *fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &fetcher{client: &http.Client{Timeout: timeout}}
}

// fetch retrieves target and returns the body and declared content type.
func (f *fetcher) fetch(ctx context.Context, target, realUA string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", genUserAgent(realUA))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("%w: upstream status %s", ErrFetch, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// buildSearchQuery assembles the upstream query string: the escaped query
// plus the allow-listed auxiliary parameters. A ":past <range>" suffix in
// the query becomes the engine's time-range argument.
func buildSearchQuery(query string, args url.Values, nearCity, language string) string {
	tbs := ""
	if i := strings.Index(query, ":past"); i != -1 {
		timeRange := strings.TrimSpace(query[i+len(":past"):])
		if timeRange != "" {
			tbs = "&tbs=qdr:" + strings.ToLower(timeRange[:1])
			query = strings.TrimSpace(query[:i])
		}
	}

	built := url.QueryEscape(query)
	built += tbs
	if tbm := args.Get("tbm"); tbm != "" {
		built += "&tbm=" + url.QueryEscape(tbm)
	}
	if start := args.Get("start"); start != "" {
		built += "&start=" + url.QueryEscape(start)
	}
	if nearCity != "" {
		built += "&near=" + url.QueryEscape(nearCity)
	}
	if language != "" {
		built += "&lr=" + language + "&hl=" + strings.TrimPrefix(language, "lang_")
	}
	return built
}
