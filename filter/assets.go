package filter

import (
	"net/url"
	"strings"

	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// RewriteAsset replaces the source attribute of an embeddable resource with
// an encrypted relay-endpoint reference so the fetch happens through the
// proxy. Data URIs are left untouched, protocol-relative sources are
// upgraded to https, and the origin's own brand assets are swapped for the
// proxy's branding instead of relayed. Exposed for the whole-page relay
// path as well as the orchestrated pass.
func (f *Filter) RewriteAsset(el *html.Node, mime, attr string) {
	fields := strings.Fields(attrVal(el, attr))
	if len(fields) == 0 {
		return
	}
	src := fields[0]

	if strings.HasPrefix(src, "data:") {
		return
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}

	switch {
	case strings.HasPrefix(src, brandLogoPrefix):
		f.replaceWithBrand(el)
		return
	case strings.HasPrefix(src, brandMiniLogoURL):
		// The compact logo doubles as a home link.
		setAttr(el, "src", "static/img/favicon/apple-icon.png")
		if el.Parent != nil && isElement(el.Parent, "a") {
			setAttr(el.Parent, "href", "home")
		}
		return
	case strings.HasPrefix(src, brandImagePrefix), strings.Contains(src, brandStaticHost):
		setAttr(el, "src", blankPixel)
		return
	}

	tok, err := f.encryptPath(src, true)
	if err != nil {
		f.logger.Printf("filter: encrypt asset src %q: %v", src, err)
		return
	}
	setAttr(el, attr, f.relayRef(tok, mime))
}

// relayRef builds a relay-endpoint reference for an encrypted source token.
func (f *Filter) relayRef(tok, mime string) string {
	return f.opt.RootURL + "/element?url=" + tok + "&type=" + url.QueryEscape(mime)
}

// replaceWithBrand swaps an origin brand element for the proxy's own
// branding fragment, or a blank pixel when no renderer is wired.
func (f *Filter) replaceWithBrand(el *html.Node) {
	if f.opt.RenderBrand == nil {
		setAttr(el, "src", blankPixel)
		return
	}
	nodes := parseFragment(f.opt.RenderBrand("logo"))
	if len(nodes) == 0 || el.Parent == nil {
		setAttr(el, "src", blankPixel)
		return
	}
	for _, n := range nodes {
		el.Parent.InsertBefore(n, el)
	}
	detach(el)
}

// RewriteCSS replaces every remote url() reference in a CSS string with an
// image-typed relay reference, resolving relative references against the
// page URL. Data URIs stay untouched. Parse failures leave the CSS as-is;
// broken styling is preferable to leaking styling fetches.
func (f *Filter) RewriteCSS(cssText string) string {
	sheet, err := parser.Parse(cssText)
	if err != nil {
		f.logger.Printf("filter: css parse failed, styles left unrewritten: %v", err)
		return cssText
	}

	seen := make(map[string]struct{})
	var refs []string
	var collectRules func(rules []*cssast.Rule)
	collectRules = func(rules []*cssast.Rule) {
		for _, rule := range rules {
			for _, decl := range rule.Declarations {
				for _, ref := range cssURLRefs(decl.Value) {
					if _, dup := seen[ref]; dup {
						continue
					}
					seen[ref] = struct{}{}
					refs = append(refs, ref)
				}
			}
			collectRules(rule.Rules)
		}
	}
	collectRules(sheet.Rules)

	for _, ref := range refs {
		if strings.HasPrefix(ref, "data:") {
			continue
		}
		abs := absoluteURL(ref, f.opt.PageURL)
		tok, err := f.encryptPath(abs, true)
		if err != nil {
			f.logger.Printf("filter: encrypt css ref %q: %v", ref, err)
			continue
		}
		cssText = strings.ReplaceAll(cssText, ref, f.relayRef(tok, "image/png"))
	}
	return cssText
}

// cssURLRefs extracts the raw targets of url(...) tokens in a declaration
// value.
func cssURLRefs(value string) []string {
	var out []string
	lower := strings.ToLower(value)
	for i := 0; i < len(value); {
		start := strings.Index(lower[i:], "url(")
		if start < 0 {
			break
		}
		start += i + len("url(")
		end := strings.IndexByte(value[start:], ')')
		if end < 0 {
			break
		}
		ref := strings.TrimSpace(value[start : start+end])
		ref = strings.Trim(ref, `"'`)
		if ref != "" {
			out = append(out, ref)
		}
		i = start + end + 1
	}
	return out
}

// absoluteURL resolves ref against base. Scheme-relative references are
// upgraded to https; already-absolute references pass through.
func absoluteURL(ref, base string) string {
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if parsed.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return ref
	}
	return baseURL.ResolveReference(parsed).String()
}
