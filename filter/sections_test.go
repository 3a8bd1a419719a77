package filter

import (
	"strings"
	"testing"
)

// sectionFixture builds a result block whose first child div holds n child
// divs, the first carrying the section label.
func sectionFixture(n int, label string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="main"><div class="section"><div class="wrap">`)
	b.WriteString(`<div><span>` + label + `</span></div>`)
	for i := 1; i < n; i++ {
		b.WriteString(`<div>entry</div>`)
	}
	b.WriteString(`</div></div></div></body></html>`)
	return b.String()
}

func TestCollapseBelowThreshold(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{}, Options{})
	doc := f.Clean(parseDoc(t, sectionFixture(6, "Related searches")))
	if firstByTag(doc, "details") != nil {
		t.Fatal("six-grandchild block was collapsed")
	}
	if !strings.Contains(render(t, doc), "Related searches") {
		t.Fatal("label element removed from uncollapsed block")
	}
}

func TestCollapseAtThreshold(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{}, Options{})
	doc := f.Clean(parseDoc(t, sectionFixture(8, "People also ask")))
	details := firstByTag(doc, "details")
	if details == nil {
		t.Fatal("eight-grandchild block not collapsed")
	}
	summary := firstByTag(details, "summary")
	if got := strings.TrimSpace(textContent(summary)); got != "People also ask" {
		t.Fatalf("summary = %q", got)
	}
	// The label element itself is decomposed, the rest wrapped.
	if got := len(elementsByTag(details, "div")); got != 8 {
		t.Fatalf("details wraps %d divs, want wrapper plus 7 entries", got)
	}
}

func TestCollapseSubtitle(t *testing.T) {
	t.Parallel()
	fixture := `<html><body><div id="main"><div class="section"><div class="wrap">
<div><span>Top stories</span><span>更多</span></div>
<div>a</div><div>b</div><div>c</div><div>d</div><div>e</div><div>f</div><div>g</div>
</div></div></div></body></html>`
	f := newTestFilter(t, Config{}, Options{})
	doc := f.Clean(parseDoc(t, fixture))
	summary := firstByTag(doc, "summary")
	if summary == nil {
		t.Fatal("block not collapsed")
	}
	text := textContent(summary)
	if !strings.Contains(text, "Top stories") || !strings.Contains(text, "(更多)") {
		t.Fatalf("summary text = %q, want label with parenthesized subtitle", text)
	}
}

func TestCollapseFallbackLabel(t *testing.T) {
	t.Parallel()
	fixture := `<html><body><div id="main"><div class="section"><div class="wrap">
<div></div><div></div><div></div><div></div><div></div><div></div><div></div>
</div></div></div></body></html>`
	f := newTestFilter(t, Config{}, Options{})
	doc := f.Clean(parseDoc(t, fixture))
	summary := firstByTag(doc, "summary")
	if summary == nil {
		t.Fatal("block not collapsed")
	}
	if got := strings.TrimSpace(textContent(summary)); got != "Collapsed Results" {
		t.Fatalf("fallback label = %q", got)
	}
}

func TestCollapseIdempotent(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{}, Options{})
	doc := f.Clean(parseDoc(t, sectionFixture(8, "People also ask")))
	before := render(t, doc)

	g := newTestFilter(t, Config{}, Options{})
	g.main = firstByTag(doc, "div") // div#main is the first div
	g.collapseSections(doc)
	if after := render(t, doc); after != before {
		t.Fatalf("collapsing an already-collapsed tree changed it:\nbefore: %s\nafter:  %s", before, after)
	}
}

func TestMinimalModeRemovesSections(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{Minimal: true}, Options{})
	doc := f.Clean(parseDoc(t, sectionFixture(8, "Related searches")))
	if firstByTag(doc, "details") != nil {
		t.Fatal("minimal mode wrapped instead of removing")
	}
	if strings.Contains(render(t, doc), "entry") {
		t.Fatal("section content survived minimal mode")
	}
}

func TestMinimalModeRemovesNamedSections(t *testing.T) {
	t.Parallel()
	// Below threshold, but carrying a named minimal-mode section label.
	f := newTestFilter(t, Config{Minimal: true}, Options{})
	doc := f.Clean(parseDoc(t, sectionFixture(3, "Top stories")))
	if strings.Contains(render(t, doc), "Top stories") {
		t.Fatal("named section survived minimal mode")
	}
}

func TestMinimalModeRemovesExternalServiceBlocks(t *testing.T) {
	t.Parallel()
	fixture := `<html><body><div id="main"><div class="section"><div class="wrap">
<div><span>Twitter › someone</span></div><div>tweet</div>
</div></div></div></body></html>`
	f := newTestFilter(t, Config{Minimal: true}, Options{})
	doc := f.Clean(parseDoc(t, fixture))
	if strings.Contains(render(t, doc), "tweet") {
		t.Fatal("external-service block survived minimal mode")
	}
}
