package filter

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// collapseSections restructures long auxiliary result sections ("people also
// ask", "related searches") into disclosure widgets. These are the only
// sections whose first child div holds at least resultChildLimit child divs.
// In reduced-verbosity mode the sections are removed instead of wrapped.
//
// Collapsing is idempotent: a wrapped section's disclosure container is not
// a div, so re-running the pass finds no candidate grandchildren.
func (f *Filter) collapseSections(*html.Node) {
	if f.main == nil {
		return
	}
	for _, result := range cascadia.QueryAll(f.main, selDivs) {
		if result.Parent == nil {
			continue
		}
		children := sectionChildDivs(result)
		if f.cfg.Minimal {
			if removeMinimalSection(result, children) {
				continue
			}
		}
		if len(children) < resultChildLimit {
			continue
		}

		label, subtitle := extractSectionLabel(children)

		// The wrap target is the first child's parent, i.e. the first
		// child div of the result block.
		var parent *html.Node
		for _, child := range children {
			if child.Parent != nil {
				parent = child.Parent
				break
			}
		}
		if parent == nil {
			continue
		}
		if f.cfg.Minimal {
			detach(parent)
			continue
		}

		details := newElement("details")
		summary := newElement("summary")
		summary.AppendChild(newText(label))
		if subtitle != "" {
			span := newElement("span")
			span.AppendChild(newText(" (" + subtitle + ")"))
			summary.AppendChild(span)
		}
		details.AppendChild(summary)
		wrapNode(parent, details)
	}
}

// sectionChildDivs returns the grandchildren that make a block a collapse
// candidate: the direct div children of the block's first direct div child.
func sectionChildDivs(result *html.Node) []*html.Node {
	firsts := directChildElements(result, "div")
	if len(firsts) == 0 {
		return nil
	}
	return directChildElements(firsts[0], "div")
}

// removeMinimalSection drops blocks that reduced-verbosity mode excludes
// outright: named auxiliary sections and blocks carrying the external
// service marker. Reports whether the block was removed.
func removeMinimalSection(result *html.Node, children []*html.Node) bool {
	for _, child := range children {
		var buf bytes.Buffer
		if err := html.Render(&buf, child); err != nil {
			continue
		}
		rendered := buf.String()
		for _, name := range minimalSections {
			if strings.Contains(rendered, ">"+name+"</span") {
				detach(result)
				return true
			}
		}
		if strings.Contains(rendered, externalServiceMarker) {
			detach(result)
			return true
		}
	}
	return false
}

// extractSectionLabel pulls the section title out of the first grandchild
// bearing text and decomposes that element. Extra text runs become a
// parenthesized subtitle. Falls back to a generic label when no grandchild
// carries text.
func extractSectionLabel(children []*html.Node) (label, subtitle string) {
	label = "Collapsed Results"
	for _, child := range children {
		runs := textRuns(child)
		if len(runs) == 0 {
			continue
		}
		label = runs[0]
		if len(runs) > 1 {
			subtitle = strings.Join(runs[1:], "")
		}
		detach(child)
		break
	}
	return label, subtitle
}
