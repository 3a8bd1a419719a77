package filter

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attribute-bag accessors for *html.Node. The parser keeps attributes in a
// slice; these helpers give the map-like view the rewrite passes want.

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	if class == "" {
		return false
	}
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func isElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

// detach removes n from its parent, the equivalent of decomposing the
// subtree. Safe to call on an already-detached node.
func detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// replaceNode swaps old for replacement in old's parent.
func replaceNode(old, replacement *html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	parent.InsertBefore(replacement, old)
	parent.RemoveChild(old)
}

// wrapNode inserts wrapper at n's position and moves n inside it.
func wrapNode(n, wrapper *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.InsertBefore(wrapper, n)
	parent.RemoveChild(n)
	wrapper.AppendChild(n)
}

func newElement(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag}
}

func newText(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

// walk visits n and every descendant depth-first. The visitor must not
// detach nodes; use one of the snapshot collectors below when mutating.
func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

// collect returns a snapshot slice of every descendant element (including n
// itself when it matches), so callers can mutate the tree while iterating.
func collect(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	walk(n, func(c *html.Node) {
		if c.Type == html.ElementNode && match(c) {
			out = append(out, c)
		}
	})
	return out
}

func elementsByTag(n *html.Node, tag string) []*html.Node {
	return collect(n, func(c *html.Node) bool { return c.Data == tag })
}

func firstByTag(n *html.Node, tag string) *html.Node {
	var found *html.Node
	var search func(*html.Node) bool
	search = func(c *html.Node) bool {
		if c.Type == html.ElementNode && c.Data == tag {
			found = c
			return true
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			if search(ch) {
				return true
			}
		}
		return false
	}
	search(n)
	return found
}

// directChildElements returns n's immediate children with the given tag.
func directChildElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c, tag) {
			out = append(out, c)
		}
	}
	return out
}

// textContent concatenates every text run under n.
func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

// textRuns returns the non-empty text runs under n in document order,
// mirroring the iteration the label extraction depends on.
func textRuns(n *html.Node) []string {
	var out []string
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			out = append(out, c.Data)
		}
	})
	return out
}

// textNodes returns the non-empty text nodes under n in document order.
func textNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			out = append(out, c)
		}
	})
	return out
}

// parseFragment parses an HTML fragment in body context.
func parseFragment(fragment string) []*html.Node {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return nil
	}
	return nodes
}
