package proxy

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"veil/filter"
	"veil/pathcipher"
)

// rewriteWindowPage prepares a relayed external page for viewing through
// the proxy: subresources go through the element relay, navigation stays
// inside the window endpoint, and embedded frames are dropped outright.
func (s *Server) rewriteWindowPage(f *filter.Filter, cipher *pathcipher.Cipher, doc *html.Node, base *url.URL, noJS bool) {
	var drop []*html.Node
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script":
				if noJS {
					drop = append(drop, n)
				} else if nodeAttr(n, "src") != "" {
					absolutizeAttr(n, "src", base)
					f.RewriteAsset(n, "application/javascript", "src")
				}
			case "iframe", "frame", "object", "embed":
				drop = append(drop, n)
			case "img", "audio", "video", "source":
				mime := "image/png"
				switch n.Data {
				case "audio", "source":
					mime = "audio/mpeg"
				case "video":
					mime = "video/mp4"
				}
				for _, attr := range []string{"src", "data-src"} {
					if nodeAttr(n, attr) != "" {
						absolutizeAttr(n, attr, base)
						f.RewriteAsset(n, mime, attr)
					}
				}
				for _, attr := range []string{"srcset", "data-srcset"} {
					if set := nodeAttr(n, attr); set != "" {
						setNodeAttr(n, attr, absolutizeSrcset(set, base))
					}
				}
			case "link":
				if strings.EqualFold(nodeAttr(n, "rel"), "stylesheet") && nodeAttr(n, "href") != "" {
					absolutizeAttr(n, "href", base)
					f.RewriteAsset(n, "text/css", "href")
				}
			case "style":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					n.FirstChild.Data = f.RewriteCSS(n.FirstChild.Data)
				}
			case "a":
				s.rewriteWindowLink(cipher, n, base, noJS)
			case "form":
				// Relayed pages never submit back through the proxy.
				setNodeAttr(n, "action", "")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)

	for _, n := range drop {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// rewriteWindowLink keeps navigation inside the window relay by replacing
// each destination with an encrypted location token.
func (s *Server) rewriteWindowLink(cipher *pathcipher.Cipher, link *html.Node, base *url.URL, noJS bool) {
	href := nodeAttr(link, "href")
	if href == "" || strings.HasPrefix(href, "#") {
		return
	}
	abs := resolveRef(href, base)
	if abs == "" {
		return
	}
	tok, err := cipher.Encrypt(abs)
	if err != nil {
		s.logger.Printf("window: encrypt link: %v", err)
		return
	}
	dest := "window?location=" + tok
	if noJS {
		dest += "&nojs=1"
	}
	setNodeAttr(link, "href", dest)
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setNodeAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// resolveRef resolves a reference against the relayed page's URL and keeps
// only plain web destinations.
func resolveRef(ref string, base *url.URL) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(parsed)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func absolutizeAttr(n *html.Node, key string, base *url.URL) {
	val := nodeAttr(n, key)
	if val == "" || strings.HasPrefix(val, "data:") {
		return
	}
	if abs := resolveRef(val, base); abs != "" {
		setNodeAttr(n, key, abs)
	}
}

// absolutizeSrcset resolves every candidate URL of a srcset attribute.
func absolutizeSrcset(set string, base *url.URL) string {
	candidates := strings.Split(set, ",")
	for i, cand := range candidates {
		fields := strings.Fields(strings.TrimSpace(cand))
		if len(fields) == 0 {
			continue
		}
		if abs := resolveRef(fields[0], base); abs != "" {
			fields[0] = abs
		}
		candidates[i] = strings.Join(fields, " ")
	}
	return strings.Join(candidates, ", ")
}
