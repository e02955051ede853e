package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/philverify/feedwatch/adapter"
	"github.com/philverify/feedwatch/dom"
)

// expandedMarker records that the expand affordance was already activated
// for a post, keeping the activation single-shot.
const expandedMarker = "data-fw-expanded"

// Text extracts the caption text of a post.
//
// Order: trigger the platform's "see more" affordance once (truncated text
// fails the length threshold and yields false negatives), then try the
// adapter's text selectors in priority order, then fall back to scanning
// generic text-bearing leaves.
func Text(tree *dom.Tree, post *html.Node, cfg adapter.Config, opts Options) string {
	opts.defaults()

	expandOnce(tree, post, cfg)

	for _, sel := range cfg.TextSelectors {
		for _, n := range dom.QueryAll(post, sel) {
			if inNestedPost(post, n, cfg) {
				continue
			}
			text := CleanText(nodeText(n))
			if len(text) >= opts.MinTextLen {
				return text
			}
		}
	}

	return leafFallback(post, cfg, opts)
}

// expandOnce activates the first matching expand affordance, best-effort.
// Failures are swallowed: an unclickable affordance just means we read the
// truncated text.
func expandOnce(tree *dom.Tree, post *html.Node, cfg adapter.Config) {
	if dom.HasAttr(post, expandedMarker) {
		return
	}
	dom.SetAttr(post, expandedMarker, "1")

	for _, sel := range cfg.ExpandSelectors {
		if n := dom.Query(post, sel); n != nil && !inNestedPost(post, n, cfg) {
			_ = tree.Activate(n)
			return
		}
	}
}

// leafFallback joins generic text-bearing leaves inside the post, skipping
// raw link text (anything starting with "http") and leaves belonging to a
// nested post.
func leafFallback(post *html.Node, cfg adapter.Config, opts Options) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.A:
				return
			}
			if dom.MatchesAny(n, cfg.PostSelectors) && n != post {
				return // nested post subtree
			}
			if isTextLeaf(n) {
				text := CleanText(nodeText(n))
				if text != "" && !strings.HasPrefix(text, "http") {
					parts = append(parts, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(post)

	joined := CleanText(strings.Join(parts, " "))
	if len(joined) < opts.MinTextLen {
		return ""
	}
	return joined
}

// isTextLeaf reports whether n is a text-bearing element with no element
// children — the unit the fallback scanner works in.
func isTextLeaf(n *html.Node) bool {
	switch n.DataAtom {
	case atom.P, atom.Span, atom.Div, atom.Blockquote,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.Li:
	default:
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return false
		}
	}
	return n.FirstChild != nil
}
