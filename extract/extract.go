// Package extract reads verifiable content out of a single post node.
//
// Three independent, best-effort extractors produce the content triple:
// caption text, shared link, lead image. Each applies the platform adapter's
// hints in priority order and falls back to generic heuristics. A post where
// all three come back empty yields no verification attempt at all; that
// decision belongs to the caller.
package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/philverify/feedwatch/adapter"
	"github.com/philverify/feedwatch/dom"
)

// MinTextLen is the minimum trimmed caption length worth verifying.
// Trivial captions ("lol", timestamps) are noise for the classifier.
const MinTextLen = 40

// MinImagePx is the minimum rendered dimension for a content image.
// Smaller images are avatars, icons, or tracking pixels.
const MinImagePx = 100

// Triple is the verifiable content read from one post. Empty string means
// absent. Built fresh per verification attempt, never cached on the node.
type Triple struct {
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Empty reports whether nothing extractable was found.
func (t Triple) Empty() bool {
	return t.Text == "" && t.URL == "" && t.ImageURL == ""
}

// Options tunes extraction. Zero values take the package defaults.
type Options struct {
	// BaseURL is the page location, used to absolutise relative links and
	// to recognise intra-platform links that are not shared content.
	BaseURL *url.URL
	// MinTextLen overrides MinTextLen.
	MinTextLen int
	// MinImagePx overrides MinImagePx.
	MinImagePx int
}

func (o *Options) defaults() {
	if o.MinTextLen <= 0 {
		o.MinTextLen = MinTextLen
	}
	if o.MinImagePx <= 0 {
		o.MinImagePx = MinImagePx
	}
}

// Content runs all three extractors on one post.
func Content(tree *dom.Tree, post *html.Node, cfg adapter.Config, opts Options) Triple {
	opts.defaults()
	return Triple{
		Text:     Text(tree, post, cfg, opts),
		URL:      URL(post, cfg, opts),
		ImageURL: Image(post, cfg, opts),
	}
}

// inNestedPost reports whether n sits inside a post-shaped node that is a
// strict descendant of post — a comment or quoted post whose content must
// not be attributed to post itself.
func inNestedPost(post *html.Node, n *html.Node, cfg adapter.Config) bool {
	for p := n; p != nil && p != post; p = p.Parent {
		if p != n && p != post && dom.MatchesAny(p, cfg.PostSelectors) {
			return true
		}
	}
	return false
}

// nodeText extracts visible text from a subtree, skipping script/style.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
