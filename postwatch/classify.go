package postwatch

import (
	"golang.org/x/net/html"

	"github.com/philverify/feedwatch/dom"
)

// classify maps one inserted subtree to the top-level posts it contributes.
// A single insertion can carry zero posts (a toolbar), one, or a whole
// pagination chunk.
func (w *Watcher) classify(n *html.Node) []*html.Node {
	if !w.tree.IsAttached(n) {
		// removed again before the frame fired
		return nil
	}
	return w.filter(w.candidates(n))
}

// topLevelPosts is the full-tree variant used by Rescan.
func (w *Watcher) topLevelPosts() []*html.Node {
	return w.filter(w.candidates(w.tree.Root()))
}

// candidates collects post-shaped nodes in subtree order: the subtree root
// itself when it matches, then matching descendants. Selector overlap is
// deduplicated by node identity.
func (w *Watcher) candidates(n *html.Node) []*html.Node {
	var out []*html.Node
	seen := make(map[*html.Node]struct{})
	add := func(c *html.Node) {
		if _, dup := seen[c]; !dup {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	if dom.MatchesAny(n, w.cfg.PostSelectors) {
		add(n)
	}
	for _, sel := range w.cfg.PostSelectors {
		for _, c := range dom.QueryAll(n, sel) {
			add(c)
		}
	}
	return out
}

// filter applies the platform's discovery strategy. Post-shaped nodes with a
// post-shaped ancestor are always excluded: those are embedded shares and
// quoted posts, and they verify as part of their container.
//
// With a feed landmark present, posts inside it are top-level. Without one —
// a detail view, or a platform with no configured landmark — the first post
// ever seen is the primary and everything after it is a comment.
func (w *Watcher) filter(cands []*html.Node) []*html.Node {
	var feed *html.Node
	if w.cfg.FeedSelector != "" {
		feed = dom.Query(w.tree.Root(), w.cfg.FeedSelector)
	}

	var out []*html.Node
	for _, c := range cands {
		if w.closestPost(c) != nil {
			continue
		}
		if feed != nil {
			if isDescendant(feed, c) {
				out = append(out, c)
			}
			continue
		}
		if w.cfg.FeedSelector != "" && !w.detail {
			// landmark configured but missing from the document, and not a
			// known detail path: layout drift. Scan everything rather than
			// go dark.
			out = append(out, c)
			continue
		}
		w.mu.Lock()
		chosen := w.primaryChosen
		w.mu.Unlock()
		if !chosen {
			out = append(out, c)
		}
		return out
	}
	return out
}

// closestPost reports the nearest post-shaped strict ancestor of n, nil when
// n is top-level.
func (w *Watcher) closestPost(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if dom.MatchesAny(p, w.cfg.PostSelectors) {
			return p
		}
	}
	return nil
}

func isDescendant(root, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}
