// Package dom models the host page as an observable tree of typed nodes.
//
// The tree is the one place where platform churn is allowed to leak in: it
// exposes a subscribe-to-insertions primitive, node markers, an activation
// hook, and a small selector engine. Everything above it (locator, extractor,
// overlay) works against these primitives and never against a concrete
// browser API.
//
// Sources: a tree can be parsed once from fetched HTML (news pages, tests)
// or kept live by a browser attachment that feeds inserted fragments into
// AppendHTML as the page mutates.
package dom

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InsertFunc receives the nodes added by one structural insertion, in
// document order. Callbacks run synchronously on the inserting goroutine;
// subscribers are expected to queue work, not process it inline.
type InsertFunc func(inserted []*html.Node)

// ActivateFunc performs a user-gesture-equivalent activation (a click) on a
// node. Live trees dispatch a real event to the page; parsed trees default
// to a no-op.
type ActivateFunc func(n *html.Node) error

// Tree is an observable DOM. All structural mutation goes through Tree
// methods so insertion subscribers stay coherent.
type Tree struct {
	mu       sync.Mutex
	root     *html.Node
	subs     map[int]InsertFunc
	nextSub  int
	activate ActivateFunc
}

// Parse builds a Tree from serialised HTML.
func Parse(src string) (*Tree, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Tree{root: root, subs: make(map[int]InsertFunc)}, nil
}

// Root returns the document node.
func (t *Tree) Root() *html.Node { return t.root }

// Subscribe registers an insertion callback and returns an unsubscribe
// function. Every consumer subscribes once at startup.
func (t *Tree) Subscribe(fn InsertFunc) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// SetActivator installs the activation hook used by Activate.
func (t *Tree) SetActivator(fn ActivateFunc) {
	t.mu.Lock()
	t.activate = fn
	t.mu.Unlock()
}

// Activate triggers a click-equivalent on n. Best-effort: with no activator
// installed it succeeds as a no-op.
func (t *Tree) Activate(n *html.Node) error {
	t.mu.Lock()
	fn := t.activate
	t.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(n)
}

// AppendHTML parses fragment and appends the resulting nodes as children of
// parent, notifying insertion subscribers. Returns the inserted nodes.
func (t *Tree) AppendHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	ctx := parent
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     ctx.Data,
		DataAtom: ctx.DataAtom,
	})
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}

	t.mu.Lock()
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	subs := make([]InsertFunc, 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(nodes)
	}
	return nodes, nil
}

// AppendNode attaches an already-built node under parent and notifies
// subscribers. Used by renderers injecting overlay nodes.
func (t *Tree) AppendNode(parent, n *html.Node) {
	t.mu.Lock()
	parent.AppendChild(n)
	subs := make([]InsertFunc, 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn([]*html.Node{n})
	}
}

// Remove detaches n from its parent. Removing an already-detached node is a
// no-op; removal notifications are not emitted (removal is owned by the host
// page, nothing downstream reacts to it).
func (t *Tree) Remove(n *html.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// IsAttached reports whether n is still reachable from the tree root.
// Renderers must check this before mutating: writing to a detached node is
// a no-op, not an error.
func (t *Tree) IsAttached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == t.root {
			return true
		}
	}
	return false
}

// PathOf returns a rooted XPath-style location for n, e.g.
// "/html/body/div[2]/article". Used to address nodes in a live page and in
// log lines. Returns "" for detached or non-element chains.
func PathOf(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		idx := 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data {
				idx++
			}
		}
		part := cur.Data
		if idx > 1 {
			part = fmt.Sprintf("%s[%d]", cur.Data, idx)
		}
		parts = append([]string{part}, parts...)
	}
	if len(parts) == 0 {
		return ""
	}
	return "/" + strings.Join(parts, "/")
}
