package overlay

import (
	"fmt"
	"html"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/philverify/feedwatch/broker"
	"github.com/philverify/feedwatch/dom"
	"github.com/philverify/feedwatch/postwatch"
)

// Renderer draws the per-post overlay. Implementations must treat a
// detached post node as a no-op: the host page removes posts at will and a
// write to a detached node is never an error.
type Renderer interface {
	ShowBadge(p postwatch.Post)
	ShowLoading(p postwatch.Post)
	ShowResult(p postwatch.Post, res *broker.VerificationResult)
	ShowError(p postwatch.Post, msg string, transport bool)
	Clear(p postwatch.Post)
}

// StateReport marks a post whose report is on screen.
const StateReport = "report"

// DOMRenderer renders the overlay into the observed tree. Every write is
// guarded by an attachment check.
type DOMRenderer struct {
	tree *dom.Tree
}

// NewDOMRenderer creates a DOMRenderer over the tree.
func NewDOMRenderer(tree *dom.Tree) *DOMRenderer {
	return &DOMRenderer{tree: tree}
}

func (r *DOMRenderer) ShowBadge(p postwatch.Post) {
	r.replace(p, `<div class="fw-overlay"><button class="fw-badge" data-fw-action="verify">Check this post</button></div>`)
}

func (r *DOMRenderer) ShowLoading(p postwatch.Post) {
	r.replace(p, `<div class="fw-overlay"><div class="fw-loading">Checking…</div></div>`)
}

func (r *DOMRenderer) ShowResult(p postwatch.Post, res *broker.VerificationResult) {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="fw-overlay"><div class="fw-report fw-%s">`, verdictClass(res.Verdict))
	fmt.Fprintf(&b, `<span class="fw-verdict">%s</span>`, html.EscapeString(string(res.Verdict)))
	fmt.Fprintf(&b, `<span class="fw-score">%.0f/100</span>`, res.FinalScore)
	if res.FromCache {
		b.WriteString(`<span class="fw-cached">cached</span>`)
	}
	if n := len(res.Layer2.Sources); n > 0 {
		fmt.Fprintf(&b, `<span class="fw-sources">%d source(s)</span>`, n)
	}
	b.WriteString(`<button class="fw-close" data-fw-action="close">×</button></div></div>`)
	if r.replace(p, b.String()) {
		dom.SetAttr(p.Node, postwatch.StateAttr, StateReport)
	}
}

func (r *DOMRenderer) ShowError(p postwatch.Post, msg string, transport bool) {
	hint := "The service reported a problem."
	if transport {
		hint = "Could not reach the verification service."
	}
	r.replace(p, fmt.Sprintf(
		`<div class="fw-overlay"><div class="fw-error"><span class="fw-message">%s</span><span class="fw-hint">%s</span><button class="fw-retry" data-fw-action="verify">Retry</button></div></div>`,
		html.EscapeString(msg), hint))
}

func (r *DOMRenderer) Clear(p postwatch.Post) {
	if r.replace(p, `<div class="fw-overlay"><button class="fw-badge" data-fw-action="verify">Check this post</button></div>`) {
		dom.SetAttr(p.Node, postwatch.StateAttr, postwatch.StateScheduled)
	}
}

// replace swaps the post's overlay container for fresh markup. Returns
// false when the post node is no longer attached.
func (r *DOMRenderer) replace(p postwatch.Post, markup string) bool {
	if !r.tree.IsAttached(p.Node) {
		return false
	}
	if old := dom.Query(p.Node, ".fw-overlay"); old != nil {
		r.tree.Remove(old)
	}
	if _, err := r.tree.AppendHTML(p.Node, markup); err != nil {
		return false
	}
	return true
}

func verdictClass(v broker.Verdict) string {
	switch v {
	case broker.VerdictCredible:
		return "credible"
	case broker.VerdictLikelyFake:
		return "fake"
	default:
		return "unverified"
	}
}

// FindAction maps a clicked node back to its overlay action ("verify" or
// "close") and the enclosing post node. Browser attachments use it to route
// user gestures.
func FindAction(n *xhtml.Node, postSelectors []string) (action string, post *xhtml.Node) {
	for cur := n; cur != nil; cur = cur.Parent {
		if a := dom.GetAttr(cur, "data-fw-action"); a != "" {
			action = a
			break
		}
	}
	if action == "" {
		return "", nil
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if dom.MatchesAny(cur, postSelectors) {
			return action, cur
		}
	}
	return "", nil
}
