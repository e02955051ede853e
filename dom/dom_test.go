package dom

import (
	"testing"

	"golang.org/x/net/html"
)

const feedHTML = `<html><body>
<div id="timeline" role="main">
  <article data-testid="tweet" class="post"><div class="body">first post</div></article>
  <article data-testid="tweet" class="post">
    <div class="body">second post</div>
    <div class="replies"><article data-testid="tweet" class="post nested">a reply</article></div>
  </article>
</div>
</body></html>`

func mustParse(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree
}

func TestQueryAll_Selectors(t *testing.T) {
	tree := mustParse(t, feedHTML)

	tests := []struct {
		selector string
		want     int
	}{
		{"article", 3},
		{"article[data-testid=tweet]", 3},
		{".post", 3},
		{".nested", 1},
		{"#timeline", 1},
		{"div[role=main]", 1},
		{"div[role=banner]", 0},
		{"#timeline article", 3},
		{"article article", 1}, // only the nested reply
		{"div[data-testid^=twe]", 0},
		{"article[data-testid^=twe]", 3},
	}
	for _, tt := range tests {
		if got := len(QueryAll(tree.Root(), tt.selector)); got != tt.want {
			t.Errorf("QueryAll(%q): got %d matches, want %d", tt.selector, got, tt.want)
		}
	}
}

func TestClosest_NestedPost(t *testing.T) {
	tree := mustParse(t, feedHTML)

	nested := Query(tree.Root(), ".nested")
	if nested == nil {
		t.Fatal("nested post not found")
	}
	outer := Closest(nested, "article")
	if outer == nil {
		t.Fatal("Closest found no enclosing article")
	}
	if Matches(outer, ".nested") {
		t.Error("Closest returned the node itself, want the enclosing post")
	}

	top := QueryAll(tree.Root(), "#timeline")[0]
	if Closest(top, "article") != nil {
		t.Error("timeline container has no enclosing article")
	}
}

func TestAppendHTML_NotifiesSubscribers(t *testing.T) {
	tree := mustParse(t, feedHTML)
	timeline := Query(tree.Root(), "#timeline")

	var got []*html.Node
	unsub := tree.Subscribe(func(inserted []*html.Node) {
		got = append(got, inserted...)
	})
	defer unsub()

	inserted, err := tree.AppendHTML(timeline, `<article class="post"><div class="body">new</div></article>`)
	if err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("inserted: got %d nodes, want 1", len(inserted))
	}
	if len(got) != 1 || got[0] != inserted[0] {
		t.Errorf("subscriber saw %d nodes, want the inserted one", len(got))
	}
	if !tree.IsAttached(inserted[0]) {
		t.Error("inserted node not attached")
	}

	unsub()
	if _, err := tree.AppendHTML(timeline, `<div>x</div>`); err != nil {
		t.Fatalf("AppendHTML after unsubscribe: %v", err)
	}
	if len(got) != 1 {
		t.Error("unsubscribed callback still invoked")
	}
}

func TestRemove_DetachesNode(t *testing.T) {
	tree := mustParse(t, feedHTML)
	post := Query(tree.Root(), ".post")

	if !tree.IsAttached(post) {
		t.Fatal("post should start attached")
	}
	tree.Remove(post)
	if tree.IsAttached(post) {
		t.Error("post still attached after Remove")
	}
	tree.Remove(post) // second removal is a no-op
}

func TestMarkers(t *testing.T) {
	tree := mustParse(t, feedHTML)
	post := Query(tree.Root(), ".post")

	if HasAttr(post, "data-fw-state") {
		t.Fatal("fresh post already marked")
	}
	SetAttr(post, "data-fw-state", "scheduled")
	if got := GetAttr(post, "data-fw-state"); got != "scheduled" {
		t.Errorf("marker: got %q, want scheduled", got)
	}
	SetAttr(post, "data-fw-state", "report")
	if got := GetAttr(post, "data-fw-state"); got != "report" {
		t.Errorf("marker overwrite: got %q, want report", got)
	}
	if len(QueryAll(tree.Root(), "article[data-fw-state=report]")) != 1 {
		t.Error("marker not queryable")
	}
}

func TestActivate_DefaultNoop(t *testing.T) {
	tree := mustParse(t, feedHTML)
	post := Query(tree.Root(), ".post")

	if err := tree.Activate(post); err != nil {
		t.Fatalf("Activate without activator: %v", err)
	}

	var clicked *html.Node
	tree.SetActivator(func(n *html.Node) error {
		clicked = n
		return nil
	})
	if err := tree.Activate(post); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if clicked != post {
		t.Error("activator did not receive the target node")
	}
}

func TestPathOf(t *testing.T) {
	tree := mustParse(t, feedHTML)

	posts := QueryAll(tree.Root(), "#timeline article")
	if len(posts) < 2 {
		t.Fatal("want at least two posts")
	}
	p0, p1 := PathOf(posts[0]), PathOf(posts[1])
	if p0 == "" || p1 == "" {
		t.Fatalf("empty paths: %q %q", p0, p1)
	}
	if p0 == p1 {
		t.Errorf("sibling posts share a path: %q", p0)
	}
}
