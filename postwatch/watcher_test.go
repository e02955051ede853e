package postwatch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/philverify/feedwatch/dom"
	"github.com/philverify/feedwatch/internal/frame"
)

const feedPage = `<html><body>
<nav>toolbar</nav>
<div role="feed"></div>
</body></html>`

type capture struct {
	posts []Post
}

func (c *capture) schedule(_ context.Context, p Post) {
	c.posts = append(c.posts, p)
}

func newFeedWatcher(t *testing.T, pageURL, page string, autoScan bool) (*Watcher, *dom.Tree, *frame.Manual, *capture) {
	t.Helper()
	tree, err := dom.Parse(page)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	frames := &frame.Manual{}
	got := &capture{}
	w := New(Config{
		Tree:     tree,
		PageURL:  pageURL,
		Frames:   frames,
		Schedule: got.schedule,
		AutoScan: autoScan,
	})
	w.Start(context.Background())
	return w, tree, frames, got
}

func appendPost(t *testing.T, tree *dom.Tree, parent *html.Node, body string) {
	t.Helper()
	if _, err := tree.AppendHTML(parent, body); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestWatcher_BurstCoalescedIntoOneFlush(t *testing.T) {
	_, tree, frames, got := newFeedWatcher(t, "https://www.facebook.com/", feedPage, true)

	feed := dom.Query(tree.Root(), "div[role=feed]")
	if feed == nil {
		t.Fatal("feed landmark not found")
	}
	for i := 0; i < 100; i++ {
		appendPost(t, tree, feed,
			fmt.Sprintf(`<div role="article"><div dir="auto">post number %d</div></div>`, i))
	}

	if len(got.posts) != 0 {
		t.Fatalf("scheduled before frame: got %d, want 0", len(got.posts))
	}
	if ran := frames.Step(); ran != 1 {
		t.Fatalf("flushes for one burst: got %d, want 1", ran)
	}
	if len(got.posts) != 100 {
		t.Fatalf("scheduled posts: got %d, want 100", len(got.posts))
	}
	seen := make(map[*html.Node]bool)
	for _, p := range got.posts {
		if seen[p.Node] {
			t.Fatalf("node scheduled twice: %s", dom.PathOf(p.Node))
		}
		seen[p.Node] = true
		if !strings.HasPrefix(p.ID, "post_") {
			t.Fatalf("post ID: got %q, want post_ prefix", p.ID)
		}
		if dom.GetAttr(p.Node, StateAttr) != StateScheduled {
			t.Fatalf("marker on %s: got %q, want %q",
				dom.PathOf(p.Node), dom.GetAttr(p.Node, StateAttr), StateScheduled)
		}
	}
	if ran := frames.Step(); ran != 0 {
		t.Fatalf("second frame flushes: got %d, want 0", ran)
	}
}

func TestWatcher_NestedPostExcluded(t *testing.T) {
	_, tree, frames, got := newFeedWatcher(t, "https://www.facebook.com/", feedPage, true)

	feed := dom.Query(tree.Root(), "div[role=feed]")
	appendPost(t, tree, feed, `<div role="article">
		<div dir="auto">sharer commentary, long enough to matter here</div>
		<div role="article"><div dir="auto">the quoted original post</div></div>
	</div>`)
	frames.Step()

	if len(got.posts) != 1 {
		t.Fatalf("scheduled posts: got %d, want 1 (embedded share excluded)", len(got.posts))
	}
	inner := dom.Query(got.posts[0].Node, "div[role=article]")
	if inner == nil {
		t.Fatal("nested post missing from scheduled container")
	}
	if dom.HasAttr(inner, StateAttr) {
		t.Fatal("nested post carries a processing marker")
	}
}

func TestWatcher_OutsideFeedIgnored(t *testing.T) {
	_, tree, frames, got := newFeedWatcher(t, "https://www.facebook.com/", feedPage, true)

	body := dom.Query(tree.Root(), "body")
	appendPost(t, tree, body, `<div role="article"><div dir="auto">sidebar suggestion card</div></div>`)
	frames.Step()

	if len(got.posts) != 0 {
		t.Fatalf("scheduled posts outside feed: got %d, want 0", len(got.posts))
	}
}

func TestWatcher_RescanOnAttach(t *testing.T) {
	page := `<html><body><div role="feed">
		<div role="article"><div dir="auto">already rendered one</div></div>
		<div role="article"><div dir="auto">already rendered two</div></div>
	</div></body></html>`
	_, _, _, got := newFeedWatcher(t, "https://www.facebook.com/", page, true)

	if len(got.posts) != 2 {
		t.Fatalf("posts found at attach: got %d, want 2", len(got.posts))
	}
}

func TestWatcher_DetailViewPrimaryOnly(t *testing.T) {
	page := `<html><body>
		<article data-testid="tweet"><div lang="en">the primary tweet body</div></article>
		<article data-testid="tweet"><div lang="en">first reply</div></article>
		<article data-testid="tweet"><div lang="en">second reply</div></article>
	</body></html>`
	_, tree, frames, got := newFeedWatcher(t, "https://x.com/someone/status/123", page, true)

	if len(got.posts) != 1 {
		t.Fatalf("detail view posts: got %d, want 1", len(got.posts))
	}

	body := dom.Query(tree.Root(), "body")
	appendPost(t, tree, body, `<article data-testid="tweet"><div lang="en">late reply</div></article>`)
	frames.Step()
	if len(got.posts) != 1 {
		t.Fatalf("posts after reply insert: got %d, want 1 (comments excluded)", len(got.posts))
	}
}

func TestWatcher_LandmarkMissingScansAll(t *testing.T) {
	// Known platform, feed landmark absent, not a detail path: layout drift.
	// Degrade to scheduling every top-level post rather than going dark.
	page := `<html><body>
		<article data-testid="tweet"><div lang="en">one</div></article>
		<article data-testid="tweet"><div lang="en">two</div></article>
	</body></html>`
	_, _, _, got := newFeedWatcher(t, "https://x.com/home", page, true)

	if len(got.posts) != 2 {
		t.Fatalf("posts without landmark: got %d, want 2", len(got.posts))
	}
}

func TestWatcher_GenericPageFirstPostOnly(t *testing.T) {
	page := `<html><body>
		<article><p>the article body text goes here and is long enough</p></article>
		<article><p>a related-stories teaser</p></article>
	</body></html>`
	_, _, _, got := newFeedWatcher(t, "https://news.example.com/story", page, true)

	if len(got.posts) != 1 {
		t.Fatalf("generic page posts: got %d, want 1", len(got.posts))
	}
	if got.posts[0].Adapter.Name != "generic" {
		t.Fatalf("adapter: got %q, want generic", got.posts[0].Adapter.Name)
	}
}

func TestWatcher_AutoScanToggle(t *testing.T) {
	w, tree, frames, got := newFeedWatcher(t, "https://www.facebook.com/", feedPage, false)

	feed := dom.Query(tree.Root(), "div[role=feed]")
	appendPost(t, tree, feed, `<div role="article"><div dir="auto">arrived while paused</div></div>`)
	frames.Step()
	if len(got.posts) != 0 {
		t.Fatalf("scheduled while paused: got %d, want 0", len(got.posts))
	}

	// Enabling re-scans the full tree, so the paused-era post is found.
	w.SetAutoScan(true)
	if len(got.posts) != 1 {
		t.Fatalf("posts after enable: got %d, want 1", len(got.posts))
	}

	// Disabling mid-burst drops pending work immediately.
	appendPost(t, tree, feed, `<div role="article"><div dir="auto">mid burst</div></div>`)
	w.SetAutoScan(false)
	frames.Step()
	if len(got.posts) != 1 {
		t.Fatalf("posts after disable: got %d, want 1", len(got.posts))
	}
}

func TestWatcher_RescanIdempotent(t *testing.T) {
	page := `<html><body><div role="feed">
		<div role="article"><div dir="auto">the only post</div></div>
	</div></body></html>`
	w, _, _, got := newFeedWatcher(t, "https://www.facebook.com/", page, true)

	w.Rescan()
	w.Rescan()
	if len(got.posts) != 1 {
		t.Fatalf("posts after repeated rescans: got %d, want 1", len(got.posts))
	}
}
