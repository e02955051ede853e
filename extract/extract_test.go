package extract

import (
	"net/url"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/philverify/feedwatch/adapter"
	"github.com/philverify/feedwatch/dom"
)

func parseTree(t *testing.T, src string) *dom.Tree {
	t.Helper()
	tree, err := dom.Parse(src)
	if err != nil {
		t.Fatalf("dom.Parse: %v", err)
	}
	return tree
}

func baseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestText_TwitterCaption(t *testing.T) {
	tree := parseTree(t, `<html><body>
<article data-testid="tweet">
  <div data-testid="tweetText">BREAKING: typhoon survivors found after 3 days</div>
</article>
</body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Resolve("twitter.com")

	got := Content(tree, post, cfg, Options{BaseURL: baseURL(t, "https://x.com/home")})
	if got.Text != "BREAKING: typhoon survivors found after 3 days" {
		t.Errorf("Text: got %q", got.Text)
	}
	if got.URL != "" || got.ImageURL != "" {
		t.Errorf("want text-only triple, got %+v", got)
	}
}

func TestText_ShortCaptionRejected(t *testing.T) {
	tree := parseTree(t, `<html><body>
<article data-testid="tweet"><div data-testid="tweetText">lol</div></article>
</body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Resolve("twitter.com")

	if got := Text(tree, post, cfg, Options{}); got != "" {
		t.Errorf("short caption accepted: %q", got)
	}
}

func TestText_NestedPostExcluded(t *testing.T) {
	tree := parseTree(t, `<html><body>
<article data-testid="tweet">
  <div data-testid="tweetText">ok</div>
  <article data-testid="tweet">
    <div data-testid="tweetText">this is a long reply that would easily pass the threshold</div>
  </article>
</article>
</body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Resolve("twitter.com")

	if got := Text(tree, post, cfg, Options{}); got != "" {
		t.Errorf("nested post text attributed to parent: %q", got)
	}
}

func TestText_ExpandActivatedOnce(t *testing.T) {
	tree := parseTree(t, `<html><body>
<article data-testid="tweet">
  <div data-testid="tweetText">Truncated teaser…</div>
  <span data-testid="show-more">Show more</span>
</article>
</body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Resolve("twitter.com")

	clicks := 0
	tree.SetActivator(func(n *html.Node) error {
		clicks++
		// The host page replaces the truncated caption on expansion.
		caption := dom.Query(post, "div[data-testid=tweetText]")
		caption.FirstChild.Data = "The fully expanded caption text, well past the minimum length"
		return nil
	})

	got := Text(tree, post, cfg, Options{})
	if !strings.Contains(got, "fully expanded") {
		t.Errorf("expansion not applied before reading: %q", got)
	}
	Text(tree, post, cfg, Options{})
	if clicks != 1 {
		t.Errorf("expand activated %d times, want 1", clicks)
	}
}

func TestText_LeafFallbackSkipsLinks(t *testing.T) {
	tree := parseTree(t, `<html><body>
<article class="post">
  <div>
    <p>Eyewitnesses report flooding across the province since Tuesday.</p>
    <p>http://spam.example/click</p>
  </div>
</article>
</body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Config{Name: "bare", PostSelectors: []string{"article"}}

	got := Text(tree, post, cfg, Options{})
	if !strings.Contains(got, "flooding across the province") {
		t.Fatalf("fallback missed leaf text: %q", got)
	}
	if strings.Contains(got, "http") {
		t.Errorf("fallback picked up raw link text: %q", got)
	}
}

func TestURL_UnwrapsRedirector(t *testing.T) {
	tree := parseTree(t, `<html><body>
<div role="article">
  <a role="link" href="https://l.facebook.com/l.php?u=https%3A%2F%2Fnews.example.ph%2Ftyphoon&h=AT0">shared</a>
</div>
</body></html>`)
	post := dom.Query(tree.Root(), "div[role=article]")
	cfg := adapter.Resolve("facebook.com")

	got := URL(post, cfg, Options{BaseURL: baseURL(t, "https://www.facebook.com/")})
	if got != "https://news.example.ph/typhoon" {
		t.Errorf("URL: got %q", got)
	}
}

func TestURL_SkipsIntraPlatformLinks(t *testing.T) {
	tree := parseTree(t, `<html><body>
<article data-testid="tweet">
  <a href="https://x.com/someone">@someone</a>
  <a href="https://news.example.ph/story">story</a>
</article>
</body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Resolve("x.com")

	got := URL(post, cfg, Options{BaseURL: baseURL(t, "https://x.com/home")})
	if got != "https://news.example.ph/story" {
		t.Errorf("URL: got %q", got)
	}
}

func TestURL_NeverRelativeOrNonHTTP(t *testing.T) {
	tree := parseTree(t, `<html><body>
<article class="post"><a href="javascript:void(0)">x</a><a href="/local/path">y</a></article>
</body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Config{
		Name:          "bare",
		PostSelectors: []string{"article"},
		LinkSelectors: []string{"a[href]"},
	}

	// Without a base URL a relative link cannot be absolutised: drop it.
	if got := URL(post, cfg, Options{}); got != "" {
		t.Errorf("URL returned a relative or unsafe value: %q", got)
	}
}

func TestImage_FiltersAndPicksLargest(t *testing.T) {
	tree := parseTree(t, `<html><body>
<div role="article">
  <a aria-hidden="true"><img src="https://cdn.example/avatar.jpg" width="400" height="400"></a>
  <img src="https://cdn.example/icon.png" width="32" height="32">
  <img src="https://cdn.example/photo-small.jpg" width="320" height="240">
  <img src="https://cdn.example/photo-large.jpg" width="1080" height="720">
</div>
</body></html>`)
	post := dom.Query(tree.Root(), "div[role=article]")
	cfg := adapter.Resolve("facebook.com")

	got := Image(post, cfg, Options{BaseURL: baseURL(t, "https://facebook.com/")})
	if got != "https://cdn.example/photo-large.jpg" {
		t.Errorf("Image: got %q", got)
	}
}

func TestImage_NoSurvivors(t *testing.T) {
	tree := parseTree(t, `<html><body>
<div role="article">
  <img src="https://cdn.example/pixel.gif" width="1" height="1">
</div>
</body></html>`)
	post := dom.Query(tree.Root(), "div[role=article]")
	cfg := adapter.Resolve("facebook.com")

	if got := Image(post, cfg, Options{}); got != "" {
		t.Errorf("Image: got %q, want absent", got)
	}
}

func TestContent_EmptyTriple(t *testing.T) {
	tree := parseTree(t, `<html><body><article class="post"><span>hi</span></article></body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Config{Name: "bare", PostSelectors: []string{"article"}}

	got := Content(tree, post, cfg, Options{})
	if !got.Empty() {
		t.Errorf("want empty triple, got %+v", got)
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"zero width space", "zero\u200bwidth", "zerowidth"},
		{"joiners", "a\u200cb\u200dc", "abc"},
		{"bom and soft hyphen", "\ufeffco\u00adoperate", "cooperate"},
		{"whitespace collapsed", "  spread \n\t across  lines ", "spread across lines"},
		{"plain text untouched", "already clean", "already clean"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanText(tc.in); got != tc.want {
				t.Errorf("CleanText(%q): got %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestImage_SkipsProfileImages(t *testing.T) {
	tree := parseTree(t, `<html><body>
<article data-testid="tweet">
  <div data-testid="UserAvatar-Container">
    <img src="https://pbs.twimg.com/media/huge.jpg" alt="Image" width="640" height="640">
  </div>
  <a role="link"><img src="https://pbs.twimg.com/profile_images/123/me.jpg" alt="Image" width="400" height="400"></a>
  <img src="https://pbs.twimg.com/media/photo.jpg" alt="Image" width="520" height="300">
</article>
</body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Resolve("x.com")

	got := Image(post, cfg, Options{BaseURL: baseURL(t, "https://x.com/home")})
	if got != "https://pbs.twimg.com/media/photo.jpg" {
		t.Errorf("Image: got %q", got)
	}
}

func TestImage_SkipsHeaderAndLogo(t *testing.T) {
	tree := parseTree(t, `<html><body>
<article>
  <header>
    <img src="https://cdn.example/masthead.png" width="900" height="120">
  </header>
  <span class="logo"><img src="https://cdn.example/brand.svg" width="300" height="300"></span>
  <img src="https://cdn.example/story.jpg" width="640" height="427">
</article>
</body></html>`)
	post := dom.Query(tree.Root(), "article")
	cfg := adapter.Resolve("news.example.com")

	got := Image(post, cfg, Options{BaseURL: baseURL(t, "https://news.example.com/story")})
	if got != "https://cdn.example/story.jpg" {
		t.Errorf("Image: got %q", got)
	}
}
