// Package adapter maps a host site to the structural hints feedwatch needs
// to find posts and read content out of them. Platform layouts churn without
// notice; every heuristic that depends on a concrete layout lives here as
// data, so a layout change is an adapter edit, never a logic change.
package adapter

import (
	"net/url"
	"strings"
)

// Config is a platform's structural hint table. All selector lists are in
// priority order: earlier entries are more specific and tried first.
// PostSelectors and AvatarSelectors are matched node-against-selector, so
// each entry must be a single compound selector (tag, #id, .class, [attr]
// parts, no combinators); the query-style lists may use descendant forms.
type Config struct {
	// Name identifies the platform ("twitter", "facebook", "generic").
	Name string

	// Hostnames this adapter claims. Matched against the registrable suffix,
	// so "twitter.com" also claims "mobile.twitter.com".
	Hostnames []string

	// PostSelectors match post-shaped nodes.
	PostSelectors []string

	// FeedSelector matches the feed landmark holding top-level posts.
	// Empty when the platform exposes no usable landmark.
	FeedSelector string

	// DetailPathPatterns are location path prefixes of single-post detail
	// views, where the first post-shaped node is the primary post and the
	// rest are comments.
	DetailPathPatterns []string

	// TextSelectors locate caption/body text inside a post.
	TextSelectors []string

	// LinkSelectors locate outbound shared links inside a post.
	LinkSelectors []string

	// ImageSelector matches candidate content images inside a post.
	ImageSelector string

	// AvatarSelectors match containers whose images are avatars or icons,
	// never content. Needed because avatar <img> tags are structurally
	// indistinguishable from content images.
	AvatarSelectors []string

	// ExpandSelectors match "see more" affordances to activate before
	// reading text.
	ExpandSelectors []string

	// UnwrapHosts are redirector hosts that wrap outbound links; the real
	// target sits in the UnwrapParam query parameter.
	UnwrapHosts []string
	UnwrapParam string
}

// Generic is the fallback for unrecognised hosts: a news article page whose
// first post-shaped node is the primary content unit.
var Generic = Config{
	Name:          "generic",
	PostSelectors: []string{"article", "main", ".article-body", ".post"},
	TextSelectors: []string{".article-body", ".entry-content", "article p", "p"},
	LinkSelectors: []string{"article a[href]"},
	ImageSelector: "img",
	AvatarSelectors: []string{
		".avatar", ".author-photo", "nav", "header", ".logo",
	},
}

var twitter = Config{
	Name:      "twitter",
	Hostnames: []string{"twitter.com", "x.com"},
	PostSelectors: []string{
		"article[data-testid=tweet]",
		"article[role=article]",
		"article",
	},
	FeedSelector:       "div[aria-label^=Timeline]",
	DetailPathPatterns: []string{"/status/"},
	TextSelectors: []string{
		"div[data-testid=tweetText]",
		"div[lang]",
	},
	LinkSelectors: []string{
		"a[data-testid=card.wrapper]",
		"a[href^=https]",
	},
	ImageSelector: "img[alt=Image]",
	AvatarSelectors: []string{
		"div[data-testid^=UserAvatar]",
		"img[src^=https://pbs.twimg.com/profile_images]",
	},
	ExpandSelectors: []string{
		"div[data-testid=tweet-text-show-more-link]",
		"span[data-testid=show-more]",
	},
	UnwrapHosts: []string{"t.co"},
}

var facebook = Config{
	Name:      "facebook",
	Hostnames: []string{"facebook.com", "fb.com", "m.facebook.com"},
	PostSelectors: []string{
		"div[data-pagelet^=FeedUnit]",
		"div[role=article]",
	},
	FeedSelector:       "div[role=feed]",
	DetailPathPatterns: []string{"/posts/", "/permalink", "/story.php", "/photo"},
	TextSelectors: []string{
		"div[data-ad-preview=message]",
		"div[data-ad-comet-preview=message]",
		"div[dir=auto]",
	},
	LinkSelectors: []string{
		"a[role=link][href^=https://l.facebook.com]",
		"a[role=link][href^=https]",
	},
	ImageSelector: "img",
	AvatarSelectors: []string{
		"svg[role=img]",
		"a[aria-hidden=true]",
		"image",
	},
	ExpandSelectors: []string{
		"div[role=button][tabindex]",
	},
	UnwrapHosts: []string{"l.facebook.com", "lm.facebook.com"},
	UnwrapParam: "u",
}

var registry = []Config{twitter, facebook}

// Resolve returns the adapter for a hostname. Never fails: an unrecognised
// host gets the Generic news-page adapter.
func Resolve(hostname string) Config {
	host := strings.ToLower(strings.TrimPrefix(hostname, "www."))
	for _, cfg := range registry {
		for _, h := range cfg.Hostnames {
			if host == h || strings.HasSuffix(host, "."+h) {
				return cfg
			}
		}
	}
	return Generic
}

// ResolveURL resolves the adapter for a full page URL. Unparseable input
// falls back to Generic, matching the never-fails contract.
func ResolveURL(pageURL string) Config {
	u, err := url.Parse(pageURL)
	if err != nil {
		return Generic
	}
	return Resolve(u.Hostname())
}

// IsDetailPath reports whether path looks like a single-post detail view for
// this platform.
func (c Config) IsDetailPath(path string) bool {
	for _, p := range c.DetailPathPatterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// Unwrap applies the platform's redirector rule to an outbound link. When
// the link host is a known redirector and the real target rides in a query
// parameter, the target is returned; otherwise raw comes back unchanged.
func (c Config) Unwrap(raw string) string {
	if c.UnwrapParam == "" || len(c.UnwrapHosts) == 0 {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, h := range c.UnwrapHosts {
		if host != h {
			continue
		}
		if target := u.Query().Get(c.UnwrapParam); target != "" {
			return target
		}
	}
	return raw
}
