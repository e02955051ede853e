package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/philverify/feedwatch/adapter"
	"github.com/philverify/feedwatch/dom"
)

// URL extracts the shared outbound link of a post: adapter link selectors in
// order, redirector unwrapping applied, and only absolute http(s) values
// returned. Intra-platform links (profiles, hashtags, permalinks on the same
// host) are not shared content and are skipped.
func URL(post *html.Node, cfg adapter.Config, opts Options) string {
	opts.defaults()

	for _, sel := range cfg.LinkSelectors {
		for _, a := range dom.QueryAll(post, sel) {
			if inNestedPost(post, a, cfg) {
				continue
			}
			href := strings.TrimSpace(dom.GetAttr(a, "href"))
			if href == "" {
				continue
			}
			if resolved := resolveOutbound(href, cfg, opts); resolved != "" {
				return resolved
			}
		}
	}
	return ""
}

func resolveOutbound(href string, cfg adapter.Config, opts Options) string {
	href = cfg.Unwrap(href)

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if opts.BaseURL != nil {
		u = opts.BaseURL.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Hostname() == "" {
		return ""
	}
	if opts.BaseURL != nil && sameSite(u.Hostname(), opts.BaseURL.Hostname()) {
		return ""
	}
	return u.String()
}

func sameSite(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}
