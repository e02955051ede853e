package extract

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/philverify/feedwatch/adapter"
	"github.com/philverify/feedwatch/dom"
)

// Image extracts the best representative content image of a post.
//
// Candidates matching the adapter's image selector are filtered twice: any
// image inside an adapter-declared avatar/icon container goes, and any image
// smaller than the minimum dimension on either axis goes. Both filters exist
// because avatar images are structurally indistinguishable from content
// images by tag alone. Among the survivors the largest natural width wins,
// which picks the best representative in multi-image posts.
func Image(post *html.Node, cfg adapter.Config, opts Options) string {
	opts.defaults()

	sel := cfg.ImageSelector
	if sel == "" {
		sel = "img"
	}

	var best string
	bestWidth := -1
	for _, img := range dom.QueryAll(post, sel) {
		if inNestedPost(post, img, cfg) || inAvatar(post, img, cfg) {
			continue
		}
		src := strings.TrimSpace(dom.GetAttr(img, "src"))
		if src == "" {
			continue
		}
		w, h := imageDims(img)
		if tooSmall(w, opts.MinImagePx) || tooSmall(h, opts.MinImagePx) {
			continue
		}
		abs := absoluteImageURL(src, opts.BaseURL)
		if abs == "" {
			continue
		}
		if w > bestWidth {
			best, bestWidth = abs, w
		}
	}
	return best
}

func inAvatar(post *html.Node, img *html.Node, cfg adapter.Config) bool {
	for _, sel := range cfg.AvatarSelectors {
		if dom.Matches(img, sel) {
			return true
		}
		for p := img.Parent; p != nil && p != post.Parent; p = p.Parent {
			if dom.Matches(p, sel) {
				return true
			}
		}
	}
	return false
}

// imageDims reads the natural dimensions of an image node. Live trees carry
// naturalWidth/naturalHeight mirrored into data attributes; parsed trees
// fall back to the width/height attributes. Unknown dimensions return -1.
func imageDims(img *html.Node) (w, h int) {
	return dimAttr(img, "data-natural-width", "width"), dimAttr(img, "data-natural-height", "height")
}

func dimAttr(n *html.Node, keys ...string) int {
	for _, key := range keys {
		raw := strings.TrimSuffix(strings.TrimSpace(dom.GetAttr(n, key)), "px")
		if raw == "" {
			continue
		}
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return -1
}

// tooSmall treats unknown (-1) as acceptable: an unsized image cannot be
// proven to be an icon, and dropping it loses real content images on
// platforms that size via CSS.
func tooSmall(dim, min int) bool {
	return dim >= 0 && dim < min
}

func absoluteImageURL(src string, base *url.URL) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
