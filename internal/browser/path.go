package browser

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ResolvePath walks a rooted location path, e.g. "/html/body/div[2]/article",
// back to a node. It is the inverse of dom.PathOf and matches the path
// format the injected observer computes. Returns nil when any step is
// missing.
func ResolvePath(root *html.Node, path string) *html.Node {
	if !strings.HasPrefix(path, "/") {
		return nil
	}
	cur := root
	for _, part := range strings.Split(path[1:], "/") {
		tag, idx := part, 1
		if i := strings.IndexByte(part, '['); i >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil
			}
			n, err := strconv.Atoi(part[i+1 : len(part)-1])
			if err != nil || n < 1 {
				return nil
			}
			tag, idx = part[:i], n
		}
		var next *html.Node
		count := 0
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				count++
				if count == idx {
					next = c
					break
				}
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}
