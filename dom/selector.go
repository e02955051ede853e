package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// QueryAll returns all element nodes under root matching a simple CSS
// selector. Supported forms:
//   - tag: "article", "div"
//   - .class: ".post", "div.post"
//   - #id: "#timeline"
//   - tag[attr]: "a[href]"
//   - tag[attr=val]: "div[role=article]"
//   - tag[attr^=val]: "a[href^=/redirect]"
//   - combinations separated by spaces (descendant combinator)
//
// This is deliberately a small subset: platform adapters only ever need
// structural hints, not full CSS.
func QueryAll(root *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 || root == nil {
		return nil
	}

	matches := matchSimple(root, parts[0])
	for i := 1; i < len(parts); i++ {
		var next []*html.Node
		for _, parent := range matches {
			next = append(next, matchSimple(parent, parts[i])...)
		}
		matches = next
	}
	return matches
}

// Query returns the first match of selector under root, or nil.
func Query(root *html.Node, selector string) *html.Node {
	all := QueryAll(root, selector)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// Matches reports whether n itself matches a single (non-descendant) selector.
func Matches(n *html.Node, selector string) bool {
	return matchesSelector(n, parseSimpleSelector(selector))
}

// MatchesAny reports whether n matches any selector in the list.
func MatchesAny(n *html.Node, selectors []string) bool {
	for _, sel := range selectors {
		if Matches(n, sel) {
			return true
		}
	}
	return false
}

// Closest walks from n's parent up to the root and returns the nearest
// ancestor matching selector, or nil. n itself is not considered.
func Closest(n *html.Node, selector string) *html.Node {
	if n == nil {
		return nil
	}
	m := parseSimpleSelector(selector)
	for p := n.Parent; p != nil; p = p.Parent {
		if matchesSelector(p, m) {
			return p
		}
	}
	return nil
}

func matchSimple(root *html.Node, sel string) []*html.Node {
	m := parseSimpleSelector(sel)
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		// A match below root, never root itself: keeps the descendant
		// combinator strict.
		if n != root && matchesSelector(n, m) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

type attrCond struct {
	key    string
	val    string
	prefix bool
}

type simpleSelector struct {
	tag   string
	id    string
	class string
	attrs []attrCond
}

func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	// Attribute groups may stack: a[role=link][href^=https].
	for {
		idx := strings.IndexByte(sel, '[')
		if idx < 0 {
			break
		}
		end := strings.IndexByte(sel[idx:], ']')
		if end < 0 {
			end = len(sel) - idx - 1
		}
		attrPart := sel[idx+1 : idx+end]
		sel = sel[:idx] + sel[idx+end+1:]

		var cond attrCond
		switch {
		case strings.Contains(attrPart, "^="):
			eq := strings.Index(attrPart, "^=")
			cond = attrCond{key: attrPart[:eq], val: strings.Trim(attrPart[eq+2:], `"'`), prefix: true}
		case strings.Contains(attrPart, "="):
			eq := strings.IndexByte(attrPart, '=')
			cond = attrCond{key: attrPart[:eq], val: strings.Trim(attrPart[eq+1:], `"'`)}
		default:
			cond = attrCond{key: attrPart}
		}
		s.attrs = append(s.attrs, cond)
	}

	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}
	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}
	s.tag = sel
	return s
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && GetAttr(n, "id") != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(GetAttr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, cond := range s.attrs {
		val, ok := lookupAttr(n, cond.key)
		if !ok {
			return false
		}
		switch {
		case cond.prefix:
			if !strings.HasPrefix(val, cond.val) {
				return false
			}
		case cond.val != "":
			if val != cond.val {
				return false
			}
		}
	}
	return true
}

// GetAttr returns the value of an attribute on a node, or "".
func GetAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

// SetAttr sets or replaces an attribute on a node.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasAttr reports whether a node carries an attribute.
func HasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
