package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/philverify/feedwatch/safeurl"
)

// previewer fetches a shared link and reduces it to a small sanitized
// markdown excerpt for the report's claim display.
type previewer struct {
	httpc     *http.Client
	sanitizer *bluemonday.Policy
	md        *converter.Converter
}

func newPreviewer() *previewer {
	sanitizer := bluemonday.StrictPolicy()
	sanitizer.AllowElements("p", "br", "strong", "em", "blockquote",
		"ul", "ol", "li", "h1", "h2", "h3", "h4")
	sanitizer.AllowAttrs("href").OnElements("a")
	sanitizer.RequireParseableURLs(true)
	return &previewer{
		httpc:     &http.Client{Timeout: 15 * time.Second},
		sanitizer: sanitizer,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// maxPreviewMarkdown caps the markdown excerpt.
const maxPreviewMarkdown = 2000

// Preview fetches rawURL and returns its title, a markdown excerpt, and the
// source domain. Shared links come out of untrusted posts, so the URL gets
// the full fetchability check including the private-address guard.
func (b *Broker) Preview(ctx context.Context, rawURL string) (*LinkPreview, error) {
	return b.preview.fetch(ctx, rawURL)
}

func (p *previewer) fetch(ctx context.Context, rawURL string) (*LinkPreview, error) {
	if err := safeurl.ValidateFetchable(rawURL); err != nil {
		return nil, &BackendError{Detail: fmt.Sprintf("preview: %v", err)}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &BackendError{Detail: "preview: unparseable URL"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("User-Agent", "feedwatch/1.0")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{Status: resp.StatusCode,
			Detail: fmt.Sprintf("preview: page returned status %d", resp.StatusCode)}
	}

	raw, err := safeurl.LimitedReadAll(resp.Body, safeurl.MaxResponseBody)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	title := pageTitle(raw)
	clean := p.sanitizer.Sanitize(string(raw))
	md, err := p.md.ConvertString(clean, converter.WithDomain(rawURL))
	if err != nil {
		md = ""
	}
	md = strings.TrimSpace(md)
	if len(md) > maxPreviewMarkdown {
		md = md[:maxPreviewMarkdown]
	}

	return &LinkPreview{
		Title:    title,
		Markdown: md,
		Domain:   strings.TrimPrefix(u.Hostname(), "www."),
	}, nil
}

// pageTitle pulls <title> out of the raw document, falling back to "".
func pageTitle(raw []byte) string {
	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		return ""
	}
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
