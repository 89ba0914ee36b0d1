package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/jonathan/company-brochure/internal/types"
)

// noiseSelector matches elements whose text is never visible content.
const noiseSelector = "script, style, noscript, template, svg, iframe, head"

// Extract parses HTML and returns the page title, visible text and anchor links.
// Parsing is best-effort; malformed markup yields whatever the parser recovers.
func Extract(pageURL, htmlContent string) (*types.PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := cleanInline(doc.Find("title").First().Text())
	if title == "" {
		title = cleanInline(doc.Find("h1").First().Text())
	}

	links := ExtractLinks(doc, pageURL)

	doc.Find(noiseSelector).Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	return &types.PageContent{
		URL:   pageURL,
		Title: title,
		Text:  visibleText(root),
		Links: links,
	}, nil
}

// ExtractLinks returns the http(s) anchors of doc resolved against pageURL,
// without fragments, deduplicated by normalized URL in document order.
func ExtractLinks(doc *goquery.Document, pageURL string) []types.LinkCandidate {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	links := make([]types.LinkCandidate, 0)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		absoluteURL := base.ResolveReference(linkURL)
		if absoluteURL.Scheme != "http" && absoluteURL.Scheme != "https" {
			return
		}
		absoluteURL.Fragment = ""
		absoluteURL.RawFragment = ""

		key := NormalizeKey(absoluteURL.String())
		if seen[key] {
			return
		}
		seen[key] = true

		anchor := cleanInline(s.Text())
		if anchor == "" {
			anchor, _ = s.Attr("title")
			anchor = cleanInline(anchor)
		}
		links = append(links, types.LinkCandidate{
			URL:        absoluteURL.String(),
			AnchorText: anchor,
		})
	})

	return links
}

// visibleText joins the text nodes under sel one per line. Comment nodes are
// never text nodes, so they drop out here.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := cleanInline(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return cleanWhitespace(strings.Join(parts, "\n"))
}

func cleanInline(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// cleanWhitespace normalizes whitespace in text.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
